package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRelay_DeliversAcrossInstances(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	regA := NewRegistry(testLogger())
	regB := NewRegistry(testLogger())
	relayA := NewRedisRelay(redis.NewClient(&redis.Options{Addr: m.Addr()}), "collab:room:", regA, testLogger())
	relayB := NewRedisRelay(redis.NewClient(&redis.Options{Addr: m.Addr()}), "collab:room:", regB, testLogger())
	require.NoError(t, relayA.Start(ctx))
	require.NoError(t, relayB.Start(ctx))
	regA.SetRelay(relayA)
	regB.SetRelay(relayB)

	sender := NewParticipant("a1", "alice", 8, Disconnect)
	localPeer := NewParticipant("a2", "bob", 8, Disconnect)
	remotePeer := NewParticipant("b1", "carol", 8, Disconnect)
	regA.Join("doc-1", sender)
	regA.Join("doc-1", localPeer)
	regB.Join("doc-1", remotePeer)

	ev, err := NewEvent(EventCodeUpdate, "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, regA.Broadcast("doc-1", ev, sender))

	select {
	case msg := <-remotePeer.Outbound():
		var got Event
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, EventCodeUpdate, got.Type)
		var content string
		require.NoError(t, got.UnmarshalPayload(&content))
		assert.Equal(t, "hello", content)
	case <-time.After(2 * time.Second):
		t.Fatal("remote participant did not receive relayed event")
	}

	// the local peer gets exactly one copy; the origin skips its own relay echo
	assert.Len(t, localPeer.Outbound(), 1)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, localPeer.Outbound(), 1)
	assert.Len(t, sender.Outbound(), 0)
}

func TestRedisRelay_IgnoresMalformedMessages(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := NewRegistry(testLogger())
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	relay := NewRedisRelay(client, "collab:room:", reg, testLogger())
	require.NoError(t, relay.Start(ctx))

	p := NewParticipant("c1", "alice", 4, Disconnect)
	reg.Join("doc-2", p)

	require.NoError(t, client.Publish(ctx, "collab:room:doc-2", "not json").Err())
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, p.Outbound(), 0)
}
