package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecollab/collab-server/pkg/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingRelay struct {
	mu       sync.Mutex
	payloads []string
	excluded []string
}

func (r *recordingRelay) Publish(_ context.Context, documentID string, payload []byte, excludeConnID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, documentID+":"+string(payload))
	r.excluded = append(r.excluded, excludeConnID)
	return nil
}

func drain(p *Participant) []Event {
	var out []Event
	for {
		select {
		case msg, ok := <-p.Outbound():
			if !ok {
				return out
			}
			var ev Event
			if err := json.Unmarshal(msg, &ev); err == nil {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

func TestRegistry_JoinLeaveLifecycle(t *testing.T) {
	reg := NewRegistry(testLogger())
	a := NewParticipant("c1", "alice", 4, Disconnect)
	b := NewParticipant("c2", "bob", 4, Disconnect)

	assert.Equal(t, 1, reg.Join("doc", a))
	assert.Equal(t, 2, reg.Join("doc", b))
	// joining twice does not duplicate membership
	assert.Equal(t, 2, reg.Join("doc", b))
	assert.Equal(t, 1, reg.RoomCount())
	assert.True(t, reg.IsMember("doc", a))

	assert.True(t, reg.Leave("doc", a))
	assert.False(t, reg.Leave("doc", a))
	assert.False(t, reg.IsMember("doc", a))
	assert.Equal(t, 1, reg.Size("doc"))

	assert.True(t, reg.Leave("doc", b))
	assert.Equal(t, 0, reg.Size("doc"))
	assert.Equal(t, 0, reg.RoomCount())
}

func TestRegistry_LeaveAll(t *testing.T) {
	reg := NewRegistry(testLogger())
	a := NewParticipant("c1", "alice", 4, Disconnect)
	b := NewParticipant("c2", "bob", 4, Disconnect)
	reg.Join("doc-1", a)
	reg.Join("doc-2", a)
	reg.Join("doc-2", b)

	left := reg.LeaveAll(a)
	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, left)
	assert.Equal(t, 1, reg.RoomCount())
	assert.Equal(t, 1, reg.Size("doc-2"))
	assert.Empty(t, reg.LeaveAll(a))
}

func TestRegistry_MembershipGaugeCountsPerRoom(t *testing.T) {
	reg := NewRegistry(testLogger())
	a := NewParticipant("c1", "alice", 4, Disconnect)
	before := testutil.ToFloat64(metrics.RoomMemberships)

	reg.Join("doc-1", a)
	reg.Join("doc-2", a)
	reg.Join("doc-2", a)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.RoomMemberships))

	reg.LeaveAll(a)
	assert.Equal(t, before, testutil.ToFloat64(metrics.RoomMemberships))
}

func TestRegistry_BroadcastExcludesSender(t *testing.T) {
	reg := NewRegistry(testLogger())
	a := NewParticipant("c1", "alice", 4, Disconnect)
	b := NewParticipant("c2", "bob", 4, Disconnect)
	c := NewParticipant("c3", "carol", 4, Disconnect)
	reg.Join("doc", a)
	reg.Join("doc", b)
	reg.Join("other", c)

	ev, err := NewEvent(EventCodeUpdate, "x = 1")
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Broadcast("doc", ev, a))

	assert.Empty(t, drain(a))
	got := drain(b)
	require.Len(t, got, 1)
	assert.Equal(t, EventCodeUpdate, got[0].Type)
	assert.Empty(t, drain(c))
}

func TestRegistry_BroadcastInclusive(t *testing.T) {
	reg := NewRegistry(testLogger())
	a := NewParticipant("c1", "alice", 4, Disconnect)
	b := NewParticipant("c2", "bob", 4, Disconnect)
	reg.Join("doc", a)
	reg.Join("doc", b)

	ev, err := NewEvent(EventChatMessage, ChatBroadcastPayload{Message: "hi", User: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, reg.BroadcastInclusive("doc", ev))
	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
}

func TestRegistry_BroadcastToMissingRoom(t *testing.T) {
	reg := NewRegistry(testLogger())
	ev, err := NewEvent(EventCodeUpdate, "x")
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Broadcast("nope", ev, nil))
}

func TestRegistry_BroadcastPublishesToRelay(t *testing.T) {
	reg := NewRegistry(testLogger())
	relay := &recordingRelay{}
	reg.SetRelay(relay)
	a := NewParticipant("c1", "alice", 4, Disconnect)
	reg.Join("doc", a)

	ev, err := NewEvent(EventCodeUpdate, "y")
	require.NoError(t, err)
	reg.Broadcast("doc", ev, a)

	relay.mu.Lock()
	defer relay.mu.Unlock()
	require.Len(t, relay.payloads, 1)
	assert.Equal(t, []string{"c1"}, relay.excluded)
}

func TestRegistry_LiveState(t *testing.T) {
	reg := NewRegistry(testLogger())
	a := NewParticipant("c1", "alice", 4, Disconnect)

	// no room, nothing recorded
	reg.SetLive("doc", "ignored", "alice")
	_, ok := reg.Live("doc")
	assert.False(t, ok)

	reg.Join("doc", a)
	reg.SetLive("doc", "draft", "alice")
	live, ok := reg.Live("doc")
	require.True(t, ok)
	assert.Equal(t, "draft", live.Content)
	assert.Equal(t, "alice", live.EditorID)

	// live state goes away with the room
	reg.Leave("doc", a)
	_, ok = reg.Live("doc")
	assert.False(t, ok)
}

func TestRegistry_DiscardLive(t *testing.T) {
	reg := NewRegistry(testLogger())
	a := NewParticipant("c1", "alice", 4, Disconnect)
	assert.False(t, reg.DiscardLive("doc", time.Now()))

	reg.Join("doc", a)
	reg.SetLive("doc", "draft", "alice")
	live, ok := reg.Live("doc")
	require.True(t, ok)

	// a draft newer than the durable change survives
	assert.False(t, reg.DiscardLive("doc", live.UpdatedAt.Add(-time.Millisecond)))
	_, ok = reg.Live("doc")
	assert.True(t, ok)

	assert.True(t, reg.DiscardLive("doc", live.UpdatedAt))
	_, ok = reg.Live("doc")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Size("doc"))
}

func TestRegistry_SlowConsumerDoesNotBlockOthers(t *testing.T) {
	reg := NewRegistry(testLogger())
	slow := NewParticipant("slow", "alice", 1, Disconnect)
	fast := NewParticipant("fast", "bob", 8, Disconnect)
	reg.Join("doc", slow)
	reg.Join("doc", fast)

	for i := 0; i < 3; i++ {
		ev, err := NewEvent(EventCodeUpdate, "v")
		require.NoError(t, err)
		reg.BroadcastInclusive("doc", ev)
	}

	assert.True(t, slow.Closed())
	assert.Len(t, drain(fast), 3)
}
