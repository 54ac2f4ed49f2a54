package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { RegisterCollectors(reg) })

	RoomsActive.Set(2)
	require.Equal(t, 2.0, testutil.ToFloat64(RoomsActive))
	RoomsActive.Set(0)

	ConnectionsOpen.Inc()
	RoomMemberships.Add(3)
	require.Equal(t, 1.0, testutil.ToFloat64(ConnectionsOpen))
	require.Equal(t, 3.0, testutil.ToFloat64(RoomMemberships))
	ConnectionsOpen.Dec()
	RoomMemberships.Sub(3)

	// registering twice on the same registry is a programming error
	require.Panics(t, func() { RegisterCollectors(reg) })
}
