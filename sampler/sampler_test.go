package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netforensic/capmaster/connection"
)

func makeConns(n int) []*connection.TcpConnection {
	out := make([]*connection.TcpConnection, n)
	for i := 0; i < n; i++ {
		out[i] = &connection.TcpConnection{
			StreamID:        uint32(i),
			FirstPacketTime: int64(i) * int64(1e9),
			PacketCount:     50,
		}
	}
	return out
}

func TestSampleBelowThresholdIsNoop(t *testing.T) {
	conns := makeConns(10)
	out := Sample(conns, "a.pcap", Options{Enabled: true, Threshold: 1000})
	assert.Len(t, out, 10)
}

func TestSampleDisabledIsNoop(t *testing.T) {
	conns := makeConns(2000)
	out := Sample(conns, "a.pcap", Options{Enabled: false})
	assert.Len(t, out, 2000)
}

func TestSampleReducesAndIsDeterministic(t *testing.T) {
	conns := makeConns(5000)

	out1 := Sample(conns, "a.pcap", Options{Enabled: true, Threshold: 1000, Rate: 0.1})
	out2 := Sample(conns, "a.pcap", Options{Enabled: true, Threshold: 1000, Rate: 0.1})

	require.True(t, len(out1) < len(conns))
	require.Equal(t, len(out1), len(out2))

	ids1, ids2 := make([]uint32, len(out1)), make([]uint32, len(out2))
	for i, c := range out1 {
		ids1[i] = c.StreamID
	}
	for i, c := range out2 {
		ids2[i] = c.StreamID
	}
	assert.Equal(t, ids1, ids2)
}

func TestSamplePreservesMinority(t *testing.T) {
	conns := makeConns(5000)
	// mark a handful as minority outliers by packet count.
	conns[0].PacketCount = 1
	conns[1].PacketCount = 600

	out := Sample(conns, "a.pcap", Options{Enabled: true, Threshold: 1000, Rate: 0.1})

	seen := map[uint32]bool{}
	for _, c := range out {
		seen[c.StreamID] = true
	}
	assert.True(t, seen[0])
	assert.True(t, seen[1])
}

func TestSeedFromPathIsStable(t *testing.T) {
	assert.Equal(t, SeedFromPath("x.pcap"), SeedFromPath("x.pcap"))
	assert.NotEqual(t, SeedFromPath("x.pcap"), SeedFromPath("y.pcap"))
}
