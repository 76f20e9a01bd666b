package match

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netforensic/capmaster/bucket"
	"github.com/netforensic/capmaster/connection"
	"github.com/netforensic/capmaster/score"
)

func conn(streamID uint32, ipid uint16) *connection.TcpConnection {
	return &connection.TcpConnection{
		StreamID: streamID,
		ClientIP: net.ParseIP("10.0.0.1"), ClientPort: 40000,
		ServerIP: net.ParseIP("10.0.0.2"), ServerPort: 443,
		FirstPacketTime: 1_000_000_000,
		LastPacketTime:  2_000_000_000,
		SynOptions:      "mss=1460;ws=7;sack=1;ts=1",
		IPIDSet:         map[uint16]struct{}{ipid: {}},
	}
}

func TestMatchOneToOneAssignsEachEndpointOnce(t *testing.T) {
	a1, a2 := conn(1, 1), conn(2, 1)
	b1 := conn(10, 1)

	pairs := []bucket.Pair{{A: []*connection.TcpConnection{a1, a2}, B: []*connection.TcpConnection{b1}}}

	matches, stats := Match(pairs, ModeOneToOne, 0.1, score.Options{})
	require.Len(t, matches, 1)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.UniqueMatchedB)
}

func TestMatchOneToManyAllowsReuse(t *testing.T) {
	a1 := conn(1, 1)
	b1, b2 := conn(10, 1), conn(11, 1)

	pairs := []bucket.Pair{{A: []*connection.TcpConnection{a1}, B: []*connection.TcpConnection{b1, b2}}}

	matches, stats := Match(pairs, ModeOneToMany, 0.1, score.Options{})
	require.Len(t, matches, 2)
	assert.Equal(t, 2, stats.MaxMatchesPerConn)
}

func TestMatchGatedPairIsExcluded(t *testing.T) {
	a1 := conn(1, 1)
	b1 := conn(10, 2) // disjoint IP-ID set -> gated

	pairs := []bucket.Pair{{A: []*connection.TcpConnection{a1}, B: []*connection.TcpConnection{b1}}}

	matches, stats := Match(pairs, ModeOneToOne, 0.6, score.Options{})
	assert.Empty(t, matches)
	assert.Equal(t, 0, stats.Total)
}
