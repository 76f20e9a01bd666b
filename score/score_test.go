package score

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netforensic/capmaster/connection"
)

func u32p(v uint32) *uint32 { return &v }
func u64p(v uint64) *uint64 { return &v }

func baseConn(ipid uint16) *connection.TcpConnection {
	return &connection.TcpConnection{
		ClientIP: net.ParseIP("10.0.0.1"), ClientPort: 40000,
		ServerIP: net.ParseIP("10.0.0.2"), ServerPort: 443,
		FirstPacketTime: 1_000_000_000,
		LastPacketTime:  2_000_000_000,
		SynOptions:      "mss=1460;ws=7;sack=1;ts=1",
		ISNClient:       u32p(1000),
		ISNServer:       u32p(5000),
		IPIDSet:         map[uint16]struct{}{ipid: {}},
	}
}

func TestScoreGateIPIDRejectsDisjointSets(t *testing.T) {
	a := baseConn(1)
	b := baseConn(2)

	res := Score(a, b, Options{})
	assert.True(t, res.Gated)
	assert.Equal(t, float64(0), res.Normalized)
}

func TestScoreGateTimeOverlapRejectsNonOverlapping(t *testing.T) {
	a := baseConn(1)
	b := baseConn(1)
	b.FirstPacketTime = 3_000_000_000
	b.LastPacketTime = 4_000_000_000

	res := Score(a, b, Options{})
	assert.True(t, res.Gated)
}

func TestScorePerfectMatchIsFullyNormalized(t *testing.T) {
	a := baseConn(1)
	b := baseConn(1)

	res := Score(a, b, Options{})
	assert.False(t, res.Gated)
	assert.InDelta(t, 1.0, res.Normalized, 1e-9)
	assert.True(t, res.Accepted(0.60))
}

func TestScoreTsecrZeroDoesNotContribute(t *testing.T) {
	a := baseConn(1)
	a.TSEcrFirst = u32p(0)
	b := baseConn(1)
	b.TSEcrFirst = u32p(0)

	res := Score(a, b, Options{})
	// timestamp feature is "available" (tsecr present on both) but the
	// zero-tsecr rule must prevent it from contributing to raw.
	assert.False(t, res.Gated)
	assert.Less(t, res.Raw, res.Available)
}

func TestScoreHeaderOnlyDropsPayloadWeights(t *testing.T) {
	a := baseConn(1)
	a.IsHeaderOnly = true
	a.PayloadHashClientFirstHi, a.PayloadHashClientFirstLo = u64p(1), u64p(2)
	b := baseConn(1)
	b.PayloadHashClientFirstHi, b.PayloadHashClientFirstLo = u64p(1), u64p(2)

	res := Score(a, b, Options{})
	assert.False(t, res.Gated)
	// payload weight must not appear in the available denominator at all.
	assert.InDelta(t, 1.0, res.Normalized, 1e-9)
}

func TestScoreMismatchedSynOptionsLowersScore(t *testing.T) {
	a := baseConn(1)
	b := baseConn(1)
	b.SynOptions = "mss=1400;ws=6;sack=0;ts=0"

	res := Score(a, b, Options{})
	assert.False(t, res.Gated)
	assert.Less(t, res.Normalized, 1.0)
}
