package sink

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netforensic/capmaster/aggregate"
	"github.com/netforensic/capmaster/connection"
	"github.com/netforensic/capmaster/diff"
	"github.com/netforensic/capmaster/match"
)

func TestWriteTextRendersMatches(t *testing.T) {
	a := &connection.TcpConnection{File: "a.pcap", StreamID: 1, ClientIP: net.ParseIP("10.0.0.1"), ServerIP: net.ParseIP("10.0.0.2")}
	b := &connection.TcpConnection{File: "b.pcap", StreamID: 2, ClientIP: net.ParseIP("10.0.0.3"), ServerIP: net.ParseIP("10.0.0.4")}

	reports := []MatchReport{{
		Index:      0,
		Match:      match.ConnectionMatch{A: a, B: b, Normalized: 0.92},
		FlowHash:   -123,
		FlowSide:   "LHS_GE_RHS",
		Evidence:   []string{"syn_options equal"},
		DiffCounts: map[diff.Category]int{diff.CategoryFlagMismatch: 2},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reports))
	assert.Contains(t, buf.String(), "a.pcap#1")
	assert.Contains(t, buf.String(), "0.9200")
}

func TestWriteGroupsRendersEndpointTuples(t *testing.T) {
	groups := []aggregate.Group{{
		Key: aggregate.GroupKey{
			A: aggregate.EndpointTuple{ClientIP: "10.0.0.1", ServerIP: "10.0.0.2", ServerPort: 443, Protocol: 6},
			B: aggregate.EndpointTuple{ClientIP: "10.0.0.3", ServerIP: "10.0.0.4", ServerPort: 443, Protocol: 6},
		},
		MatchedCount:      3,
		AverageConfidence: 1.0,
		TTLHopsA:          1,
		TTLHopsB:          2,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteGroups(&buf, groups))
	assert.Contains(t, buf.String(), "10.0.0.2")
	assert.Contains(t, buf.String(), "443")
}
