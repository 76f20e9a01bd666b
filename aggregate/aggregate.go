/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package aggregate groups ConnectionMatch results by the unordered pair
// of endpoint tuples involved, and derives TTL-hop estimates per endpoint
// (spec.md §4.11).
package aggregate

import (
	"net"
	"sort"

	"github.com/netforensic/capmaster/match"
	"github.com/netforensic/capmaster/serverrole"
)

// standardInitialTTLs are the common OS-default starting TTLs; observed
// hop count is the distance to the nearest of these.
var standardInitialTTLs = []uint8{64, 128, 255}

// EndpointTuple is the aggregation key, per spec.md's GLOSSARY:
// (client_ip, server_ip, server_port, protocol).
type EndpointTuple struct {
	ClientIP   string
	ServerIP   string
	ServerPort uint16
	Protocol   uint8
}

func tupleOf(clientIP, serverIP net.IP, serverPort uint16, protocol uint8) EndpointTuple {
	return EndpointTuple{ClientIP: ipStr(clientIP), ServerIP: ipStr(serverIP), ServerPort: serverPort, Protocol: protocol}
}

func ipStr(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

// GroupKey identifies one unordered pair of endpoint tuples, one observed
// in each file.
type GroupKey struct {
	A, B EndpointTuple
}

// Group is the aggregated result for one endpoint-tuple pair.
type Group struct {
	Key              GroupKey
	MatchedCount     int
	AverageConfidence float64
	TTLHopsA, TTLHopsB int
	Reversed         bool // true if this group is the VERY_LOW reversed hypothesis
}

// confidenceValue maps serverrole.Confidence to a float in [0,1] so matches
// from different detector layers can be averaged.
func confidenceValue(c serverrole.Confidence) float64 {
	switch c {
	case serverrole.ConfidenceHigh:
		return 1.0
	case serverrole.ConfidenceMedium:
		return 0.6
	case serverrole.ConfidenceVeryLow:
		return 0.2
	default:
		return 0.0
	}
}

// Input pairs a ConnectionMatch with each side's detected server-role
// confidence and observed TTL, needed to compute hop estimates.
type Input struct {
	Match         match.ConnectionMatch
	ConfidenceA   serverrole.Confidence
	ConfidenceB   serverrole.Confidence
	ObservedTTLA  *uint8
	ObservedTTLB  *uint8
}

// Aggregate groups inputs by endpoint-tuple pair per spec.md §4.11. For
// any input whose minimum confidence across the pair is VERY_LOW, a
// second, reversed-role group is also emitted so downstream tooling can
// weigh both hypotheses.
func Aggregate(inputs []Input) []Group {
	type accum struct {
		count      int
		confSum    float64
		ttlHopsA   []int
		ttlHopsB   []int
		reversed   bool
	}

	groups := make(map[GroupKey]*accum)
	var order []GroupKey

	addTo := func(k GroupKey, conf float64, hopsA, hopsB int, reversed bool) {
		a, ok := groups[k]
		if !ok {
			a = &accum{reversed: reversed}
			groups[k] = a
			order = append(order, k)
		}
		a.count++
		a.confSum += conf
		a.ttlHopsA = append(a.ttlHopsA, hopsA)
		a.ttlHopsB = append(a.ttlHopsB, hopsB)
	}

	const protocolTCP uint8 = 6

	for _, in := range inputs {
		tupleA := tupleOf(in.Match.A.ClientIP, in.Match.A.ServerIP, in.Match.A.ServerPort, protocolTCP)
		tupleB := tupleOf(in.Match.B.ClientIP, in.Match.B.ServerIP, in.Match.B.ServerPort, protocolTCP)

		minConf := in.ConfidenceA
		if in.ConfidenceB < minConf {
			minConf = in.ConfidenceB
		}

		hopsA := ttlHops(in.ObservedTTLA)
		hopsB := ttlHops(in.ObservedTTLB)

		key := canonicalKey(tupleA, tupleB)
		addTo(key, confidenceValue(minConf), hopsA, hopsB, false)

		if minConf == serverrole.ConfidenceVeryLow {
			// reversed hypothesis: swap client/server roles on each side.
			reversedA := tupleOf(in.Match.A.ServerIP, in.Match.A.ClientIP, in.Match.A.ClientPort, protocolTCP)
			reversedB := tupleOf(in.Match.B.ServerIP, in.Match.B.ClientIP, in.Match.B.ClientPort, protocolTCP)
			reversedKey := canonicalKey(reversedA, reversedB)
			addTo(reversedKey, confidenceValue(minConf), hopsA, hopsB, true)
		}
	}

	out := make([]Group, 0, len(order))
	for _, k := range order {
		a := groups[k]
		out = append(out, Group{
			Key:               k,
			MatchedCount:      a.count,
			AverageConfidence: a.confSum / float64(a.count),
			TTLHopsA:          meanInt(a.ttlHopsA),
			TTLHopsB:          meanInt(a.ttlHopsB),
			Reversed:          a.reversed,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.A != out[j].Key.A {
			return tupleLess(out[i].Key.A, out[j].Key.A)
		}
		return tupleLess(out[i].Key.B, out[j].Key.B)
	})

	return out
}

// canonicalKey orders the pair so the group is direction-agnostic.
func canonicalKey(a, b EndpointTuple) GroupKey {
	if tupleLess(b, a) {
		a, b = b, a
	}
	return GroupKey{A: a, B: b}
}

func tupleLess(a, b EndpointTuple) bool {
	if a.ClientIP != b.ClientIP {
		return a.ClientIP < b.ClientIP
	}
	if a.ServerIP != b.ServerIP {
		return a.ServerIP < b.ServerIP
	}
	if a.ServerPort != b.ServerPort {
		return a.ServerPort < b.ServerPort
	}
	return a.Protocol < b.Protocol
}

// ttlHops computes |nearest_standard_initial_TTL(x) - observed_TTL|.
func ttlHops(observed *uint8) int {
	if observed == nil {
		return 0
	}

	best := -1
	for _, std := range standardInitialTTLs {
		d := int(std) - int(*observed)
		if d < 0 {
			d = -d
		}
		if best == -1 || d < best {
			best = d
		}
	}
	return best
}

func meanInt(vals []int) int {
	if len(vals) == 0 {
		return 0
	}
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return sum / len(vals)
}
