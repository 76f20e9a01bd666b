/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package serverrole infers which endpoint of a TcpConnection is the
// server, per spec.md §4.3: a fixed-priority chain of strategy functions,
// each returning an (Info, bool) verdict, consulted in order until one
// reports a hit. The strategies are plain functions with differing
// parameter lists; they do not share a common interface type. The
// cardinality/port-reuse tables referenced by later strategies are
// per-invocation, built once in a first pass and frozen before detection
// runs (spec.md §9 "Global mutable state").
package serverrole

import (
	"net"

	"github.com/netforensic/capmaster/connection"
)

// Confidence ranks how strongly a strategy believes in its verdict.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceVeryLow
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "HIGH"
	case ConfidenceMedium:
		return "MEDIUM"
	case ConfidenceVeryLow:
		return "VERY_LOW"
	default:
		return "NONE"
	}
}

// Info is the verdict a strategy returns: which side (by IP+port) is the
// server, at what confidence.
type Info struct {
	ServerIP    net.IP
	ServerPort  uint16
	Confidence  Confidence
	Strategy    string
}

// wellKnownPorts is the IANA 0-1023 range, treated as a range rather than
// enumerated table.
func isWellKnownPort(port uint16) bool { return port <= 1023 }

// extendedDatabasePorts are common non-IANA-reserved server ports
// (spec.md §4.3 "extended database ports").
var extendedDatabasePorts = map[uint16]struct{}{
	1433: {}, 1521: {}, 3306: {}, 5432: {}, 6379: {}, 27017: {},
}

// GlobalState is the per-invocation, frozen-before-use lookup built from
// every connection in one capture file (spec.md §4.3 cardinality/port
// reuse/port stability layers; §9 "no process-wide singletons").
type GlobalState struct {
	// peersByEndpoint counts distinct peer IPs seen talking to (ip,port).
	peersByEndpoint map[endpointKey]map[string]struct{}
	// serverIPsByPort counts distinct IPs observed using a port as *their own* port.
	serverIPsByPort map[uint16]map[string]struct{}
	// peerPortsByEndpoint counts distinct peer ports seen talking to (ip,port).
	peerPortsByEndpoint map[endpointKey]map[uint16]struct{}
}

type endpointKey struct {
	ip   string
	port uint16
}

// BuildGlobalState scans every connection once to build the frozen
// cardinality tables the later strategies consult.
func BuildGlobalState(conns []*connection.TcpConnection) *GlobalState {
	gs := &GlobalState{
		peersByEndpoint:     make(map[endpointKey]map[string]struct{}),
		serverIPsByPort:     make(map[uint16]map[string]struct{}),
		peerPortsByEndpoint: make(map[endpointKey]map[uint16]struct{}),
	}

	record := func(hostIP net.IP, hostPort uint16, peerIP net.IP, peerPort uint16) {
		if hostIP == nil {
			return
		}

		key := endpointKey{ip: hostIP.String(), port: hostPort}

		if gs.peersByEndpoint[key] == nil {
			gs.peersByEndpoint[key] = make(map[string]struct{})
		}
		if peerIP != nil {
			gs.peersByEndpoint[key][peerIP.String()] = struct{}{}
		}

		if gs.serverIPsByPort[hostPort] == nil {
			gs.serverIPsByPort[hostPort] = make(map[string]struct{})
		}
		gs.serverIPsByPort[hostPort][hostIP.String()] = struct{}{}

		if gs.peerPortsByEndpoint[key] == nil {
			gs.peerPortsByEndpoint[key] = make(map[uint16]struct{})
		}
		gs.peerPortsByEndpoint[key][peerPort] = struct{}{}
	}

	for _, c := range conns {
		// treat both endpoints symmetrically; the detector decides direction later.
		record(c.ClientIP, c.ClientPort, c.ServerIP, c.ServerPort)
		record(c.ServerIP, c.ServerPort, c.ClientIP, c.ClientPort)
	}

	return gs
}

// Detect runs the fixed-priority strategy chain and returns the first
// hit, per spec.md §4.3. sideA/sideB are the two (unordered)
// sides of the connection as observed (typically ClientIP/Port and
// ServerIP/Port from the pre-assignment in connection.Builder, which
// CapMaster treats only as "side A" / "side B" here since the detector
// is the authority on server role).
func Detect(c *connection.TcpConnection, hadSYN bool, gs *GlobalState) Info {
	sideA, sideB := endpointKey{ip: ipString(c.ClientIP), port: c.ClientPort}, endpointKey{ip: ipString(c.ServerIP), port: c.ServerPort}

	if info, ok := bySYNDirection(c, hadSYN); ok {
		return info
	}

	if info, ok := byWellKnownPort(c); ok {
		return info
	}

	if info, ok := byCardinality(c, sideA, sideB, gs); ok {
		return info
	}

	if info, ok := byPortReuse(c, sideA, sideB, gs); ok {
		return info
	}

	if info, ok := byPortStability(c, sideA, sideB, gs); ok {
		return info
	}

	return byPortComparisonFallback(c)
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

// bySYNDirection is layer 1 (HIGH): the SYN-without-ACK destination is
// the server. connection.Builder already assigns ClientIP/ServerIP this
// way when a SYN was observed, so this strategy simply confirms it.
func bySYNDirection(c *connection.TcpConnection, hadSYN bool) (Info, bool) {
	if !hadSYN {
		return Info{}, false
	}

	return Info{ServerIP: c.ServerIP, ServerPort: c.ServerPort, Confidence: ConfidenceHigh, Strategy: "syn-direction"}, true
}

// byWellKnownPort is layer 2: IANA 0-1023 is HIGH confidence; the
// extended database-port table is MEDIUM.
func byWellKnownPort(c *connection.TcpConnection) (Info, bool) {
	if isWellKnownPort(c.ServerPort) {
		return Info{ServerIP: c.ServerIP, ServerPort: c.ServerPort, Confidence: ConfidenceHigh, Strategy: "well-known-port"}, true
	}
	if isWellKnownPort(c.ClientPort) {
		return Info{ServerIP: c.ClientIP, ServerPort: c.ClientPort, Confidence: ConfidenceHigh, Strategy: "well-known-port"}, true
	}

	if _, ok := extendedDatabasePorts[c.ServerPort]; ok {
		return Info{ServerIP: c.ServerIP, ServerPort: c.ServerPort, Confidence: ConfidenceMedium, Strategy: "well-known-port"}, true
	}
	if _, ok := extendedDatabasePorts[c.ClientPort]; ok {
		return Info{ServerIP: c.ClientIP, ServerPort: c.ClientPort, Confidence: ConfidenceMedium, Strategy: "well-known-port"}, true
	}

	return Info{}, false
}

// byCardinality is layer 3: the endpoint serving more distinct peer IPs
// is more likely the server.
func byCardinality(c *connection.TcpConnection, a, b endpointKey, gs *GlobalState) (Info, bool) {
	peersA := len(gs.peersByEndpoint[a])
	peersB := len(gs.peersByEndpoint[b])

	high := func(server, client int) bool { return server >= 5 && client < 2 }
	medium := func(server, client int) bool {
		if server >= 2 && server <= 4 && client < 2 {
			return true
		}
		if client == 0 {
			return false
		}
		return float64(server)/float64(client) >= 3.0
	}

	if high(peersA, peersB) {
		return Info{ServerIP: c.ClientIP, ServerPort: c.ClientPort, Confidence: ConfidenceHigh, Strategy: "cardinality"}, true
	}
	if high(peersB, peersA) {
		return Info{ServerIP: c.ServerIP, ServerPort: c.ServerPort, Confidence: ConfidenceHigh, Strategy: "cardinality"}, true
	}
	if medium(peersA, peersB) {
		return Info{ServerIP: c.ClientIP, ServerPort: c.ClientPort, Confidence: ConfidenceMedium, Strategy: "cardinality"}, true
	}
	if medium(peersB, peersA) {
		return Info{ServerIP: c.ServerIP, ServerPort: c.ServerPort, Confidence: ConfidenceMedium, Strategy: "cardinality"}, true
	}

	return Info{}, false
}

// byPortReuse is layer 4 (MEDIUM): a port used by >=2 distinct server IPs
// across the file looks like a service port.
func byPortReuse(c *connection.TcpConnection, a, b endpointKey, gs *GlobalState) (Info, bool) {
	reuseA := len(gs.serverIPsByPort[a.port]) >= 2
	reuseB := len(gs.serverIPsByPort[b.port]) >= 2

	if reuseA && !reuseB {
		return Info{ServerIP: c.ClientIP, ServerPort: c.ClientPort, Confidence: ConfidenceMedium, Strategy: "port-reuse"}, true
	}
	if reuseB && !reuseA {
		return Info{ServerIP: c.ServerIP, ServerPort: c.ServerPort, Confidence: ConfidenceMedium, Strategy: "port-reuse"}, true
	}

	return Info{}, false
}

// byPortStability is layer 5 (MEDIUM): an endpoint contacted on >=2
// distinct peer ports while the other side only ever uses one port looks
// like the client (less "stable" port usage from the peer's perspective
// means the OTHER side is the stable, server-like one).
func byPortStability(c *connection.TcpConnection, a, b endpointKey, gs *GlobalState) (Info, bool) {
	portsSeenByPeersOfA := len(gs.peerPortsByEndpoint[a])
	portsSeenByPeersOfB := len(gs.peerPortsByEndpoint[b])

	if portsSeenByPeersOfA >= 2 && portsSeenByPeersOfB == 1 {
		return Info{ServerIP: c.ServerIP, ServerPort: c.ServerPort, Confidence: ConfidenceMedium, Strategy: "port-stability"}, true
	}
	if portsSeenByPeersOfB >= 2 && portsSeenByPeersOfA == 1 {
		return Info{ServerIP: c.ClientIP, ServerPort: c.ClientPort, Confidence: ConfidenceMedium, Strategy: "port-stability"}, true
	}

	return Info{}, false
}

// byPortComparisonFallback is layer 6 (VERY_LOW): the lower-numbered port
// wins. The aggregator is responsible for also emitting the reversed
// interpretation for VERY_LOW verdicts (spec.md §4.3, §4.11).
func byPortComparisonFallback(c *connection.TcpConnection) Info {
	if c.ClientPort < c.ServerPort {
		return Info{ServerIP: c.ClientIP, ServerPort: c.ClientPort, Confidence: ConfidenceVeryLow, Strategy: "port-comparison"}
	}

	return Info{ServerIP: c.ServerIP, ServerPort: c.ServerPort, Confidence: ConfidenceVeryLow, Strategy: "port-comparison"}
}
