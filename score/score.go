/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package score implements the multi-signal weighted scorer, the heart
// of the matching pipeline (spec.md §4.6): three hard gates followed by
// eight weighted, independently-available features, renormalized against
// whatever subset of features could actually be computed.
package score

import (
	"strconv"

	"github.com/davecgh/go-spew/spew"

	"github.com/netforensic/capmaster/connection"
	"github.com/netforensic/capmaster/defaults"
	"github.com/netforensic/capmaster/utils"
)

// Feature weights, per spec.md §4.6 (sum = 1.00).
const (
	weightSynOptions     = 0.25
	weightISNClient      = 0.12
	weightISNServer      = 0.06
	weightTimestamp      = 0.10
	weightPayloadClient  = 0.15
	weightPayloadServer  = 0.08
	weightLengthSig      = 0.08
	weightIPIDIntersect  = 0.16

	lengthSigJaccardFloor = 0.6
)

// Result is the scored outcome for one candidate (a, b) pair.
type Result struct {
	A, B       *connection.TcpConnection
	Raw        float64
	Available  float64
	Normalized float64
	Gated      bool // true if a hard gate rejected the pair outright
	// Evidence is the ordered list of tags naming the signals that
	// contributed to Raw (spec.md §3), or the single hard-gate sentinel
	// ("no-ipid", "no-time-overlap", "no-canonical-tuple") when Gated.
	Evidence []string
}

const (
	evidenceNoIPID           = "no-ipid"
	evidenceNoTimeOverlap    = "no-time-overlap"
	evidenceNoCanonicalTuple = "no-canonical-tuple"

	evidenceSynOptions    = "syn_options"
	evidenceISNClient     = "isn_client"
	evidenceISNServer     = "isn_server"
	evidenceTimestamp     = "timestamp"
	evidencePayloadClient = "payload_client"
	evidencePayloadServer = "payload_server"
	evidenceLengthSig     = "length_signature"
	evidenceIPIDIntersect = "ipid_intersect"
)

// Options controls gate behavior that depends on capture characteristics
// not visible from a single connection pair.
type Options struct {
	// RequireCanonicalTuple enables gate G3 (used when the bucketing
	// strategy already implies tuple equality is meaningful).
	RequireCanonicalTuple bool
	// IPv6Mode controls gate G1's behavior when neither connection has
	// any captured IP-ID (e.g. pure IPv6 traffic), per spec.md §9 Open
	// Questions: "fail-fast" rejects the pair outright, "skip-gate"
	// allows the pair through without the IP-ID requirement.
	IPv6Mode string
	// Debug dumps every scored pair's TcpConnections and Result with
	// spew when set, for --debug runs.
	Debug bool
}

// Score evaluates one candidate pair against the hard gates and weighted
// features, returning a Result with Gated=true if either connection was
// rejected before any feature computation.
func Score(a, b *connection.TcpConnection, opts Options) Result {
	res := Result{A: a, B: b}

	if !gateIPID(a, b, opts) {
		res.Gated = true
		res.Evidence = []string{evidenceNoIPID}
		return debugDump(opts, a, b, res)
	}

	if !gateTimeOverlap(a, b) {
		res.Gated = true
		res.Evidence = []string{evidenceNoTimeOverlap}
		return debugDump(opts, a, b, res)
	}

	if opts.RequireCanonicalTuple && !gateCanonicalTuple(a, b) {
		res.Gated = true
		res.Evidence = []string{evidenceNoCanonicalTuple}
		return debugDump(opts, a, b, res)
	}

	headerOnly := a.IsHeaderOnly || b.IsHeaderOnly

	var raw, available float64
	var evidence []string

	if a.SynOptions != "" && b.SynOptions != "" {
		available += weightSynOptions
		if a.SynOptions == b.SynOptions {
			raw += weightSynOptions
			evidence = append(evidence, evidenceSynOptions)
		}
	}

	if a.ISNClient != nil && b.ISNClient != nil {
		available += weightISNClient
		if *a.ISNClient == *b.ISNClient {
			raw += weightISNClient
			evidence = append(evidence, evidenceISNClient)
		}
	}

	if a.ISNServer != nil && b.ISNServer != nil {
		available += weightISNServer
		if *a.ISNServer == *b.ISNServer {
			raw += weightISNServer
			evidence = append(evidence, evidenceISNServer)
		}
	}

	if hasTimestampSignal(a) || hasTimestampSignal(b) {
		available += weightTimestamp
		if timestampsMatch(a, b) {
			raw += weightTimestamp
			evidence = append(evidence, evidenceTimestamp)
		}
	}

	if !headerOnly {
		if a.PayloadHashClientFirstHi != nil && b.PayloadHashClientFirstHi != nil {
			available += weightPayloadClient
			if *a.PayloadHashClientFirstHi == *b.PayloadHashClientFirstHi && *a.PayloadHashClientFirstLo == *b.PayloadHashClientFirstLo {
				raw += weightPayloadClient
				evidence = append(evidence, evidencePayloadClient)
			}
		}

		if a.PayloadHashServerFirstHi != nil && b.PayloadHashServerFirstHi != nil {
			available += weightPayloadServer
			if *a.PayloadHashServerFirstHi == *b.PayloadHashServerFirstHi && *a.PayloadHashServerFirstLo == *b.PayloadHashServerFirstLo {
				raw += weightPayloadServer
				evidence = append(evidence, evidencePayloadServer)
			}
		}
	}

	if len(a.LengthSignature) > 0 && len(b.LengthSignature) > 0 {
		available += weightLengthSig
		if utils.JaccardStrings(tokenStrings(a), tokenStrings(b)) >= lengthSigJaccardFloor {
			raw += weightLengthSig
			evidence = append(evidence, evidenceLengthSig)
		}
	}

	// G1 already established a non-empty intersection to reach this point.
	available += weightIPIDIntersect
	raw += weightIPIDIntersect
	evidence = append(evidence, evidenceIPIDIntersect)

	res.Raw = raw
	res.Available = available
	res.Evidence = evidence
	if available > 0 {
		res.Normalized = raw / available
	}

	return debugDump(opts, a, b, res)
}

// debugDump spews a, b and res to stdout when opts.Debug is set, then
// returns res unchanged so Score can tail-call it at every return site.
func debugDump(opts Options, a, b *connection.TcpConnection, res Result) Result {
	if opts.Debug {
		spew.Dump(a, b, res)
	}
	return res
}

// gateIPID is G1: the two IP-ID sets must intersect. Connections with no
// captured IP-ID at all (pure IPv6) are handled per opts.IPv6Mode.
func gateIPID(a, b *connection.TcpConnection, opts Options) bool {
	if len(a.IPIDSet) == 0 && len(b.IPIDSet) == 0 {
		return opts.IPv6Mode == "skip-gate"
	}

	return utils.IntersectsUint16(a.IPIDSet, b.IPIDSet)
}

// gateTimeOverlap is G2: observation windows must overlap.
func gateTimeOverlap(a, b *connection.TcpConnection) bool {
	return !(a.LastPacketTime < b.FirstPacketTime || b.LastPacketTime < a.FirstPacketTime)
}

// gateCanonicalTuple is G3: endpoints match as an unordered pair.
func gateCanonicalTuple(a, b *connection.TcpConnection) bool {
	sameOrder := a.ClientIP.Equal(b.ClientIP) && a.ClientPort == b.ClientPort &&
		a.ServerIP.Equal(b.ServerIP) && a.ServerPort == b.ServerPort
	swapped := a.ClientIP.Equal(b.ServerIP) && a.ClientPort == b.ServerPort &&
		a.ServerIP.Equal(b.ClientIP) && a.ServerPort == b.ClientPort

	return sameOrder || swapped
}

// hasTimestampSignal reports whether a connection carries any TCP
// timestamp option data at all.
func hasTimestampSignal(c *connection.TcpConnection) bool {
	return c.TSValFirst != nil || c.TSEcrFirst != nil
}

// timestampsMatch implements the critical tsecr rule (spec.md §4.6): a
// tsecr value of 0 never contributes, since every SYN carries tsecr=0 and
// treating that as a match causes false positives.
func timestampsMatch(a, b *connection.TcpConnection) bool {
	if a.TSValFirst != nil && b.TSValFirst != nil && *a.TSValFirst == *b.TSValFirst {
		return true
	}

	if a.TSEcrFirst != nil && b.TSEcrFirst != nil && *a.TSEcrFirst != 0 && *b.TSEcrFirst != 0 && *a.TSEcrFirst == *b.TSEcrFirst {
		return true
	}

	return false
}

func tokenStrings(c *connection.TcpConnection) []string {
	out := make([]string, len(c.LengthSignature))
	for i, t := range c.LengthSignature {
		out[i] = string(t.Direction) + ":" + strconv.FormatUint(uint64(t.Len), 10)
	}
	return out
}

// Accepted reports whether a Result clears the given threshold.
func (r Result) Accepted(threshold float64) bool {
	return !r.Gated && r.Normalized >= threshold
}

// DefaultThreshold is spec.md §4.6's default acceptance threshold,
// re-exported so callers need not import defaults directly.
const DefaultThreshold = defaults.ScoreThreshold
