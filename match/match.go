/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package match assigns scored candidate pairs into ConnectionMatches,
// per spec.md §4.7: a deterministic greedy one-to-one assignment, or an
// unconstrained one-to-many acceptance mode.
package match

import (
	"sort"

	"github.com/netforensic/capmaster/bucket"
	"github.com/netforensic/capmaster/connection"
	"github.com/netforensic/capmaster/score"
)

// Mode selects the assignment strategy.
type Mode string

const (
	ModeOneToOne  Mode = "one-to-one"
	ModeOneToMany Mode = "one-to-many"
)

// ConnectionMatch pairs one connection from each side with its score.
type ConnectionMatch struct {
	A, B       *connection.TcpConnection
	Normalized float64
	Evidence   []string
}

// Stats summarizes a matching run, per spec.md §4.7.
type Stats struct {
	Total              int
	AverageScore       float64
	UniqueMatchedA     int
	UniqueMatchedB     int
	MaxMatchesPerConn  int
	AverageMatchesPerConn float64
}

// Match scores every candidate pair within each bucket and assigns
// matches per mode.
func Match(pairs []bucket.Pair, mode Mode, threshold float64, opts score.Options) ([]ConnectionMatch, Stats) {
	var candidates []score.Result

	for _, p := range pairs {
		for _, a := range p.A {
			for _, b := range p.B {
				res := score.Score(a, b, opts)
				if res.Gated || !res.Accepted(threshold) {
					continue
				}
				candidates = append(candidates, res)
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.Normalized != cj.Normalized {
			return ci.Normalized > cj.Normalized
		}
		if ci.A.StreamID != cj.A.StreamID {
			return ci.A.StreamID < cj.A.StreamID
		}
		return ci.B.StreamID < cj.B.StreamID
	})

	var matches []ConnectionMatch

	switch mode {
	case ModeOneToMany:
		for _, c := range candidates {
			matches = append(matches, ConnectionMatch{A: c.A, B: c.B, Normalized: c.Normalized, Evidence: c.Evidence})
		}
	default: // ModeOneToOne
		usedA := make(map[uint32]bool)
		usedB := make(map[uint32]bool)
		for _, c := range candidates {
			if usedA[c.A.StreamID] || usedB[c.B.StreamID] {
				continue
			}
			usedA[c.A.StreamID] = true
			usedB[c.B.StreamID] = true
			matches = append(matches, ConnectionMatch{A: c.A, B: c.B, Normalized: c.Normalized, Evidence: c.Evidence})
		}
	}

	return matches, computeStats(matches)
}

func computeStats(matches []ConnectionMatch) Stats {
	var s Stats
	s.Total = len(matches)
	if s.Total == 0 {
		return s
	}

	countA := make(map[uint32]int)
	countB := make(map[uint32]int)
	var scoreSum float64

	for _, m := range matches {
		scoreSum += m.Normalized
		countA[m.A.StreamID]++
		countB[m.B.StreamID]++
	}

	s.AverageScore = scoreSum / float64(s.Total)
	s.UniqueMatchedA = len(countA)
	s.UniqueMatchedB = len(countB)

	var sumPerConn, maxPerConn int
	for _, c := range countA {
		sumPerConn += c
		if c > maxPerConn {
			maxPerConn = c
		}
	}
	for _, c := range countB {
		if c > maxPerConn {
			maxPerConn = c
		}
	}

	s.MaxMatchesPerConn = maxPerConn
	if len(countA) > 0 {
		s.AverageMatchesPerConn = float64(sumPerConn) / float64(len(countA))
	}

	return s
}
