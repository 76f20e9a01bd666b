/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package sink renders match output, per spec.md §4.12: a paginated
// textual report via the teacher's table-printing library, and an
// optional SQL database write-through for compare mode (§6.3).
package sink

import (
	"fmt"
	"io"
	"sort"

	"github.com/evilsocket/islazy/tui"

	"github.com/netforensic/capmaster/aggregate"
	"github.com/netforensic/capmaster/diff"
	"github.com/netforensic/capmaster/match"
)

// MatchReport is one rendered match entry, carrying everything the
// textual report needs per spec.md §4.12: pair index, scored features,
// an evidence list, the flow hash with its side tag, and packet-diff counts.
type MatchReport struct {
	Index      int
	Match      match.ConnectionMatch
	FlowHash   int64
	FlowSide   string
	Evidence   []string
	DiffCounts map[diff.Category]int
}

// WriteText renders reports as a sequence of small evidence tables, the
// way the teacher's audit-record CLI renders one tui.Table per record
// rather than one giant table for the whole run.
func WriteText(w io.Writer, reports []MatchReport) error {
	for _, r := range reports {
		header := []string{"field", "value"}

		rows := [][]string{
			{"pair", fmt.Sprintf("#%d", r.Index)},
			{"stream_a", r.Match.A.Ident()},
			{"stream_b", r.Match.B.Ident()},
			{"score", fmt.Sprintf("%.4f", r.Match.Normalized)},
			{"flow_hash", fmt.Sprintf("%d (%s)", r.FlowHash, r.FlowSide)},
		}

		for _, cat := range sortedCategories(r.DiffCounts) {
			rows = append(rows, []string{"diff:" + string(cat), fmt.Sprintf("%d", r.DiffCounts[cat])})
		}

		for _, e := range r.Evidence {
			rows = append(rows, []string{"evidence", e})
		}

		tui.Table(w, header, rows)
	}

	return nil
}

// WriteGroups renders the endpoint-aggregation summary (spec.md §4.11) as
// one table, one row per endpoint-tuple pair.
func WriteGroups(w io.Writer, groups []aggregate.Group) error {
	header := []string{"client_a", "server_a", "client_b", "server_b", "port", "matches", "avg_confidence", "ttl_hops_a", "ttl_hops_b", "reversed"}

	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{
			g.Key.A.ClientIP, g.Key.A.ServerIP,
			g.Key.B.ClientIP, g.Key.B.ServerIP,
			fmt.Sprintf("%d", g.Key.A.ServerPort),
			fmt.Sprintf("%d", g.MatchedCount),
			fmt.Sprintf("%.2f", g.AverageConfidence),
			fmt.Sprintf("%d", g.TTLHopsA),
			fmt.Sprintf("%d", g.TTLHopsB),
			fmt.Sprintf("%t", g.Reversed),
		})
	}

	tui.Table(w, header, rows)

	return nil
}

func sortedCategories(counts map[diff.Category]int) []diff.Category {
	out := make([]diff.Category, 0, len(counts))
	for c := range counts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
