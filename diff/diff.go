/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package diff implements the per-packet comparison stage run in compare
// mode (spec.md §4.9): once two streams are matched, their packets are
// paired by (direction, ip_id) and checked for flag, sequence, and count
// discrepancies.
package diff

import (
	"fmt"
	"sort"

	"github.com/netforensic/capmaster/tsv"
)

// Category names one kind of packet discrepancy.
type Category string

const (
	CategoryOnlyInA       Category = "only_in_a"
	CategoryOnlyInB       Category = "only_in_b"
	CategoryCountMismatch Category = "count_mismatch"
	CategoryFlagMismatch  Category = "flag_mismatch"
	CategorySeqMismatch   Category = "seq_mismatch"
)

// Finding is one emitted discrepancy.
type Finding struct {
	Category      Category
	Direction     byte
	IPID          uint16
	FrameA, FrameB uint64
	Before, After string // literal before/after values for mismatches
}

// FlagChange is one entry in the per-pair flag-transition histogram.
type FlagChange struct {
	From, To        uint8
	Count           int
	SampleFrameA    uint64
	SampleFrameB    uint64
}

// Result is the full packet-differ output for one matched pair.
type Result struct {
	Findings    []Finding
	FlagChanges []FlagChange
}

type key struct {
	direction byte
	ipid      uint16
}

// Diff compares the packet records of two matched streams, recsA and
// recsB, each already ordered by frame number (the order the dissector
// emits rows in within a stream). directionOf assigns each record its
// 'C' or 'S' direction, the same way connection.Builder computes it.
// Records without an IP-ID are skipped.
func Diff(recsA, recsB []*tsv.PacketRecord, directionOf func(*tsv.PacketRecord) byte) Result {
	mapA := groupByKey(recsA, directionOf)
	mapB := groupByKey(recsB, directionOf)

	var res Result
	histogram := make(map[[2]uint8]*FlagChange)

	keys := unionKeys(mapA, mapB)
	for _, k := range keys {
		listA, okA := mapA[k]
		listB, okB := mapB[k]

		switch {
		case okA && !okB:
			for _, r := range listA {
				res.Findings = append(res.Findings, Finding{Category: CategoryOnlyInA, Direction: k.direction, IPID: k.ipid, FrameA: r.FrameNumber})
			}
			continue
		case !okA && okB:
			for _, r := range listB {
				res.Findings = append(res.Findings, Finding{Category: CategoryOnlyInB, Direction: k.direction, IPID: k.ipid, FrameB: r.FrameNumber})
			}
			continue
		}

		if len(listA) != len(listB) {
			res.Findings = append(res.Findings, Finding{
				Category: CategoryCountMismatch, Direction: k.direction, IPID: k.ipid,
				Before: fmt.Sprintf("%d", len(listA)), After: fmt.Sprintf("%d", len(listB)),
			})
		}

		n := len(listA)
		if len(listB) < n {
			n = len(listB)
		}

		for i := 0; i < n; i++ {
			a, b := listA[i], listB[i]

			if a.Flags != b.Flags {
				res.Findings = append(res.Findings, Finding{
					Category: CategoryFlagMismatch, Direction: k.direction, IPID: k.ipid,
					FrameA: a.FrameNumber, FrameB: b.FrameNumber,
					Before: fmt.Sprintf("0x%02x", a.Flags), After: fmt.Sprintf("0x%02x", b.Flags),
				})

				hk := [2]uint8{a.Flags, b.Flags}
				if fc, ok := histogram[hk]; ok {
					fc.Count++
				} else {
					histogram[hk] = &FlagChange{From: a.Flags, To: b.Flags, Count: 1, SampleFrameA: a.FrameNumber, SampleFrameB: b.FrameNumber}
				}
			}

			if a.Seq != b.Seq {
				res.Findings = append(res.Findings, Finding{
					Category: CategorySeqMismatch, Direction: k.direction, IPID: k.ipid,
					FrameA: a.FrameNumber, FrameB: b.FrameNumber,
					Before: fmt.Sprintf("%d", a.Seq), After: fmt.Sprintf("%d", b.Seq),
				})
			}
		}
	}

	for _, fc := range histogram {
		res.FlagChanges = append(res.FlagChanges, *fc)
	}
	sort.Slice(res.FlagChanges, func(i, j int) bool {
		if res.FlagChanges[i].From != res.FlagChanges[j].From {
			return res.FlagChanges[i].From < res.FlagChanges[j].From
		}
		return res.FlagChanges[i].To < res.FlagChanges[j].To
	})

	return res
}

func groupByKey(recs []*tsv.PacketRecord, directionOf func(*tsv.PacketRecord) byte) map[key][]*tsv.PacketRecord {
	out := make(map[key][]*tsv.PacketRecord)
	for _, r := range recs {
		if r.IPID == nil {
			continue
		}
		k := key{direction: directionOf(r), ipid: *r.IPID}
		out[k] = append(out[k], r)
	}
	return out
}

func unionKeys(a, b map[key][]*tsv.PacketRecord) []key {
	seen := make(map[key]struct{}, len(a)+len(b))
	var out []key
	for k := range a {
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].direction != out[j].direction {
			return out[i].direction < out[j].direction
		}
		return out[i].ipid < out[j].ipid
	})
	return out
}

// FormatFlagChange renders the "0x0002->0x0010" style label (four hex
// digits per side) used by the database sink's tcp_flags_different_type
// column.
func FormatFlagChange(from, to uint8) string {
	return fmt.Sprintf("0x%04x->0x%04x", from, to)
}
