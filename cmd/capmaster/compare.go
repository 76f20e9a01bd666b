/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netforensic/capmaster/diff"
	"github.com/netforensic/capmaster/flowhash"
	"github.com/netforensic/capmaster/internal/config"
	"github.com/netforensic/capmaster/orchestrator"
	"github.com/netforensic/capmaster/sink"
)

func newCompareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <capture-a> <capture-b>",
		Short: "Correlate and packet-diff TCP connections across two captures",
		Args:  exactTwoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			res, err := orchestrator.New(cfg).Compare(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			if res.Stats.Total == 0 {
				fmt.Fprintln(os.Stderr, "no matches above threshold")
				os.Exit(exitRecoverable)
			}

			reports := make([]sink.MatchReport, len(res.Matches))
			for i, m := range res.Matches {
				reports[i] = sink.MatchReport{
					Index:      i,
					Match:      m,
					FlowHash:   res.FlowHash[i],
					FlowSide:   flowSideLabel(res.FlowSide[i]),
					Evidence:   m.Evidence,
					DiffCounts: diffCounts(res.Diffs[i]),
				}
			}

			if err := wrapWriteError(sink.WriteText(cmd.OutOrStdout(), reports)); err != nil {
				return err
			}

			if err := wrapWriteError(sink.WriteGroups(cmd.OutOrStdout(), res.Groups)); err != nil {
				return err
			}

			if cfg.DBDSN == "" {
				return nil
			}

			return writeCompareRows(cmd.Context(), cfg, res)
		},
	}
}

func flowSideLabel(s flowhash.FlowSide) string {
	if s == flowhash.SideLHSGreaterOrEqual {
		return "lhs_ge_rhs"
	}
	return "rhs_gt_lhs"
}

func diffCounts(r diff.Result) map[diff.Category]int {
	counts := make(map[diff.Category]int, len(r.Findings))
	for _, f := range r.Findings {
		counts[f.Category]++
	}
	return counts
}

// writeCompareRows maps one CompareResult into the compare write-through
// schema (spec.md §6.3) and writes them through the DB sink in a single
// batch: two rows per match, one per capture side, sharing the match's
// flow hash and diff-derived counters.
func writeCompareRows(ctx context.Context, cfg *config.Config, res orchestrator.CompareResult) error {
	db, err := sink.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	rows := make([]sink.Row, 0, len(res.Matches)*2)

	for i, m := range res.Matches {
		d := res.Diffs[i]

		var flagTexts, seqTexts []string
		for _, f := range d.Findings {
			switch f.Category {
			case diff.CategoryFlagMismatch:
				flagTexts = append(flagTexts, fmt.Sprintf("ipid=%d before=%s after=%s", f.IPID, f.Before, f.After))
			case diff.CategorySeqMismatch:
				seqTexts = append(seqTexts, fmt.Sprintf("ipid=%d before=%s after=%s", f.IPID, f.Before, f.After))
			}
		}

		base := sink.Row{
			FlowHash:               res.FlowHash[i],
			TCPFlagsDifferentCount: int64(len(d.FlagChanges)),
			TCPFlagsDifferentType:  dominantFlagChange(d.FlagChanges),
			TCPFlagsDifferentText:  sink.JoinSemicolon(flagTexts),
			SeqNumDifferentCount:   int64(countCategory(d, diff.CategorySeqMismatch)),
			SeqNumDifferentText:    sink.JoinSemicolon(seqTexts),
		}

		a := base
		a.PcapID = 0
		a.FirstTime = m.A.FirstPacketTime
		a.LastTime = m.A.LastPacketTime

		b := base
		b.PcapID = 1
		b.FirstTime = m.B.FirstPacketTime
		b.LastTime = m.B.LastPacketTime

		rows = append(rows, a, b)
	}

	return db.WriteBatch(ctx, cfg.CaseID, rows)
}

// dominantFlagChange renders the single most-frequent flag transition, per
// SPEC_FULL.md's "tcp_flags_different_type holds one dominant-change
// string" requirement. Ties break on (From, To) ascending, matching
// diff.Result's own histogram ordering.
func dominantFlagChange(changes []diff.FlagChange) string {
	if len(changes) == 0 {
		return ""
	}

	best := changes[0]
	for _, fc := range changes[1:] {
		if fc.Count > best.Count {
			best = fc
			continue
		}
		if fc.Count == best.Count {
			if fc.From < best.From || (fc.From == best.From && fc.To < best.To) {
				best = fc
			}
		}
	}

	return diff.FormatFlagChange(best.From, best.To)
}

func countCategory(r diff.Result, cat diff.Category) int {
	n := 0
	for _, f := range r.Findings {
		if f.Category == cat {
			n++
		}
	}
	return n
}
