/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netforensic/capmaster/internal/errs"
	"github.com/netforensic/capmaster/orchestrator"
	"github.com/netforensic/capmaster/sink"
)

func newMatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "match <capture-a> <capture-b>",
		Short: "Correlate TCP connections across two captures",
		Args:  exactTwoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			res, err := orchestrator.New(cfg).Match(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			if res.Stats.Total == 0 {
				fmt.Fprintln(os.Stderr, "no matches above threshold")
				os.Exit(exitRecoverable)
			}

			reports := make([]sink.MatchReport, len(res.Matches))
			for i, m := range res.Matches {
				reports[i] = sink.MatchReport{Index: i, Match: m, Evidence: m.Evidence}
			}

			return wrapWriteError(sink.WriteText(cmd.OutOrStdout(), reports))
		},
	}
}

func wrapWriteError(err error) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(errs.KindInternalInvariant, err, "writing report")
}
