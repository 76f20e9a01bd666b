/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package main wires the cobra command tree over internal/config and
// orchestrator, the way keith-smiley-gravwell-gravwell's gwcli builds a
// tree of *cobra.Command constructors (utils/gwcli/tree/status/indexers).
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/netforensic/capmaster/internal/config"
	"github.com/netforensic/capmaster/internal/errs"
	"github.com/netforensic/capmaster/internal/logging"
)

// exit codes per spec.md §6.2.
const (
	exitOK            = 0
	exitRecoverable   = 1
	exitBadArguments  = 2
	exitInternalError = 3
)

var (
	v       = viper.New()
	debug   bool
	cfgFile string
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "capmaster",
		Short:         "Cross-capture TCP connection correlation",
		Long:          "capmaster correlates TCP connections observed in two independent packet captures of the same traffic, using a multi-signal weighted scorer instead of exact byte comparison.",
		SilenceUsage:  true,
		SilenceErrors: true,
		// rebuild the logger once flags are parsed, so --debug takes effect.
		PersistentPreRun: func(*cobra.Command, []string) {
			logging.Set(logging.New(debug))
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable verbose logging and error cause chains")
	config.BindFlags(root.PersistentFlags())

	root.AddCommand(newMatchCommand())
	root.AddCommand(newCompareCommand())

	return root
}

// exactTwoArgs requires exactly two positional capture files, reporting
// violations as a classified InputWrongCount error (spec.md §7) instead
// of cobra's plain usage error, so reportAndExit maps it to exit code 2.
func exactTwoArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return errs.New(errs.KindInputWrongCount, "expected exactly two capture files")
	}
	return nil
}

// loadConfig binds cobra flags into viper, reads an optional config file,
// and returns the resolved, validated Config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, errs.Wrap(errs.KindConfigInvalid, err, "binding flags")
	}
	if err := v.BindPFlags(cmd.Parent().PersistentFlags()); err != nil {
		return nil, errs.Wrap(errs.KindConfigInvalid, err, "binding persistent flags")
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.Wrap(errs.KindConfigInvalid, err, "reading config file "+cfgFile)
		}
	}

	return config.Load(v)
}

func main() {
	logging.Set(logging.New(debug))

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(reportAndExit(err))
	}
}

// reportAndExit prints err the way spec.md §6.2/§7 require (a one-line
// summary, or the full cause chain under --debug) and returns the exit
// code matching its errs.Kind.
func reportAndExit(err error) int {
	var ce *errs.Error
	if !errors.As(err, &ce) {
		fmt.Fprintln(os.Stderr, err)
		return exitInternalError
	}

	if debug {
		fmt.Fprintln(os.Stderr, ce.Verbose())
	} else {
		fmt.Fprintln(os.Stderr, ce.Summary())
	}

	switch ce.Kind {
	case errs.KindInputWrongCount, errs.KindConfigInvalid:
		return exitBadArguments
	case errs.KindDissectorTimeout, errs.KindDatabaseUnavailable:
		return exitRecoverable
	default:
		return exitInternalError
	}
}
