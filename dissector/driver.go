/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package dissector drives the external packet-dissection engine
// (tshark) per spec.md §4.1 and §6.1: it spawns the process with the
// pinned field list, streams its tab-separated stdout, and parses each
// row into a tsv.PacketRecord.
package dissector

import (
	"bufio"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/netforensic/capmaster/defaults"
	"github.com/netforensic/capmaster/internal/errs"
	"github.com/netforensic/capmaster/internal/logging"
	"github.com/netforensic/capmaster/tsv"
)

// Driver spawns the dissector binary and streams PacketRecords.
type Driver struct {
	// Binary is the executable name or path looked up on PATH.
	Binary string
	// Timeout bounds a single invocation; zero uses defaults.DissectorTimeout.
	Timeout time.Duration
	// Runner abstracts process creation for tests.
	Runner CommandRunner

	log *zap.Logger
}

// CommandRunner creates the *exec.Cmd for a given file, so tests can
// substitute a stub binary without requiring tshark to be installed.
type CommandRunner interface {
	Command(ctx context.Context, binary, file string) *exec.Cmd
}

// defaultRunner shells out to the real dissector with the pinned
// field list from spec.md §6.1: TCP frames only, tab-delimited,
// absolute sequence numbers, no reassembly.
type defaultRunner struct{}

func (defaultRunner) Command(ctx context.Context, binary, file string) *exec.Cmd {
	args := []string{
		"-r", file,
		"-Y", "tcp",
		"-T", "fields",
		"-E", "separator=/t",
		"-E", "occurrence=f",
		"--disable-protocol", "reassembly",
	}

	for _, f := range tsv.Fields {
		args = append(args, "-e", f)
	}

	// relative sequence numbers must stay off; this is the dissector
	// preference that controls it.
	args = append(args, "-o", "tcp.relative_sequence_numbers:FALSE")

	return exec.CommandContext(ctx, binary, args...)
}

// New constructs a Driver with the default process runner.
func New(binary string, timeout time.Duration) *Driver {
	if binary == "" {
		binary = defaults.DissectorBinary
	}
	if timeout == 0 {
		timeout = defaults.DissectorTimeout
	}

	return &Driver{
		Binary:  binary,
		Timeout: timeout,
		Runner:  defaultRunner{},
		log:     logging.Named("dissector"),
	}
}

// Run spawns the dissector against file and invokes emit for each parsed
// PacketRecord, in the order rows are produced (frame-number order,
// spec.md §3 invariant). It returns a classified *errs.Error on any
// dissector failure per spec.md §4.1 and §7; an error returned by emit
// is passed back unchanged.
func (d *Driver) Run(ctx context.Context, file string, emit func(*tsv.PacketRecord) error) error {
	if d.Runner == nil {
		d.Runner = defaultRunner{}
	}

	if _, err := exec.LookPath(d.Binary); err != nil {
		return errs.Wrap(errs.KindDissectorNotFound, err, "dissector binary not found on PATH: "+d.Binary)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := d.Runner.Command(timeoutCtx, d.Binary, file)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errs.Wrap(errs.KindDissectorInvocation, err, "failed to open stdout pipe")
	}

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return errs.Wrap(errs.KindDissectorInvocation, err, "failed to start dissector process")
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		lineNo int
		rowErr error
	)

	for scanner.Scan() {
		lineNo++

		line := scanner.Text()
		if line == "" {
			continue
		}

		rec, perr := tsv.ParseRow(line)
		if perr != nil {
			rowErr = errs.Wrap(errs.KindDissectorProtocol, perr, "malformed row at line "+strconv.Itoa(lineNo))
			break
		}

		if err := emit(rec); err != nil {
			rowErr = err
			break
		}
	}

	scanErr := scanner.Err()

	waitErr := cmd.Wait()

	if timeoutCtx.Err() == context.DeadlineExceeded {
		d.log.Warn("dissector invocation timed out", zap.String("file", file), zap.Duration("timeout", d.Timeout))
		return errs.Wrap(errs.KindDissectorTimeout, timeoutCtx.Err(), "dissector timed out on "+file)
	}

	if rowErr != nil {
		return rowErr
	}

	if scanErr != nil {
		return errs.Wrap(errs.KindDissectorProtocol, scanErr, "failed reading dissector output")
	}

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			// exit code 2 ("unknown fields") must be reported verbatim per spec.md §4.1.
			return errs.Wrap(errs.KindDissectorInvocation, exitErr,
				"dissector exited with code "+strconv.Itoa(exitErr.ExitCode())+": "+strings.TrimSpace(stderr.String()))
		}

		return errs.Wrap(errs.KindDissectorInvocation, waitErr, "dissector process error")
	}

	return nil
}

