/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package orchestrator drives the full pipeline across a pair of capture
// files: dissect → build connections → (optional) sample → bucket →
// score+match → (compare mode) flow-hash and packet-diff → aggregate →
// sink. It mirrors the teacher's top-level decoder orchestration
// (decoder/gopacketDecoder.go's InitGoPacketDecoders/per-layer dispatch)
// but fans out over exactly two files instead of many packet layers.
package orchestrator

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/netforensic/capmaster/aggregate"
	"github.com/netforensic/capmaster/bucket"
	"github.com/netforensic/capmaster/connection"
	"github.com/netforensic/capmaster/diff"
	"github.com/netforensic/capmaster/dissector"
	"github.com/netforensic/capmaster/flowhash"
	"github.com/netforensic/capmaster/internal/config"
	"github.com/netforensic/capmaster/internal/errs"
	"github.com/netforensic/capmaster/internal/logging"
	"github.com/netforensic/capmaster/match"
	"github.com/netforensic/capmaster/sampler"
	"github.com/netforensic/capmaster/score"
	"github.com/netforensic/capmaster/serverrole"
	"github.com/netforensic/capmaster/tsv"
)

// Plugin is the extension point the spec reserves for future analyze and
// preprocess stages (SPEC_FULL.md §4): a plugin observes the
// connections built for one file before bucketing, and may be used for
// enrichment without the orchestrator knowing its domain.
type Plugin interface {
	Name() string
	Process(ctx context.Context, file string, conns []*connection.TcpConnection) error
}

// Orchestrator runs match/compare across one pair of capture files.
type Orchestrator struct {
	Config  *config.Config
	Plugins []Plugin

	// DissectorRunner overrides process creation for every Driver this
	// Orchestrator constructs; nil uses the real dissector binary. Tests
	// substitute a stub runner the same way dissector_test.go does.
	DissectorRunner dissector.CommandRunner

	log *zap.Logger
}

// New constructs an Orchestrator bound to a resolved Config.
func New(cfg *config.Config, plugins ...Plugin) *Orchestrator {
	return &Orchestrator{Config: cfg, Plugins: plugins, log: logging.Named("orchestrator")}
}

// MatchResult is the outcome of one match (or compare) invocation.
type MatchResult struct {
	Matches []match.ConnectionMatch
	Stats   match.Stats
}

// fileResult is the outcome of dissecting and building one file: the
// sampled connections plus the raw per-stream records the packet differ
// needs in compare mode.
type fileResult struct {
	conns   []*connection.TcpConnection
	records map[uint32][]*tsv.PacketRecord
	roles   map[uint32]serverrole.Info
}

// dissectFile runs the dissector against one file, builds its
// TcpConnections, and retains the raw per-stream records for later use
// by the packet differ in compare mode. Both files are processed
// concurrently via errgroup, since each is an independent unit of work
// (spec.md §5).
func (o *Orchestrator) dissectFile(ctx context.Context, file string) (fileResult, error) {
	d := dissector.New(o.Config.DissectorBinary, o.Config.DissectorTimeout)
	if o.DissectorRunner != nil {
		d.Runner = o.DissectorRunner
	}
	b := connection.NewBuilder(file, o.Config.Debug)
	records := make(map[uint32][]*tsv.PacketRecord)

	if err := d.Run(ctx, file, func(rec *tsv.PacketRecord) error {
		b.Add(rec)
		records[rec.StreamID] = append(records[rec.StreamID], rec)
		return nil
	}); err != nil {
		return fileResult{}, err
	}

	conns := b.Finish()

	opts := sampler.Options{
		Enabled:   o.Config.SampleEnabled,
		Threshold: o.Config.SampleThreshold,
		Rate:      o.Config.SampleRate,
	}
	conns = sampler.Sample(conns, file, opts)

	for _, p := range o.Plugins {
		if err := p.Process(ctx, file, conns); err != nil {
			return fileResult{}, errs.Wrap(errs.KindInternalInvariant, err, "plugin "+p.Name()+" failed on "+file)
		}
	}

	gs := serverrole.BuildGlobalState(conns)
	roles := make(map[uint32]serverrole.Info, len(conns))
	for _, c := range conns {
		roles[c.StreamID] = serverrole.Detect(c, c.HadSYN, gs)
	}

	return fileResult{conns: conns, records: records, roles: roles}, nil
}

// run dissects both files concurrently and returns their fileResults.
func (o *Orchestrator) run(ctx context.Context, fileA, fileB string) (fileResult, fileResult, error) {
	var resA, resB fileResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resA, err = o.dissectFile(gctx, fileA)
		return err
	})
	g.Go(func() error {
		var err error
		resB, err = o.dissectFile(gctx, fileB)
		return err
	})

	if err := g.Wait(); err != nil {
		return fileResult{}, fileResult{}, err
	}

	return resA, resB, nil
}

func (o *Orchestrator) matchFrom(resA, resB fileResult) MatchResult {
	pairs := bucket.Bucket(resA.conns, resB.conns, o.Config.BucketStrategy, o.log)

	matches, stats := match.Match(pairs, o.Config.MatchMode, o.Config.ScoreThreshold, score.Options{
		RequireCanonicalTuple: o.Config.BucketStrategy == bucket.StrategyServer,
		IPv6Mode:              o.Config.IPv6GateMode,
		Debug:                 o.Config.Debug,
	})

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Normalized != matches[j].Normalized {
			return matches[i].Normalized > matches[j].Normalized
		}
		if matches[i].A.StreamID != matches[j].A.StreamID {
			return matches[i].A.StreamID < matches[j].A.StreamID
		}
		return matches[i].B.StreamID < matches[j].B.StreamID
	})

	return MatchResult{Matches: matches, Stats: stats}
}

// Match runs the full match pipeline (spec.md's control-flow diagram,
// minus flow-hashing and packet-diff which are compare-only) for one
// pair of files.
func (o *Orchestrator) Match(ctx context.Context, fileA, fileB string) (MatchResult, error) {
	resA, resB, err := o.run(ctx, fileA, fileB)
	if err != nil {
		return MatchResult{}, err
	}

	return o.matchFrom(resA, resB), nil
}

// CompareResult extends MatchResult with per-pair packet diffs and flow
// hashes, for compare-mode output and the DB sink.
type CompareResult struct {
	MatchResult
	Diffs    map[int]diff.Result
	FlowHash map[int]int64
	FlowSide map[int]flowhash.FlowSide
	Groups   []aggregate.Group
}

// Compare runs the same pipeline as Match and then, for every resulting
// pair, computes the flow hash and packet-level diff (spec.md §4.8,
// §4.9), reusing the per-stream records retained from the single
// dissector pass rather than re-invoking it.
func (o *Orchestrator) Compare(ctx context.Context, fileA, fileB string) (CompareResult, error) {
	resA, resB, err := o.run(ctx, fileA, fileB)
	if err != nil {
		return CompareResult{}, err
	}

	mr := o.matchFrom(resA, resB)
	recordsA, recordsB := resA.records, resB.records

	cr := CompareResult{
		MatchResult: mr,
		Diffs:       make(map[int]diff.Result, len(mr.Matches)),
		FlowHash:    make(map[int]int64, len(mr.Matches)),
		FlowSide:    make(map[int]flowhash.FlowSide, len(mr.Matches)),
	}

	for i, m := range mr.Matches {
		directionOf := func(r *tsv.PacketRecord) byte {
			if r.SrcIP != nil && m.A.ClientIP != nil && r.SrcIP.Equal(m.A.ClientIP) && r.SrcPort == m.A.ClientPort {
				return 'C'
			}
			return 'S'
		}

		cr.Diffs[i] = diff.Diff(recordsA[m.A.StreamID], recordsB[m.B.StreamID], directionOf)

		h, side := flowhash.Hash(m.A.ClientIP, m.A.ServerIP, m.A.ClientPort, m.A.ServerPort, 6)
		cr.FlowHash[i] = h
		cr.FlowSide[i] = side
	}

	inputs := make([]aggregate.Input, len(mr.Matches))
	for i, m := range mr.Matches {
		inputs[i] = aggregate.Input{
			Match:        m,
			ConfidenceA:  resA.roles[m.A.StreamID].Confidence,
			ConfidenceB:  resB.roles[m.B.StreamID].Confidence,
			ObservedTTLA: m.A.ServerTTL,
			ObservedTTLB: m.B.ServerTTL,
		}
	}
	cr.Groups = aggregate.Aggregate(inputs)

	return cr, nil
}
