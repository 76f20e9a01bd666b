package orchestrator

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netforensic/capmaster/internal/config"
	"github.com/netforensic/capmaster/match"
)

// fixedRunner emits one canned row regardless of which file is requested,
// built around a shared client/server 5-tuple and IP-ID so both sides of
// a match/compare invocation produce correlating connections.
type fixedRunner struct {
	row string
}

func (r fixedRunner) Command(ctx context.Context, binary, file string) *exec.Cmd {
	return exec.CommandContext(ctx, "/bin/sh", "-c", "printf '"+r.row+"\\n'")
}

// matchingRow is a single bare-SYN TCP frame from 10.0.0.1:40000 to
// 10.0.0.2:443 on stream 0, with ip.id=100, used identically for "both"
// input files so the pipeline produces exactly one cross-file match.
const matchingRow = "0\\t1\\t100.0\\t4\\t10.0.0.1\\t10.0.0.2\\t40000\\t443\\t1\\t0\\t0\\t0\\t1000\\t\\t0\\t\\t1460\\t7\\t1\\t111\\t\\t100\\t64\\t\\t60\\t60\\t"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	cfg.DissectorBinary = "sh"
	return cfg
}

func TestOrchestratorMatchFindsCrossFileMatch(t *testing.T) {
	o := New(testConfig(t))
	o.DissectorRunner = fixedRunner{row: matchingRow}

	res, err := o.Match(context.Background(), "a.pcap", "b.pcap")
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, 1, res.Stats.Total)
	assert.Equal(t, match.ModeOneToOne, o.Config.MatchMode)
}

func TestOrchestratorCompareProducesFlowHashAndDiff(t *testing.T) {
	o := New(testConfig(t))
	o.DissectorRunner = fixedRunner{row: matchingRow}

	res, err := o.Compare(context.Background(), "a.pcap", "b.pcap")
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Contains(t, res.FlowHash, 0)
	assert.Contains(t, res.Diffs, 0)
}

func TestOrchestratorPropagatesDissectorFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.DissectorTimeout = 50 * time.Millisecond
	cfg.DissectorBinary = "capmaster-nonexistent-binary-xyz"

	o := New(cfg)
	o.DissectorRunner = fixedRunner{row: matchingRow}

	_, err := o.Match(context.Background(), "a.pcap", "b.pcap")
	require.Error(t, err)
}
