package dissector

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netforensic/capmaster/internal/errs"
	"github.com/netforensic/capmaster/tsv"
)

type scriptRunner struct {
	shell string
}

func (r scriptRunner) Command(ctx context.Context, binary, file string) *exec.Cmd {
	return exec.CommandContext(ctx, "/bin/sh", "-c", r.shell)
}

func TestDriverRunEmitsRecords(t *testing.T) {
	row := "1\t1\t1700000000.0\t4\t10.0.0.1\t10.0.0.2\t80\t443\t0\t1\t0\t0\t1\t1\t0\t0\t\t\t0\t\t\t\t\t\t60\t60\t"

	d := New("sh", time.Second)
	d.Binary = "sh" // must resolve via LookPath
	d.Runner = scriptRunner{shell: "printf '" + row + "\\n'"}

	var got []*tsv.PacketRecord
	err := d.Run(context.Background(), "unused.pcap", func(r *tsv.PacketRecord) error {
		got = append(got, r)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(1), got[0].StreamID)
}

func TestDriverRunNotFound(t *testing.T) {
	d := New("capmaster-nonexistent-binary-xyz", time.Second)

	err := d.Run(context.Background(), "unused.pcap", func(*tsv.PacketRecord) error { return nil })
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindDissectorNotFound))
}

func TestDriverRunProtocolError(t *testing.T) {
	d := New("sh", time.Second)
	d.Runner = scriptRunner{shell: "printf 'not-an-int\\t1\\t1700000000.0\\n'"}

	err := d.Run(context.Background(), "unused.pcap", func(*tsv.PacketRecord) error { return nil })
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindDissectorProtocol))
}

func TestDriverRunTimeout(t *testing.T) {
	d := New("sh", 50*time.Millisecond)
	d.Runner = scriptRunner{shell: "sleep 2"}

	err := d.Run(context.Background(), "unused.pcap", func(*tsv.PacketRecord) error { return nil })
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindDissectorTimeout))
}
