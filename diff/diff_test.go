package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netforensic/capmaster/tsv"
)

func u16(v uint16) *uint16 { return &v }

func rec(frame uint64, flags uint8, seq uint32, ipid uint16) *tsv.PacketRecord {
	return &tsv.PacketRecord{FrameNumber: frame, Flags: flags, Seq: seq, IPID: u16(ipid)}
}

func directionAlwaysC(*tsv.PacketRecord) byte { return 'C' }

func TestDiffOnlyInA(t *testing.T) {
	a := []*tsv.PacketRecord{rec(1, tsv.FlagSYN, 100, 10)}
	b := []*tsv.PacketRecord{}

	res := Diff(a, b, directionAlwaysC)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, CategoryOnlyInA, res.Findings[0].Category)
}

func TestDiffFlagAndSeqMismatch(t *testing.T) {
	a := []*tsv.PacketRecord{rec(1, tsv.FlagSYN, 100, 10)}
	b := []*tsv.PacketRecord{rec(2, tsv.FlagSYN|tsv.FlagACK, 200, 10)}

	res := Diff(a, b, directionAlwaysC)

	var hasFlag, hasSeq bool
	for _, f := range res.Findings {
		if f.Category == CategoryFlagMismatch {
			hasFlag = true
		}
		if f.Category == CategorySeqMismatch {
			hasSeq = true
		}
	}
	assert.True(t, hasFlag)
	assert.True(t, hasSeq)
	require.Len(t, res.FlagChanges, 1)
	assert.Equal(t, tsv.FlagSYN, res.FlagChanges[0].From)
}

func TestDiffCountMismatch(t *testing.T) {
	a := []*tsv.PacketRecord{rec(1, tsv.FlagACK, 100, 10), rec(2, tsv.FlagACK, 101, 10)}
	b := []*tsv.PacketRecord{rec(3, tsv.FlagACK, 100, 10)}

	res := Diff(a, b, directionAlwaysC)

	var found bool
	for _, f := range res.Findings {
		if f.Category == CategoryCountMismatch {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDiffIgnoresPacketsWithoutIPID(t *testing.T) {
	a := []*tsv.PacketRecord{{FrameNumber: 1, Flags: tsv.FlagACK}}
	b := []*tsv.PacketRecord{}

	res := Diff(a, b, directionAlwaysC)
	assert.Empty(t, res.Findings)
}
