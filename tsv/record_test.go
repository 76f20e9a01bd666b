package tsv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(fields ...string) string {
	out := fields[0]
	for _, f := range fields[1:] {
		out += "\t" + f
	}
	return out
}

func TestParseRowFullSYN(t *testing.T) {
	r := row(
		"3", "42", "1700000000.123456", "4", "8.42.96.45", "8.67.2.125",
		"35101", "26302", "1", "0", "0", "0", "1000", "", "0", "64240",
		"1460", "7", "1", "3576232891", "0", "4660", "64", "", "54", "54", "",
	)

	rec, err := ParseRow(r)
	require.NoError(t, err)

	assert.Equal(t, uint32(3), rec.StreamID)
	assert.Equal(t, uint64(42), rec.FrameNumber)
	assert.True(t, rec.HasSYN())
	assert.False(t, rec.HasACK())
	assert.True(t, rec.IsSYNWithoutACK())
	require.NotNil(t, rec.OptMSS)
	assert.Equal(t, uint16(1460), *rec.OptMSS)
	require.NotNil(t, rec.IPID)
	assert.Equal(t, uint16(0x1234), *rec.IPID)
	require.NotNil(t, rec.TTL)
	assert.Equal(t, uint8(64), *rec.TTL)
	require.NotNil(t, rec.OptTSEcr)
	assert.Equal(t, uint32(0), *rec.OptTSEcr)
}

func TestParseRowBlankIsAbsentNotZero(t *testing.T) {
	r := row(
		"1", "1", "1700000000.0", "4", "10.0.0.1", "10.0.0.2",
		"80", "443", "0", "1", "0", "0", "1", "1", "0", "0",
		"", "", "0", "", "", "", "", "", "60", "60", "",
	)

	rec, err := ParseRow(r)
	require.NoError(t, err)
	assert.Nil(t, rec.OptMSS)
	assert.Nil(t, rec.OptWScale)
	assert.Nil(t, rec.OptTSVal)
	assert.Nil(t, rec.OptTSEcr)
	assert.Nil(t, rec.IPID)
	assert.Nil(t, rec.TTL)
	assert.False(t, rec.OptSackPerm)
}

func TestParseRowMalformedInteger(t *testing.T) {
	r := row(
		"not-a-number", "1", "1700000000.0", "4", "10.0.0.1", "10.0.0.2",
		"80", "443", "0", "1", "0", "0", "1", "1", "0", "0",
		"", "", "0", "", "", "", "", "", "60", "60", "",
	)

	_, err := ParseRow(r)
	require.Error(t, err)
}

func TestParseRowTooFewColumns(t *testing.T) {
	_, err := ParseRow("1\t2\t3")
	require.Error(t, err)
}
