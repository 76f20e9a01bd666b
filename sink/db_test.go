package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableNameValidatesCaseID(t *testing.T) {
	name, err := TableName("case_01")
	require.NoError(t, err)
	assert.Equal(t, "kase_case_01_tcp_stream_extra", name)

	_, err = TableName("bad id; drop table")
	require.Error(t, err)
}

func TestJoinSemicolon(t *testing.T) {
	assert.Equal(t, "a;b;c", JoinSemicolon([]string{"a", "b", "c"}))
	assert.Equal(t, "", JoinSemicolon(nil))
}
