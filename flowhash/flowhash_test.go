package flowhash

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashMatchesReferenceValue(t *testing.T) {
	src := net.ParseIP("8.42.96.45")
	dst := net.ParseIP("8.67.2.125")

	h, _ := Hash(src, dst, 35101, 26302, 6)
	assert.Equal(t, int64(-1173584886679544929), h)
}

func TestHashIsDirectionIndependent(t *testing.T) {
	src := net.ParseIP("8.42.96.45")
	dst := net.ParseIP("8.67.2.125")

	hForward, sideForward := Hash(src, dst, 35101, 26302, 6)
	hReverse, sideReverse := Hash(dst, src, 26302, 35101, 6)

	assert.Equal(t, hForward, hReverse)
	assert.NotEqual(t, sideForward, sideReverse)
}

func TestHashChangesWithProtocol(t *testing.T) {
	src := net.ParseIP("10.0.0.1")
	dst := net.ParseIP("10.0.0.2")

	h6, _ := Hash(src, dst, 1111, 2222, 6)
	h17, _ := Hash(src, dst, 1111, 2222, 17)

	assert.NotEqual(t, h6, h17)
}
