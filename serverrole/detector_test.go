package serverrole

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netforensic/capmaster/connection"
)

func conn(clientIP, serverIP string, clientPort, serverPort uint16) *connection.TcpConnection {
	return &connection.TcpConnection{
		ClientIP: net.ParseIP(clientIP), ClientPort: clientPort,
		ServerIP: net.ParseIP(serverIP), ServerPort: serverPort,
	}
}

func TestDetectSYNDirectionWins(t *testing.T) {
	c := conn("10.0.0.1", "10.0.0.2", 40000, 9999)
	gs := BuildGlobalState(nil)

	info := Detect(c, true, gs)
	assert.Equal(t, "syn-direction", info.Strategy)
	assert.Equal(t, ConfidenceHigh, info.Confidence)
	assert.True(t, info.ServerIP.Equal(net.ParseIP("10.0.0.2")))
	assert.Equal(t, uint16(9999), info.ServerPort)
}

func TestDetectWellKnownPortFallback(t *testing.T) {
	c := conn("10.0.0.1", "10.0.0.2", 50000, 443)
	gs := BuildGlobalState(nil)

	info := Detect(c, false, gs)
	assert.Equal(t, "well-known-port", info.Strategy)
	assert.Equal(t, ConfidenceHigh, info.Confidence)
	assert.Equal(t, uint16(443), info.ServerPort)
}

func TestDetectCardinalityFallback(t *testing.T) {
	// server 10.0.0.9:8080 talks to 5 distinct clients on high ports; none
	// of the 5 connections carries a SYN or a well-known port.
	var conns []*connection.TcpConnection
	for i := 1; i <= 5; i++ {
		conns = append(conns, conn("10.0.0."+string(rune('0'+i)), "10.0.0.9", uint16(50000+i), 8080))
	}
	gs := BuildGlobalState(conns)

	info := Detect(conns[0], false, gs)
	assert.Equal(t, "cardinality", info.Strategy)
	assert.Equal(t, uint16(8080), info.ServerPort)
}

func TestDetectPortComparisonFallback(t *testing.T) {
	c := conn("10.0.0.1", "10.0.0.2", 50000, 50001)
	gs := BuildGlobalState(nil)

	info := Detect(c, false, gs)
	assert.Equal(t, "port-comparison", info.Strategy)
	assert.Equal(t, ConfidenceVeryLow, info.Confidence)
	assert.Equal(t, uint16(50000), info.ServerPort)
}
