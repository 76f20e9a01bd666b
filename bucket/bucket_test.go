package bucket

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netforensic/capmaster/connection"
)

func tc(clientIP, serverIP string, clientPort, serverPort uint16) *connection.TcpConnection {
	return &connection.TcpConnection{
		ClientIP: net.ParseIP(clientIP), ClientPort: clientPort,
		ServerIP: net.ParseIP(serverIP), ServerPort: serverPort,
	}
}

func TestBucketServerStrategy(t *testing.T) {
	a := []*connection.TcpConnection{tc("10.0.0.1", "10.0.0.9", 1, 443)}
	b := []*connection.TcpConnection{tc("10.0.0.2", "10.0.0.9", 2, 443)}

	pairs := Bucket(a, b, StrategyServer, nil)
	require.Len(t, pairs, 2) // distinct client IPs -> distinct server keys
}

func TestBucketNoneStrategySingleBucket(t *testing.T) {
	a := []*connection.TcpConnection{tc("10.0.0.1", "10.0.0.9", 1, 443), tc("10.0.0.2", "10.0.0.8", 2, 80)}
	b := []*connection.TcpConnection{tc("10.0.0.3", "10.0.0.7", 3, 22)}

	pairs := Bucket(a, b, StrategyNone, nil)
	require.Len(t, pairs, 1)
	assert.Len(t, pairs[0].A, 2)
	assert.Len(t, pairs[0].B, 1)
}

func TestBucketAutoResolvesToServerWhenIPsCoincide(t *testing.T) {
	a := []*connection.TcpConnection{tc("10.0.0.1", "10.0.0.9", 1, 443)}
	b := []*connection.TcpConnection{tc("10.0.0.2", "10.0.0.9", 2, 443)}

	pairs := Bucket(a, b, StrategyAuto, nil)
	require.Len(t, pairs, 2)
}

func TestBucketAutoResolvesToPortWhenOnlyPortsIntersect(t *testing.T) {
	a := []*connection.TcpConnection{tc("10.0.0.1", "10.0.0.9", 1, 443)}
	b := []*connection.TcpConnection{tc("10.0.0.2", "10.0.0.8", 1, 443)}

	pairs := Bucket(a, b, StrategyAuto, nil)
	require.Len(t, pairs, 1)
	assert.Len(t, pairs[0].A, 1)
	assert.Len(t, pairs[0].B, 1)
}
