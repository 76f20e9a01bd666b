/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package bucket partitions connections from two capture files into
// paired buckets to bound the candidate pairs the scorer must examine
// (spec.md §4.5).
package bucket

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/netforensic/capmaster/connection"
)

// Strategy names a bucketing strategy.
type Strategy string

const (
	StrategyServer Strategy = "server"
	StrategyPort   Strategy = "port"
	StrategyNone   Strategy = "none"
	StrategyAuto   Strategy = "auto"
)

// Pair is one bucket's worth of candidates from each side.
type Pair struct {
	Key string
	A   []*connection.TcpConnection
	B   []*connection.TcpConnection
}

// Bucket partitions connections a (from file A) and b (from file B) into
// matching buckets keyed per the chosen strategy. "auto" resolves to a
// concrete strategy by inspecting server IP/port intersections between
// the two sides, logging its choice.
func Bucket(a, b []*connection.TcpConnection, strategy Strategy, log *zap.Logger) []Pair {
	if log == nil {
		log = zap.NewNop()
	}

	resolved := strategy
	if strategy == StrategyAuto {
		resolved = resolveAuto(a, b, log)
	}

	keyFn := keyFuncFor(resolved)

	buckets := make(map[string]*Pair)
	order := make([]string, 0)

	for _, c := range a {
		k := keyFn(c)
		p, ok := buckets[k]
		if !ok {
			p = &Pair{Key: k}
			buckets[k] = p
			order = append(order, k)
		}
		p.A = append(p.A, c)
	}
	for _, c := range b {
		k := keyFn(c)
		p, ok := buckets[k]
		if !ok {
			p = &Pair{Key: k}
			buckets[k] = p
			order = append(order, k)
		}
		p.B = append(p.B, c)
	}

	out := make([]Pair, 0, len(order))
	for _, k := range order {
		out = append(out, *buckets[k])
	}
	return out
}

// resolveAuto implements spec.md §4.5's "auto" decision procedure: if
// server IPs fully coincide between the two files, use "server"; if ports
// intersect but IPs do not, use "port"; otherwise fall back to "server"
// with a warning.
func resolveAuto(a, b []*connection.TcpConnection, log *zap.Logger) Strategy {
	ipsA, portsA := serverSets(a)
	ipsB, portsB := serverSets(b)

	if setsEqual(ipsA, ipsB) && len(ipsA) > 0 {
		return StrategyServer
	}

	if intersects(portsA, portsB) && !intersects(ipsA, ipsB) {
		return StrategyPort
	}

	log.Warn("bucket strategy auto-resolution ambiguous, defaulting to server",
		zap.Int("server_ips_a", len(ipsA)), zap.Int("server_ips_b", len(ipsB)))
	return StrategyServer
}

func serverSets(conns []*connection.TcpConnection) (ips map[string]struct{}, ports map[uint16]struct{}) {
	ips = make(map[string]struct{})
	ports = make(map[uint16]struct{})
	for _, c := range conns {
		if c.ServerIP != nil {
			ips[c.ServerIP.String()] = struct{}{}
		}
		ports[c.ServerPort] = struct{}{}
	}
	return ips, ports
}

func setsEqual[T comparable](a, b map[T]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func intersects[T comparable](a, b map[T]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

func keyFuncFor(s Strategy) func(*connection.TcpConnection) string {
	switch s {
	case StrategyServer:
		return func(c *connection.TcpConnection) string {
			return minMaxKey(c.ClientIP.String(), c.ServerIP.String())
		}
	case StrategyPort:
		return func(c *connection.TcpConnection) string {
			return minMaxKey(portString(c.ClientPort), portString(c.ServerPort))
		}
	case StrategyNone:
		return func(*connection.TcpConnection) string { return "*" }
	default:
		return func(*connection.TcpConnection) string { return "*" }
	}
}

func minMaxKey(a, b string) string {
	if a <= b {
		return a + ":" + b
	}
	return b + ":" + a
}

func portString(p uint16) string {
	return strconv.FormatUint(uint64(p), 10)
}
