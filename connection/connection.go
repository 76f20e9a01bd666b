/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package connection groups PacketRecords by stream id into TcpConnections
// and derives the per-connection features the scorer consumes (spec.md §3,
// §4.2). A connection is built once and is immutable afterwards, the way
// the teacher's atomicConnMap entries are finalized at DeInit.
package connection

import (
	"net"
	"strconv"
)

// Token is one entry in a connection's length signature (spec.md §3).
type Token struct {
	Direction byte // 'C' or 'S'
	Len       uint32
}

// TcpConnection is one reconstructed stream, per spec.md §3.
type TcpConnection struct {
	File     string
	StreamID uint32

	ClientIP   net.IP
	ClientPort uint16
	ServerIP   net.IP
	ServerPort uint16

	// HadSYN reports whether a SYN-without-ACK was observed in this
	// stream; false means client/server assignment fell back to the
	// sender of the first packet (spec.md §4.2). serverrole.Detect uses
	// this to decide whether its SYN-direction strategy applies.
	HadSYN bool

	FirstPacketTime int64 // nanoseconds
	LastPacketTime  int64 // nanoseconds
	PacketCount     int

	SynOptions string // canonical "mss=…;ws=…;sack=0|1;ts=0|1"

	ISNClient *uint32
	ISNServer *uint32

	TSValFirst *uint32
	TSEcrFirst *uint32

	PayloadHashClientFirstHi, PayloadHashClientFirstLo *uint64
	PayloadHashServerFirstHi, PayloadHashServerFirstLo *uint64

	LengthSignature []Token

	IPIDSet   map[uint16]struct{}
	IPIDFirst *uint16

	IsHeaderOnly bool

	ClientTTL *uint8
	ServerTTL *uint8
}

// Ident renders a stable, human-readable identifier for logs and reports.
func (c *TcpConnection) Ident() string {
	return c.File + "#" + strconv.Itoa(int(c.StreamID))
}
