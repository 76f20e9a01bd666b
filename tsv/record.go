/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package tsv defines the PacketRecord type (spec.md §3) and parses the
// tab-separated rows produced by the external dissector per the fixed
// field order pinned in spec.md §6.1.
package tsv

import (
	"net"
	"strconv"
	"strings"

	"github.com/netforensic/capmaster/internal/errs"
)

// Fields is the pinned, ordered field list requested from the dissector.
// Implementations may extend it but must never reorder it (spec.md §6.1).
var Fields = []string{
	"tcp.stream", "frame.number", "frame.time_epoch", "ip.version", "ip.src", "ip.dst",
	"tcp.srcport", "tcp.dstport", "tcp.flags.syn", "tcp.flags.ack", "tcp.flags.fin",
	"tcp.flags.rst", "tcp.seq", "tcp.ack", "tcp.len", "tcp.window_size_value",
	"tcp.options.mss_val", "tcp.options.wscale.shift", "tcp.options.sack_perm",
	"tcp.options.timestamp.tsval", "tcp.options.timestamp.tsecr", "ip.id", "ip.ttl",
	"ipv6.hlim", "frame.cap_len", "frame.len", "data.data",
}

// TCP flag bits, matching the bitmap named in spec.md §3.
const (
	FlagSYN uint8 = 1 << iota
	FlagACK
	FlagFIN
	FlagRST
	FlagPSH
	FlagURG
)

// PacketRecord is one parsed TCP frame row (spec.md §3).
type PacketRecord struct {
	StreamID     uint32
	FrameNumber  uint64
	TimestampRaw string // decimal seconds, >= microsecond precision, kept verbatim
	IPVersion    uint8

	SrcIP net.IP
	DstIP net.IP

	SrcPort uint16
	DstPort uint16

	Flags uint8
	Seq   uint32
	Ack   uint32

	TCPLen uint32
	Window uint16

	OptMSS      *uint16
	OptWScale   *uint8
	OptSackPerm bool
	OptTSVal    *uint32
	OptTSEcr    *uint32

	IPID *uint16
	TTL  *uint8

	CapLen  uint32
	OrigLen uint32

	PayloadHex string
}

// HasSYN reports the SYN flag.
func (p *PacketRecord) HasSYN() bool { return p.Flags&FlagSYN != 0 }

// HasACK reports the ACK flag.
func (p *PacketRecord) HasACK() bool { return p.Flags&FlagACK != 0 }

// HasFIN reports the FIN flag.
func (p *PacketRecord) HasFIN() bool { return p.Flags&FlagFIN != 0 }

// HasRST reports the RST flag.
func (p *PacketRecord) HasRST() bool { return p.Flags&FlagRST != 0 }

// IsSYNWithoutACK reports a bare SYN (handshake opener).
func (p *PacketRecord) IsSYNWithoutACK() bool { return p.HasSYN() && !p.HasACK() }

// IsSYNACK reports a SYN-ACK (handshake responder).
func (p *PacketRecord) IsSYNACK() bool { return p.HasSYN() && p.HasACK() }

// HasPayload reports whether the frame carried TCP payload bytes.
func (p *PacketRecord) HasPayload() bool { return len(p.PayloadHex) > 0 }

// ParseRow parses one tab-separated row in the field order of Fields into
// a PacketRecord. Blank fields map to absent (nil) optional values, never
// to zero (spec.md §4.1, §6.1).
func ParseRow(row string) (*PacketRecord, error) {
	cols := strings.Split(row, "\t")
	if len(cols) < len(Fields) {
		return nil, errs.New(errs.KindDissectorProtocol,
			"row has fewer columns than the pinned field list")
	}

	get := func(i int) string { return strings.TrimSpace(cols[i]) }

	rec := &PacketRecord{}

	streamID, err := parseUint32(get(0))
	if err != nil {
		return nil, errs.Wrap(errs.KindDissectorProtocol, err, "tcp.stream")
	}
	rec.StreamID = streamID

	frameNumber, err := parseUint64(get(1))
	if err != nil {
		return nil, errs.Wrap(errs.KindDissectorProtocol, err, "frame.number")
	}
	rec.FrameNumber = frameNumber

	rec.TimestampRaw = get(2)
	if rec.TimestampRaw == "" {
		return nil, errs.New(errs.KindDissectorProtocol, "frame.time_epoch is required")
	}

	if v := get(3); v != "" {
		ipv, err := parseUint8(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindDissectorProtocol, err, "ip.version")
		}
		rec.IPVersion = ipv
	}

	if v := get(4); v != "" {
		rec.SrcIP = net.ParseIP(v)
	}
	if v := get(5); v != "" {
		rec.DstIP = net.ParseIP(v)
	}

	srcPort, err := parseUint16(get(6))
	if err != nil {
		return nil, errs.Wrap(errs.KindDissectorProtocol, err, "tcp.srcport")
	}
	rec.SrcPort = srcPort

	dstPort, err := parseUint16(get(7))
	if err != nil {
		return nil, errs.Wrap(errs.KindDissectorProtocol, err, "tcp.dstport")
	}
	rec.DstPort = dstPort

	if boolField(get(8)) {
		rec.Flags |= FlagSYN
	}
	if boolField(get(9)) {
		rec.Flags |= FlagACK
	}
	if boolField(get(10)) {
		rec.Flags |= FlagFIN
	}
	if boolField(get(11)) {
		rec.Flags |= FlagRST
	}

	seq, err := parseUint32(get(12))
	if err != nil {
		return nil, errs.Wrap(errs.KindDissectorProtocol, err, "tcp.seq")
	}
	rec.Seq = seq

	// tcp.ack may be blank on a bare SYN.
	if v := get(13); v != "" {
		ack, err := parseUint32(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindDissectorProtocol, err, "tcp.ack")
		}
		rec.Ack = ack
	}

	tcpLen, err := parseUint32(get(14))
	if err != nil {
		return nil, errs.Wrap(errs.KindDissectorProtocol, err, "tcp.len")
	}
	rec.TCPLen = tcpLen

	if v := get(15); v != "" {
		w, err := parseUint16(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindDissectorProtocol, err, "tcp.window_size_value")
		}
		rec.Window = w
	}

	if v := get(16); v != "" {
		mss, err := parseUint16(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindDissectorProtocol, err, "tcp.options.mss_val")
		}
		rec.OptMSS = &mss
	}

	if v := get(17); v != "" {
		ws, err := parseUint8(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindDissectorProtocol, err, "tcp.options.wscale.shift")
		}
		rec.OptWScale = &ws
	}

	rec.OptSackPerm = boolField(get(18))

	if v := get(19); v != "" {
		tsval, err := parseUint32(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindDissectorProtocol, err, "tcp.options.timestamp.tsval")
		}
		rec.OptTSVal = &tsval
	}

	if v := get(20); v != "" {
		tsecr, err := parseUint32(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindDissectorProtocol, err, "tcp.options.timestamp.tsecr")
		}
		rec.OptTSEcr = &tsecr
	}

	// ip.id (IPv4) and ipv6.hlim/ip.ttl are mutually exclusive depending on
	// IP version; absence is distinct from zero.
	if v := get(21); v != "" {
		id, err := parseUint16(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindDissectorProtocol, err, "ip.id")
		}
		rec.IPID = &id
	}

	if v := get(22); v != "" {
		ttl, err := parseUint8(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindDissectorProtocol, err, "ip.ttl")
		}
		rec.TTL = &ttl
	} else if v := get(23); v != "" {
		ttl, err := parseUint8(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindDissectorProtocol, err, "ipv6.hlim")
		}
		rec.TTL = &ttl
	}

	capLen, err := parseUint32(get(24))
	if err != nil {
		return nil, errs.Wrap(errs.KindDissectorProtocol, err, "frame.cap_len")
	}
	rec.CapLen = capLen

	origLen, err := parseUint32(get(25))
	if err != nil {
		return nil, errs.Wrap(errs.KindDissectorProtocol, err, "frame.len")
	}
	rec.OrigLen = origLen

	if len(cols) > 26 {
		rec.PayloadHex = get(26)
	}

	return rec, nil
}

func boolField(v string) bool {
	return v == "1" || v == "True" || v == "true"
}

func parseUint8(v string) (uint8, error) {
	n, err := strconv.ParseUint(v, 10, 8)
	return uint8(n), err
}

func parseUint16(v string) (uint16, error) {
	n, err := strconv.ParseUint(v, 10, 16)
	return uint16(n), err
}

func parseUint32(v string) (uint32, error) {
	n, err := strconv.ParseUint(v, 10, 32)
	return uint32(n), err
}

func parseUint64(v string) (uint64, error) {
	return strconv.ParseUint(v, 10, 64)
}
