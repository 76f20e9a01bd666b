/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

package connection

import (
	"encoding/hex"
	"sort"
	"strconv"
	"sync"

	"github.com/davecgh/go-spew/spew"

	"github.com/netforensic/capmaster/defaults"
	"github.com/netforensic/capmaster/tsv"
	"github.com/netforensic/capmaster/utils"
)

// Builder partitions a stream of PacketRecords by stream id into
// TcpConnections, the way the teacher's connectionDecoder partitions
// packets by connectionID into *types.Connection (decoder/packet/connection.go),
// but operating on buffered dissector rows instead of live gopacket.Packets.
//
// Packets are buffered per stream and only turned into features in
// Finish, because client/server assignment depends on seeing every
// packet in the stream (a SYN-without-ACK may arrive after a
// provisionally-assigned first packet in a re-ordered capture).
type Builder struct {
	file  string
	debug bool

	mu      sync.Mutex
	streams map[uint32][]*tsv.PacketRecord

	lengthSigTokens int
}

// NewBuilder constructs a Builder for one capture file. debug spews every
// finalized TcpConnection to stdout as Finish builds it, for --debug runs.
func NewBuilder(file string, debug bool) *Builder {
	return &Builder{
		file:            file,
		debug:           debug,
		streams:         make(map[uint32][]*tsv.PacketRecord),
		lengthSigTokens: defaults.LengthSignatureTokens,
	}
}

// Add buffers one PacketRecord under its stream id. Records within a
// stream must arrive in frame-number order (spec.md §3 invariant).
func (b *Builder) Add(rec *tsv.PacketRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.streams[rec.StreamID] = append(b.streams[rec.StreamID], rec)
}

// Finish finalizes all buffered streams into immutable TcpConnections, in
// ascending stream-id order. Once called, the builder should not receive
// further Add calls for the finalized streams (spec.md §3 lifecycle:
// built once, immutable after).
func (b *Builder) Finish() []*TcpConnection {
	b.mu.Lock()
	defer b.mu.Unlock()

	streamIDs := make([]uint32, 0, len(b.streams))
	for id := range b.streams {
		streamIDs = append(streamIDs, id)
	}
	sort.Slice(streamIDs, func(i, j int) bool { return streamIDs[i] < streamIDs[j] })

	out := make([]*TcpConnection, 0, len(streamIDs))
	for _, id := range streamIDs {
		c := buildConnection(b.file, id, b.streams[id], b.lengthSigTokens)
		if b.debug {
			spew.Dump(c)
		}
		out = append(out, c)
	}

	return out
}

type payloadEvent struct {
	frame     uint64
	direction byte
	length    uint32
}

// buildConnection derives spec.md §3/§4.2 features from one stream's
// buffered records.
func buildConnection(file string, streamID uint32, recs []*tsv.PacketRecord, n int) *TcpConnection {
	c := &TcpConnection{
		File:      file,
		StreamID:  streamID,
		IPIDSet:   map[uint16]struct{}{},
		PacketCount: len(recs),
	}

	if len(recs) == 0 {
		return c
	}

	// client/server assignment (spec.md §4.2): first SYN-without-ACK's
	// sender is client; otherwise the sender of the first packet.
	clientIP, clientPort := recs[0].SrcIP, recs[0].SrcPort
	serverIP, serverPort := recs[0].DstIP, recs[0].DstPort

	for _, rec := range recs {
		if rec.IsSYNWithoutACK() {
			clientIP, clientPort = rec.SrcIP, rec.SrcPort
			serverIP, serverPort = rec.DstIP, rec.DstPort
			c.HadSYN = true
			break
		}
	}

	c.ClientIP, c.ClientPort = clientIP, clientPort
	c.ServerIP, c.ServerPort = serverIP, serverPort

	directionOf := func(rec *tsv.PacketRecord) byte {
		if rec.SrcIP != nil && clientIP != nil && rec.SrcIP.Equal(clientIP) && rec.SrcPort == clientPort {
			return 'C'
		}
		return 'S'
	}

	var (
		haveFirst                         bool
		clientPayloadSeen, serverPayloadSeen bool
		payloadEvents                     []payloadEvent
		clientTTLs, serverTTLs            []uint8
		capBad                            int
	)

	for _, rec := range recs {
		ns, err := utils.DecimalSecondsToNanos(rec.TimestampRaw)
		if err != nil {
			ns = c.LastPacketTime
		}

		if !haveFirst {
			c.FirstPacketTime, c.LastPacketTime = ns, ns
			haveFirst = true
		} else {
			if ns < c.FirstPacketTime {
				c.FirstPacketTime = ns
			}
			if ns > c.LastPacketTime {
				c.LastPacketTime = ns
			}
		}

		if rec.IsSYNWithoutACK() && c.SynOptions == "" {
			c.SynOptions = canonicalSynOptions(rec)
			isn := rec.Seq
			c.ISNClient = &isn
		}

		if rec.IsSYNACK() && c.ISNServer == nil {
			if c.SynOptions == "" {
				c.SynOptions = canonicalSynOptions(rec)
			}
			isn := rec.Seq
			c.ISNServer = &isn
		}

		if c.TSValFirst == nil && rec.OptTSVal != nil {
			c.TSValFirst = rec.OptTSVal
		}
		if c.TSEcrFirst == nil && rec.OptTSEcr != nil {
			c.TSEcrFirst = rec.OptTSEcr
		}

		if rec.IPID != nil {
			c.IPIDSet[*rec.IPID] = struct{}{}
			if c.IPIDFirst == nil {
				id := *rec.IPID
				c.IPIDFirst = &id
			}
		}

		dir := directionOf(rec)

		if rec.TTL != nil {
			if dir == 'C' {
				clientTTLs = append(clientTTLs, *rec.TTL)
			} else {
				serverTTLs = append(serverTTLs, *rec.TTL)
			}
		}

		if rec.CapLen < rec.OrigLen {
			capBad++
		}

		if rec.HasPayload() {
			payload, err := hex.DecodeString(rec.PayloadHex)
			if err == nil && len(payload) > 0 {
				if dir == 'C' && !clientPayloadSeen {
					clientPayloadSeen = true
					hi, lo := utils.MD5Prefix(payload, defaults.PayloadHashBytes)
					c.PayloadHashClientFirstHi, c.PayloadHashClientFirstLo = &hi, &lo
				}
				if dir == 'S' && !serverPayloadSeen {
					serverPayloadSeen = true
					hi, lo := utils.MD5Prefix(payload, defaults.PayloadHashBytes)
					c.PayloadHashServerFirstHi, c.PayloadHashServerFirstLo = &hi, &lo
				}

				payloadEvents = append(payloadEvents, payloadEvent{
					frame: rec.FrameNumber, direction: dir, length: uint32(len(payload)),
				})
			}
		}
	}

	if len(recs) > 0 {
		c.IsHeaderOnly = float64(capBad)/float64(len(recs)) >= defaults.HeaderOnlyRatio
	}

	if mode, ok := utils.ModeUint8(clientTTLs); ok {
		c.ClientTTL = &mode
	}
	if mode, ok := utils.ModeUint8(serverTTLs); ok {
		c.ServerTTL = &mode
	}

	// payload events already arrive in frame-number order because recs do.
	tokens := make([]Token, 0, n)
	for _, ev := range payloadEvents {
		if len(tokens) >= n {
			break
		}
		tokens = append(tokens, Token{Direction: ev.direction, Len: ev.length})
	}
	c.LengthSignature = tokens

	return c
}

// canonicalSynOptions renders "mss=…;ws=…;sack=0|1;ts=0|1" in the fixed
// order mss;ws;sack;ts, per spec.md §4.2. Missing options render as 0.
func canonicalSynOptions(rec *tsv.PacketRecord) string {
	mss := "0"
	if rec.OptMSS != nil {
		mss = strconv.FormatUint(uint64(*rec.OptMSS), 10)
	}

	ws := "0"
	if rec.OptWScale != nil {
		ws = strconv.FormatUint(uint64(*rec.OptWScale), 10)
	}

	sack := "0"
	if rec.OptSackPerm {
		sack = "1"
	}

	ts := "0"
	if rec.OptTSVal != nil || rec.OptTSEcr != nil {
		ts = "1"
	}

	return "mss=" + mss + ";ws=" + ws + ";sack=" + sack + ";ts=" + ts
}
