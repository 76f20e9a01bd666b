package connection

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netforensic/capmaster/tsv"
)

func u16(v uint16) *uint16 { return &v }
func u32(v uint32) *uint32 { return &v }
func u8(v uint8) *uint8    { return &v }

func synRecord(frame uint64, ts string, client, server net.IP, cport, sport uint16, ipid uint16) *tsv.PacketRecord {
	return &tsv.PacketRecord{
		StreamID: 1, FrameNumber: frame, TimestampRaw: ts,
		SrcIP: client, DstIP: server, SrcPort: cport, DstPort: sport,
		Flags: tsv.FlagSYN, Seq: 1000,
		OptMSS: u16(1460), OptWScale: u8(7), OptSackPerm: true, OptTSVal: u32(111),
		IPID: &ipid, TTL: u8(64), CapLen: 60, OrigLen: 60,
	}
}

func TestBuildConnectionBasic(t *testing.T) {
	client := net.ParseIP("10.0.0.1")
	server := net.ParseIP("10.0.0.2")

	syn := synRecord(1, "100.000001", client, server, 40000, 443, 0xAAAA)

	synAck := &tsv.PacketRecord{
		StreamID: 1, FrameNumber: 2, TimestampRaw: "100.000500",
		SrcIP: server, DstIP: client, SrcPort: 443, DstPort: 40000,
		Flags: tsv.FlagSYN | tsv.FlagACK, Seq: 5000, Ack: 1001,
		OptTSEcr: u32(111), IPID: u16(0xAAAB), TTL: u8(128), CapLen: 60, OrigLen: 60,
	}

	payload := &tsv.PacketRecord{
		StreamID: 1, FrameNumber: 3, TimestampRaw: "100.001000",
		SrcIP: client, DstIP: server, SrcPort: 40000, DstPort: 443,
		Flags: tsv.FlagACK | tsv.FlagPSH, Seq: 1001, Ack: 5001,
		CapLen: 80, OrigLen: 80, PayloadHex: "68656c6c6f",
	}

	b := NewBuilder("a.pcapng", false)
	b.Add(syn)
	b.Add(synAck)
	b.Add(payload)

	conns := b.Finish()
	require.Len(t, conns, 1)

	c := conns[0]
	assert.True(t, c.ClientIP.Equal(client))
	assert.Equal(t, uint16(40000), c.ClientPort)
	assert.True(t, c.ServerIP.Equal(server))
	assert.Equal(t, uint16(443), c.ServerPort)
	assert.Equal(t, "mss=1460;ws=7;sack=1;ts=1", c.SynOptions)
	require.NotNil(t, c.ISNClient)
	assert.Equal(t, uint32(1000), *c.ISNClient)
	require.NotNil(t, c.ISNServer)
	assert.Equal(t, uint32(5000), *c.ISNServer)
	assert.Equal(t, 3, c.PacketCount)
	assert.Len(t, c.IPIDSet, 2)
	assert.False(t, c.IsHeaderOnly)
	require.NotNil(t, c.PayloadHashClientFirstHi)
	assert.Nil(t, c.PayloadHashServerFirstHi)
	require.Len(t, c.LengthSignature, 1)
	assert.Equal(t, byte('C'), c.LengthSignature[0].Direction)
	assert.Equal(t, c.FirstPacketTime, int64(100000001000))
	assert.Equal(t, c.LastPacketTime, int64(100001000000))
}

func TestBuildConnectionFallbackNoSyn(t *testing.T) {
	client := net.ParseIP("10.0.0.5")
	server := net.ParseIP("10.0.0.6")

	recs := []*tsv.PacketRecord{
		{StreamID: 2, FrameNumber: 1, TimestampRaw: "1.0", SrcIP: client, DstIP: server, SrcPort: 1111, DstPort: 80, Flags: tsv.FlagACK, CapLen: 40, OrigLen: 40},
		{StreamID: 2, FrameNumber: 2, TimestampRaw: "1.5", SrcIP: server, DstIP: client, SrcPort: 80, DstPort: 1111, Flags: tsv.FlagACK, CapLen: 40, OrigLen: 40},
	}

	b := NewBuilder("b.pcap", false)
	for _, r := range recs {
		b.Add(r)
	}

	conns := b.Finish()
	require.Len(t, conns, 1)
	assert.True(t, conns[0].ClientIP.Equal(client))
	assert.Equal(t, uint16(1111), conns[0].ClientPort)
}

func TestBuildConnectionHeaderOnly(t *testing.T) {
	client := net.ParseIP("10.0.0.1")
	server := net.ParseIP("10.0.0.2")

	b := NewBuilder("c.pcap", false)
	for i := 0; i < 5; i++ {
		capLen := uint32(40)
		if i < 4 { // 4/5 = 0.8 truncated
			capLen = 20
		}
		b.Add(&tsv.PacketRecord{
			StreamID: 3, FrameNumber: uint64(i + 1), TimestampRaw: "1.0",
			SrcIP: client, DstIP: server, SrcPort: 1, DstPort: 2,
			CapLen: capLen, OrigLen: 40,
		})
	}

	conns := b.Finish()
	require.Len(t, conns, 1)
	assert.True(t, conns[0].IsHeaderOnly)
}
