package hci

import (
	"bytes"
	"testing"
)

func TestHeaderSize(t *testing.T) {
	want := map[PacketType]int{
		Unknown: 0,
		Command: 3,
		AclData: 4,
		ScoData: 3,
		Event:   2,
		IsoData: 4,
		6:       0,
		0xff:    0,
	}
	for typ, n := range want {
		if got := HeaderSize(typ); got != n {
			t.Errorf("HeaderSize(%v) = %d, want %d", typ, got, n)
		}
	}
}

func TestPayloadLengthRoundTrip(t *testing.T) {
	lengths := map[PacketType][]int{
		Command: {0, 1, 4, 255},
		ScoData: {0, 1, 60, 255},
		Event:   {0, 1, 33, 255},
		AclData: {0, 1, 27, 256, 1021, 0xffff},
		IsoData: {0, 1, 300, IsoLengthMask},
	}

	for typ, ll := range lengths {
		for _, l := range ll {
			payload := make([]byte, l)
			for i := range payload {
				payload[i] = byte(i * 7)
			}
			f := frame(typ, make([]byte, HeaderSize(typ)-lengthWidth(typ)), payload)

			if got := PayloadLength(typ, f); got != l {
				t.Fatalf("%v: PayloadLength = %d, want %d", typ, got, l)
			}

			var p Packetizer
			if _, done := p.Feed(typ, f, 0); !done {
				t.Fatalf("%v len %d: not completed", typ, l)
			}
			got := p.Packet()
			if PayloadLength(typ, got) != l || !bytes.Equal(got[HeaderSize(typ):], payload) {
				t.Fatalf("%v len %d: payload mismatch", typ, l)
			}
		}
	}
}

func TestPayloadLengthIsoKeepsFlags(t *testing.T) {
	// length 5 with both RFU bits set
	hdr := []byte{0x01, 0x00, 0x05, 0xc0}
	if got, want := PayloadLength(IsoData, hdr), 0xc005; got != want {
		t.Fatalf("PayloadLength = %#x, want %#x", got, want)
	}
	if got := PayloadLength(IsoData, hdr) & IsoLengthMask; got != 5 {
		t.Fatalf("masked length = %d, want 5", got)
	}
}

func TestPayloadLengthShortHeader(t *testing.T) {
	if got := PayloadLength(AclData, []byte{1, 2, 3}); got != 0 {
		t.Fatalf("short header: got %d, want 0", got)
	}
}

func TestPacketTypeString(t *testing.T) {
	if Event.String() != "evt" || PacketType(9).String() != "type(0x09)" {
		t.Fatalf("unexpected names %q %q", Event, PacketType(9))
	}
	for _, typ := range []PacketType{Unknown, 6, 0xff} {
		if typ.Valid() {
			t.Errorf("%v reported valid", typ)
		}
	}
}

func lengthWidth(t PacketType) int {
	return shapes[t].width
}
