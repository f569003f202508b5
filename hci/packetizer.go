package hci

import "fmt"

type packetizerState int

const (
	awaitingHeader packetizerState = iota
	awaitingPayload
)

// Packetizer reassembles HCI packets from a byte stream delivered in
// arbitrary chunks. It does no I/O and holds at most one packet.
//
// The zero value is ready to use.
type Packetizer struct {
	state     packetizerState
	started   bool
	remaining int
	packet    []byte
	last      []byte
	hdrSize   int
}

// Feed consumes bytes of buf starting at off for a packet of type t and
// returns the new offset. It reports true when a complete packet is
// available from Packet; the next call then starts a new packet.
//
// t must be valid. Resolving the type indicator is the caller's job.
func (p *Packetizer) Feed(t PacketType, buf []byte, off int) (int, bool) {
	if !t.Valid() {
		panic(fmt.Sprintf("hci: packetizer fed invalid packet type %v", t))
	}

	switch p.state {
	case awaitingHeader:
		if !p.started {
			p.started = true
			p.hdrSize = HeaderSize(t)
			p.remaining = p.hdrSize
			p.packet = make([]byte, 0, p.hdrSize)
		}

		n := min(p.remaining, len(buf)-off)
		p.packet = append(p.packet, buf[off:off+n]...)
		p.remaining -= n
		off += n
		if p.remaining > 0 {
			return off, false
		}

		length := PayloadLength(t, p.packet)
		if length == 0 {
			p.done()
			return off, true
		}

		hdr := p.packet
		p.packet = make([]byte, p.hdrSize, p.hdrSize+length)
		copy(p.packet, hdr)
		p.remaining = length
		p.state = awaitingPayload
		if off >= len(buf) {
			return off, false
		}
		fallthrough

	case awaitingPayload:
		n := min(p.remaining, len(buf)-off)
		p.packet = append(p.packet, buf[off:off+n]...)
		p.remaining -= n
		off += n
		if p.remaining == 0 {
			p.done()
			return off, true
		}
	}

	return off, false
}

// Packet returns the last completed packet, header included and type
// indicator excluded. The slice is not reused by the Packetizer.
func (p *Packetizer) Packet() []byte {
	return p.last
}

// Reset drops any partially assembled packet.
func (p *Packetizer) Reset() {
	p.state = awaitingHeader
	p.started = false
	p.remaining = 0
	p.packet = nil
	p.last = nil
}

func (p *Packetizer) done() {
	p.last = p.packet
	p.packet = nil
	p.state = awaitingHeader
	p.started = false
	p.remaining = 0
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
