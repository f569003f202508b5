package hci

import "fmt"

// PacketType is the H4 type indicator that precedes every packet on the wire.
type PacketType uint8

// HCI Packet types [Vol 4, Part A, 2]
const (
	Unknown PacketType = 0x00
	Command PacketType = 0x01
	AclData PacketType = 0x02
	ScoData PacketType = 0x03
	Event   PacketType = 0x04
	IsoData PacketType = 0x05
)

// Header sizes, type indicator excluded.
const (
	CommandHeaderSize = 3 // opcode[2] + length[1]
	AclHeaderSize     = 4 // handle+flags[2] + length[2]
	ScoHeaderSize     = 3 // handle+flags[2] + length[1]
	EventHeaderSize   = 2 // event code[1] + length[1]
	IsoHeaderSize     = 4 // handle+flags[2] + length[2]
)

// IsoLengthMask selects the data length bits of an ISO header. The upper two
// bits of the length word are RFU; PayloadLength does not apply this mask.
const IsoLengthMask = 0x3fff

type headerShape struct {
	size   int
	offset int
	width  int
}

var shapes = [...]headerShape{
	Command: {CommandHeaderSize, 2, 1},
	AclData: {AclHeaderSize, 2, 2},
	ScoData: {ScoHeaderSize, 2, 1},
	Event:   {EventHeaderSize, 1, 1},
	IsoData: {IsoHeaderSize, 2, 2},
}

// Valid reports whether t is one of the five packet types carried over H4.
func (t PacketType) Valid() bool {
	return t >= Command && t <= IsoData
}

func (t PacketType) String() string {
	switch t {
	case Command:
		return "cmd"
	case AclData:
		return "acl"
	case ScoData:
		return "sco"
	case Event:
		return "evt"
	case IsoData:
		return "iso"
	case Unknown:
		return "unknown"
	default:
		return fmt.Sprintf("type(0x%02x)", uint8(t))
	}
}

// HeaderSize returns the fixed header length of t, or 0 for invalid types.
func HeaderSize(t PacketType) int {
	if !t.Valid() {
		return 0
	}
	return shapes[t].size
}

// PayloadLength decodes the declared payload length from a complete header.
// Two byte lengths are little endian. For IsoData the raw 16 bit word is
// returned, flags included.
func PayloadLength(t PacketType, hdr []byte) int {
	if !t.Valid() {
		return 0
	}
	s := shapes[t]
	if len(hdr) < s.size {
		return 0
	}
	if s.width == 1 {
		return int(hdr[s.offset])
	}
	return int(hdr[s.offset]) | int(hdr[s.offset+1])<<8
}

// MarshalText renders t by name, so packet types read well as JSON values and map keys.
func (t PacketType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
