package h4

import (
	"fmt"
	"sync/atomic"

	"github.com/rigado/h4hal/hci"
)

// Stats counts traffic on a Protocol.
type Stats struct {
	RxPackets map[hci.PacketType]uint64 `json:"rx_packets"`
	RxBytes   uint64                    `json:"rx_bytes"`
	TxPackets uint64                    `json:"tx_packets"`
	TxBytes   uint64                    `json:"tx_bytes"`
	TxErrors  uint64                    `json:"tx_errors"`
}

func (s Stats) String() string {
	return fmt.Sprintf("rx %d bytes (cmd %d, acl %d, sco %d, evt %d, iso %d), tx %d packets %d bytes, %d tx errors",
		s.RxBytes,
		s.RxPackets[hci.Command], s.RxPackets[hci.AclData], s.RxPackets[hci.ScoData],
		s.RxPackets[hci.Event], s.RxPackets[hci.IsoData],
		s.TxPackets, s.TxBytes, s.TxErrors)
}

type stats struct {
	rxPackets [hci.IsoData + 1]uint64
	rxBytes   uint64
	txPackets uint64
	txBytes   uint64
	txErrors  uint64
}

func (s *stats) addRead(n int) {
	atomic.AddUint64(&s.rxBytes, uint64(n))
}

func (s *stats) addPacket(t hci.PacketType) {
	atomic.AddUint64(&s.rxPackets[t], 1)
}

func (s *stats) addWrite(n int, ok bool) {
	atomic.AddUint64(&s.txBytes, uint64(n))
	if ok {
		atomic.AddUint64(&s.txPackets, 1)
	} else {
		atomic.AddUint64(&s.txErrors, 1)
	}
}

func (s *stats) snapshot() Stats {
	out := Stats{
		RxPackets: make(map[hci.PacketType]uint64),
		RxBytes:   atomic.LoadUint64(&s.rxBytes),
		TxPackets: atomic.LoadUint64(&s.txPackets),
		TxBytes:   atomic.LoadUint64(&s.txBytes),
		TxErrors:  atomic.LoadUint64(&s.txErrors),
	}
	for t := hci.Command; t <= hci.IsoData; t++ {
		out.RxPackets[t] = atomic.LoadUint64(&s.rxPackets[t])
	}
	return out
}
