//go:build linux
// +build linux

package h4

import (
	"os"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
)

// DefaultSerialOptions returns raw 8N1 settings with hardware flow control,
// the usual configuration of an H4 controller UART.
func DefaultSerialOptions() serial.OpenOptions {
	return serial.OpenOptions{
		PortName:          "/dev/ttyACM0",
		BaudRate:          115200,
		DataBits:          8,
		ParityMode:        serial.PARITY_NONE,
		StopBits:          1,
		RTSCTSFlowControl: true,
		MinimumReadSize:   1,
	}
}

// OpenSerial opens a UART for H4 and returns it as a file whose descriptor
// can be handed to New and a FdWatcher.
func OpenSerial(opts serial.OpenOptions) (*os.File, error) {
	// reads only happen after poll reports data, and a zero length read
	// must mean hangup, not an expired inter-character timer
	opts.MinimumReadSize = 1
	opts.InterCharacterTimeout = 0

	rwc, err := serial.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %s", opts.PortName)
	}

	f, ok := rwc.(*os.File)
	if !ok {
		rwc.Close()
		return nil, errors.Errorf("serial port %s is a %T, not a file", opts.PortName, rwc)
	}
	return f, nil
}
