//go:build linux
// +build linux

// h4dump opens an H4 channel to a controller and prints every packet it
// receives.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rigado/h4hal"
	"github.com/rigado/h4hal/hci"
	"github.com/rigado/h4hal/linux"
	"github.com/rigado/h4hal/linux/h4"
	"github.com/urfave/cli"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HCI_Reset, opcode 0x0c03, no parameters.
var resetCommand = []byte{0x03, 0x0c, 0x00}

var (
	flgHCI   = cli.IntFlag{Name: "hci", Value: -1, Usage: "HCI device id for the user channel, -1 picks the first free one"}
	flgUart  = cli.StringFlag{Name: "uart, u", Usage: "serial port of an H4 controller"}
	flgBaud  = cli.UintFlag{Name: "baud, b", Value: 115200, Usage: "baud rate of the serial port"}
	flgTCP   = cli.StringFlag{Name: "tcp, t", Usage: "address of an H4 over TCP server"}
	flgReset = cli.BoolFlag{Name: "reset, r", Usage: "send HCI_Reset once the channel is open"}
	flgJSON  = cli.BoolFlag{Name: "json, j", Usage: "print packets as JSON lines"}
	flgIdle  = cli.DurationFlag{Name: "idle, i", Usage: "log when nothing arrives for this long"}
	flgDebug = cli.BoolFlag{Name: "debug, d", Usage: "log at debug level"}
)

type record struct {
	Time   time.Time      `json:"time"`
	Type   hci.PacketType `json:"type"`
	Length int            `json:"len"`
	Data   string         `json:"data"`
}

func main() {
	app := cli.NewApp()

	app.Name = "h4dump"
	app.Usage = "Dump HCI packets from an H4 channel"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{flgHCI, flgUart, flgBaud, flgTCP, flgReset, flgJSON, flgIdle, flgDebug}
	app.Action = dump

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func transportOption(c *cli.Context) (h4hal.Option, error) {
	uart, tcp := c.String("uart"), c.String("tcp")
	switch {
	case uart != "" && tcp != "":
		return nil, errors.New("--uart and --tcp are exclusive")
	case uart != "":
		so := h4.DefaultSerialOptions()
		so.PortName = uart
		so.BaudRate = c.Uint("baud")
		return h4hal.OptTransportH4UartOptions(so), nil
	case tcp != "":
		return h4hal.OptTransportH4Socket(tcp, 5*time.Second), nil
	default:
		return h4hal.OptTransportHCISocket(c.Int("hci")), nil
	}
}

func dump(c *cli.Context) error {
	if c.Bool("debug") {
		h4hal.SetLogLevelMax()
	}
	logger := h4hal.GetLogger()

	topt, err := transportOption(c)
	if err != nil {
		return err
	}

	emit := printer(c.Bool("json"))
	h := h4.Handlers{
		OnCommand: func(b []byte) { emit(hci.Command, b) },
		OnAcl:     func(b []byte) { emit(hci.AclData, b) },
		OnSco:     func(b []byte) { emit(hci.ScoData, b) },
		OnEvent:   func(b []byte) { emit(hci.Event, b) },
		OnIso:     func(b []byte) { emit(hci.IsoData, b) },
	}

	opts := []h4hal.Option{topt}
	if idle := c.Duration("idle"); idle > 0 {
		opts = append(opts, h4hal.OptIdleTimeout(idle, func() {
			logger.Infof("nothing received for %v", idle)
		}))
	}

	d, err := linux.NewDevice(h, opts...)
	if err != nil {
		return errors.Wrap(err, "can't open device")
	}
	defer func() {
		d.Close()
		logger.Infof("stats: %v", d.Stats())
	}()

	if c.Bool("reset") {
		if _, err := d.Send(hci.Command, resetCommand); err != nil {
			return errors.Wrap(err, "can't send reset")
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case s := <-sig:
		logger.Infof("got %v, closing", s)
		return nil
	case <-d.Done():
		if err := d.Err(); err != nil && errors.Cause(err) != h4hal.ErrClosed {
			logger.Infof("channel stopped: %v", err)
		}
		return nil
	}
}

func printer(asJSON bool) func(hci.PacketType, []byte) {
	if !asJSON {
		return func(t hci.PacketType, b []byte) {
			fmt.Printf("%s %3d % x\n", t, len(b), b)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	return func(t hci.PacketType, b []byte) {
		r := record{Time: time.Now(), Type: t, Length: len(b), Data: hex.EncodeToString(b)}
		if err := enc.Encode(r); err != nil {
			h4hal.GetLogger().Errorf("can't encode packet: %v", err)
		}
	}
}
