// go-hce
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-hce.
//
// go-hce is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-hce is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-hce; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Command hcetag serves URLs or a vCard as an NFC Forum Type 4 Tag through
// a PN532 in card emulation mode. Phones that tap the PN532 read the
// content as if it were a passive tag.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-hce"
	"github.com/ZaparooProject/go-hce/content"
	"github.com/ZaparooProject/go-hce/control"
	"github.com/ZaparooProject/go-hce/detection"
	_ "github.com/ZaparooProject/go-hce/detection/i2c"
	_ "github.com/ZaparooProject/go-hce/detection/spi"
	_ "github.com/ZaparooProject/go-hce/detection/uart"
	"github.com/ZaparooProject/go-hce/target"
	"github.com/ZaparooProject/go-hce/transport/i2c"
	"github.com/ZaparooProject/go-hce/transport/spi"
	"github.com/ZaparooProject/go-hce/transport/uart"
	"github.com/ZaparooProject/go-hce/type4"
)

// urlList collects repeated -url flags
type urlList []string

func (u *urlList) String() string {
	return strings.Join(*u, ",")
}

func (u *urlList) Set(value string) error {
	*u = append(*u, value)
	return nil
}

type config struct {
	devicePath      string
	vcardPath       string
	listenAddr      string
	logDir          string
	urls            urlList
	idleTimeout     time.Duration
	debug           bool
	mdns            bool
	inspect         bool
	echoWrongLength bool
	rejectEmpty     bool
}

func parseConfig(args []string, stderr io.Writer) (*config, error) {
	cfg := &config{}
	fs := flag.NewFlagSet("hcetag", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.devicePath, "device", "", "PN532 device: serial port, I2C bus, or spi:<port> (auto-detect if empty)")
	fs.Var(&cfg.urls, "url", "URL to serve (repeat for several records)")
	fs.StringVar(&cfg.vcardPath, "vcard", "", "vCard file to serve instead of URLs")
	fs.StringVar(&cfg.listenAddr, "listen", "", "Address for the HTTP/WebSocket control API, e.g. :8080")
	fs.BoolVar(&cfg.mdns, "mdns", false, "Advertise the control API with mDNS")
	fs.BoolVar(&cfg.debug, "debug", false, "Enable debug output")
	fs.StringVar(&cfg.logDir, "log", "", "Directory for a session log file")
	fs.BoolVar(&cfg.inspect, "inspect", false, "Print the NDEF file that would be served and exit")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", target.DefaultConfig().IdleTimeout,
		"End a reader session after this long without a command (0 waits forever)")
	fs.BoolVar(&cfg.echoWrongLength, "echo-wrong-length", false,
		"Answer over-long reads with 6C XX instead of the remaining bytes")
	fs.BoolVar(&cfg.rejectEmpty, "reject-empty", false, "Refuse selection while nothing is configured")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if len(cfg.urls) > 0 && cfg.vcardPath != "" {
		return nil, errors.New("-url and -vcard are mutually exclusive")
	}
	if cfg.mdns && cfg.listenAddr == "" {
		return nil, errors.New("-mdns needs -listen")
	}
	if cfg.idleTimeout < 0 {
		return nil, fmt.Errorf("-idle-timeout must not be negative, got %v", cfg.idleTimeout)
	}
	return cfg, nil
}

// initialContent builds the content given on the command line
func initialContent(cfg *config) (content.Content, error) {
	if cfg.vcardPath != "" {
		data, err := os.ReadFile(cfg.vcardPath)
		if err != nil {
			return content.None(), fmt.Errorf("read vCard: %w", err)
		}
		return content.VCard(string(data)), nil
	}
	return content.URLs(cfg.urls...), nil
}

func sessionOptions(cfg *config) []type4.Option {
	var opts []type4.Option
	if cfg.echoWrongLength {
		opts = append(opts, type4.WithLengthPolicy(type4.EchoWrongLength))
	}
	if cfg.rejectEmpty {
		opts = append(opts, type4.WithRejectWhenEmpty())
	}
	return opts
}

// runInspect prints the capability container and NDEF file for c
func runInspect(w io.Writer, c content.Content) error {
	file := type4.BuildFile(c)
	if file.Err != nil {
		return fmt.Errorf("content cannot be served: %w", file.Err)
	}
	desc, err := hce.DescribeNDEFFile(file.Bytes)
	if err != nil {
		return fmt.Errorf("decode NDEF file: %w", err)
	}

	_, _ = fmt.Fprintf(w, "Content:  %s\n", c)
	_, _ = fmt.Fprintf(w, "CC:       %s\n", hce.FormatHex(type4.BuildCapabilityContainer(len(file.Bytes))))
	_, _ = fmt.Fprintf(w, "NDEF:     %d bytes, %d record(s)\n", len(file.Bytes), file.Records)
	_, _ = fmt.Fprintln(w, desc)
	if file.Oversize {
		_, _ = fmt.Fprintln(w, "Warning: message is larger than some phones read")
	}
	if file.Records > 1 {
		_, _ = fmt.Fprintln(w, "Warning: many readers only act on the first record")
	}
	return nil
}

// transportType picks the transport for a device path: "spi:" paths and
// spidev nodes are SPI, paths naming an I2C bus are I2C, everything else
// is a serial port.
func transportType(path string) hce.TransportType {
	lower := strings.ToLower(path)
	switch {
	case strings.HasPrefix(lower, spi.PathPrefix), strings.Contains(lower, "spidev"):
		return hce.TransportSPI
	case strings.Contains(lower, "i2c"):
		return hce.TransportI2C
	default:
		return hce.TransportUART
	}
}

// newTransport creates a transport for path
func newTransport(path string) (hce.Transport, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}
	switch transportType(path) {
	case hce.TransportSPI:
		transport, err := spi.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport for %s: %w", path, err)
		}
		return transport, nil
	case hce.TransportI2C:
		transport, err := i2c.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport for %s: %w", path, err)
		}
		return transport, nil
	default:
		transport, err := uart.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
		}
		return transport, nil
	}
}

// findDevicePath returns path, or the best detected device when path is empty
func findDevicePath(ctx context.Context, path string) (string, error) {
	if path != "" {
		return path, nil
	}
	opts := detection.DefaultOptions()
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return "", fmt.Errorf("auto-detection failed: %w", err)
	}
	hce.Debugf("detected %s", devices[0])
	return devices[0].Path, nil
}

// openDevice opens and initializes the PN532
func openDevice(ctx context.Context, cfg *config) (*hce.Device, error) {
	path, err := findDevicePath(ctx, cfg.devicePath)
	if err != nil {
		return nil, err
	}
	transport, err := newTransport(path)
	if err != nil {
		return nil, err
	}
	device, err := hce.New(transport)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	if err := device.Init(ctx); err != nil {
		_ = device.Close()
		return nil, fmt.Errorf("failed to initialize PN532 at %s: %w", path, err)
	}
	return device, nil
}

func run(ctx context.Context, cfg *config, stdout io.Writer) error {
	initial, err := initialContent(cfg)
	if err != nil {
		return err
	}
	if cfg.inspect {
		return runInspect(stdout, initial)
	}

	store := content.Default()
	store.Set(initial)

	if cfg.listenAddr != "" {
		server := control.New(control.Config{Store: store, Addr: cfg.listenAddr, MDNS: cfg.mdns})
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("failed to start control API: %w", err)
		}
		_, _ = fmt.Fprintf(stdout, "Control API listening on %s\n", server.Addr())
	}

	device, err := openDevice(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = device.Close()
	}()
	if fw := device.FirmwareVersion(); fw != nil {
		_, _ = fmt.Fprintf(stdout, "PN532 firmware %s\n", fw.Version)
	}

	emulator := hce.NewEmulator(hce.WithStore(store), hce.WithSessionOptions(sessionOptions(cfg)...))

	loopCfg := target.DefaultConfig()
	loopCfg.IdleTimeout = cfg.idleTimeout
	loopCfg.Recovery.Reopen = func(ctx context.Context) (*hce.Device, error) {
		return openDevice(ctx, cfg)
	}
	loop := target.New(device, emulator, loopCfg)
	loop.SetOnActivated(func(*hce.Activation) {
		_, _ = fmt.Fprintf(stdout, "Reader connected, serving %s\n", store.Snapshot())
	})
	loop.SetOnDeactivated(func(reason hce.DeactivationReason) {
		_, _ = fmt.Fprintf(stdout, "Reader gone (%s)\n", reason)
	})

	_, _ = fmt.Fprintf(stdout, "Emulating Type 4 Tag with %s. Press Ctrl+C to stop...\n", store.Snapshot())
	err = loop.Run(ctx)
	stats := emulator.Stats()
	_, _ = fmt.Fprintf(stdout, "Served %d session(s), %d command(s), %d byte(s)\n",
		stats.Activations, stats.Commands, stats.BytesServed)
	if err != nil {
		return fmt.Errorf("target loop stopped: %w", err)
	}
	return nil
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	cfg, err := parseConfig(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if cfg.debug {
		hce.SetDebugEnabled(true)
	}
	if cfg.logDir != "" {
		path, err := hce.InitSessionLog(cfg.logDir)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer func() { _ = hce.CloseSessionLog() }()
		_, _ = fmt.Printf("Session log: %s\n", path)
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
