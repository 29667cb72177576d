// Command overwitch bridges a class-compliant USB audio/MIDI device to an
// in-process hostsim.Host ring buffer set; with --loopback, an in-memory
// loopback transport stands in for the device, for exercising the full
// pipeline without hardware.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/dolcy/overwitch/internal/config"
	"github.com/dolcy/overwitch/internal/device"
	"github.com/dolcy/overwitch/internal/dll"
	"github.com/dolcy/overwitch/internal/engine"
	"github.com/dolcy/overwitch/internal/hostsim"
)

func main() {
	cfg := config.Load()

	var (
		bus               = pflag.Uint8P("bus", "b", cfg.Bus, "USB bus number of the target device.")
		address           = pflag.Uint8P("address", "a", cfg.Address, "USB device address on that bus.")
		blocksPerTransfer = pflag.IntP("blocks-per-transfer", "t", cfg.BlocksPerTransfer, "Number of audio blocks batched into one USB transfer.")
		framesPerBlock    = pflag.IntP("frames-per-block", "f", cfg.FramesPerBlock, "Frames carried by one audio block.")
		debugLevel        = pflag.IntP("debug", "d", cfg.DebugLevel, "Debug verbosity (0 disables debug logging).")
		dumpInterval      = pflag.IntP("dump-interval", "i", 0, "Seconds between status dumps to stdout. 0 disables.")
		loopback          = pflag.BoolP("loopback", "l", false, "Run against an in-memory host instead of real hardware.")
		withDLL           = pflag.BoolP("dll", "k", false, "Attach a clock-estimating DLL to the audio path.")
		help              = pflag.BoolP("help", "h", false, "Display this help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: overwitch [flags]")
		fmt.Fprintln(os.Stderr, "\nBridges a class-compliant USB audio/MIDI device to host ring buffers.")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		return
	}

	engine.DebugLevel = *debugLevel

	var (
		e   *engine.Engine
		err error
	)
	if *loopback {
		e, err = runLoopback(*bus, *address, *blocksPerTransfer, *framesPerBlock)
	} else {
		e, err = engine.Init(*bus, *address, *blocksPerTransfer, *framesPerBlock)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "overwitch: %v\n", err)
		os.Exit(1)
	}

	host := hostsim.New(1<<20, 1<<20, 1<<14, 1<<14)
	var activateErr error
	if *withDLL {
		activateErr = e.ActivateWithDLL(host.IOBuffers(), dll.New())
	} else {
		activateErr = e.Activate(host.IOBuffers())
	}
	if activateErr != nil {
		fmt.Fprintf(os.Stderr, "overwitch: activate: %v\n", activateErr)
		os.Exit(1)
	}

	desc := e.GetDeviceDesc()
	fmt.Printf("overwitch: bridging %q (%d in / %d out channels)\n", desc.Name, desc.Inputs, desc.Outputs)

	e.SetP2OAudioEnable(true)
	// The host raises RUN once its own consumer/producer side is ready;
	// the CLI plays that role immediately since it has no external
	// audio-server integration of its own (spec's Non-goals).
	e.SetStatus(engine.StatusRun)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()

	var ticker *time.Ticker
	var tickCh <-chan time.Time
	if *dumpInterval > 0 {
		ticker = time.NewTicker(time.Duration(*dumpInterval) * time.Second)
		tickCh = ticker.C
		defer ticker.Stop()
	}

	for {
		select {
		case <-sigCh:
			e.Stop()
		case <-done:
			if err := e.Destroy(); err != nil {
				fmt.Fprintf(os.Stderr, "overwitch: %v\n", err)
				os.Exit(1)
			}
			return
		case <-tickCh:
			fmt.Printf("overwitch: status=%s p2o-enabled=%v\n", e.GetStatus(), e.IsP2OAudioEnable())
		}
	}
}

// runLoopback opens no real hardware: it synthesizes an Engine around the
// first table entry purely to exercise the pipeline end to end, the CLI's
// demo path that spec §4.8 calls for.
func runLoopback(bus, address uint8, blocksPerTransfer, framesPerBlock int) (*engine.Engine, error) {
	desc := device.Table[0]
	fmt.Printf("overwitch: loopback mode, simulating %q (bus=%d address=%d)\n", desc.Name, bus, address)
	return engine.NewLoopback(desc, blocksPerTransfer, framesPerBlock), nil
}
