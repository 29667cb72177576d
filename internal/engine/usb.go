package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gousb"

	"github.com/dolcy/overwitch/internal/device"
)

// errMidiTimeout is the sentinel a usbTransport returns from ReadMidiIn to
// signal a benign idle timeout (spec §4.4, §5: "TIMED_OUT on MIDI-in is
// silent and benign"). gousbTransport produces it itself, by bounding every
// MIDI-in read with midiInReadTimeout (see ReadMidiIn below); without that
// bound, an idle device would block the read forever and Destroy could
// never join runO2PMidi on real hardware.
var errMidiTimeout = errors.New("midi in: timed out")

// midiInReadTimeout bounds each MIDI-in read so runO2PMidi's status check
// reliably gets a turn even when the device has nothing to send; it plays
// the role the original's libusb timeout would, generalized here through
// gousb's ReadContext (internal/driver/device/usb_device.go's own
// ReadPacket uses the same context.WithTimeout + ReadContext idiom for its
// ASIC reads).
const midiInReadTimeout = 200 * time.Millisecond

func isMidiTimeout(err error) bool {
	return errors.Is(err, errMidiTimeout)
}

// USB endpoint addresses, fixed by the device class (spec §4.1, §6).
const (
	epAudioOutAddr = 0x03
	epAudioInAddr  = 0x83
	epMidiOutAddr  = 0x01
	epMidiInAddr   = 0x81

	usbBulkMidiSize = 512
)

// usbTransport is the engine's boundary to the USB bus: four persistent,
// one-in-flight-per-kind transfer channels. One implementation
// (gousbTransport) drives real hardware through github.com/google/gousb;
// a second (fakeTransport, in engine's test files) drives the end-to-end
// scenarios from spec §8 without hardware, per the spec's "mock USB
// backend" requirement.
type usbTransport interface {
	Close() error
	ReadAudioIn(buf []byte) (int, error)
	WriteAudioOut(buf []byte) (int, error)
	ReadMidiIn(buf []byte) (int, error)
	WriteMidiOut(buf []byte) (int, error)
}

// gousbTransport drives a real class-compliant device through gousb,
// generalizing the teacher's own usage pattern (internal/driver/device
// /usb_device.go: OpenDeviceWithVIDPID, Config, Interface, In/OutEndpoint)
// to the engine's three interfaces / four endpoints.
type gousbTransport struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	intf1 *gousb.Interface // alt 3: audio
	intf2 *gousb.Interface // alt 2: audio
	intf3 *gousb.Interface // alt 0: MIDI

	audioIn  io.ReadCloser  // gousb stream, depth 1: exactly one transfer in flight
	audioOut io.WriteCloser // gousb stream, depth 1
	midiIn   *gousb.InEndpoint
	midiOut  *gousb.OutEndpoint
}

// openUSBDevice finds, opens, and configures the device at (bus, address),
// and returns a ready usbTransport plus its matched Descriptor. It mirrors
// ow_engine_init's discovery/claim/clear-halt sequence (engine.c) step for
// step, mapping each failure to an ErrKind; claim and alt-setting failures
// both map to ErrCantClaimIF (see below). The two audio
// streams are sized only once the matched Descriptor gives us channel
// counts, since audio-in (outputs channels) and audio-out (inputs
// channels) blocks are not generally the same length.
func openUSBDevice(bus, address uint8, framesPerBlock, blocksPerTransfer int) (usbTransport, device.Descriptor, error) {
	ctx := gousb.NewContext()

	var matched *gousb.Device
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint8(desc.Bus) == bus && uint8(desc.Address) == address
	})
	for i, d := range devs {
		if i == 0 {
			matched = d
		} else {
			d.Close() // bus/address is unique; keep only the first match
		}
	}
	if err != nil || matched == nil {
		ctx.Close()
		return nil, device.Descriptor{}, newErr(ErrCantFindDev)
	}

	desc, ok := device.Find(uint16(matched.Desc.Vendor), uint16(matched.Desc.Product))
	if !ok {
		matched.Close()
		ctx.Close()
		return nil, device.Descriptor{}, newErr(ErrCantFindDev)
	}

	cfg, err := matched.Config(1)
	if err != nil {
		matched.Close()
		ctx.Close()
		return nil, device.Descriptor{}, newErr(ErrCantSetUSBConfig)
	}

	// gousb's Interface(num, alt) claims the interface and sets its alt
	// setting in a single call, unlike libusb's two discrete steps; any
	// failure here is reported as CANT_CLAIM_IF, so ErrCantSetAltSetting
	// is never returned.
	intf1, err := cfg.Interface(1, 3)
	if err != nil {
		cfg.Close()
		matched.Close()
		ctx.Close()
		return nil, device.Descriptor{}, newErr(ErrCantClaimIF)
	}
	intf2, err := cfg.Interface(2, 2)
	if err != nil {
		intf1.Close()
		cfg.Close()
		matched.Close()
		ctx.Close()
		return nil, device.Descriptor{}, newErr(ErrCantClaimIF)
	}
	intf3, err := cfg.Interface(3, 0)
	if err != nil {
		intf2.Close()
		intf1.Close()
		cfg.Close()
		matched.Close()
		ctx.Close()
		return nil, device.Descriptor{}, newErr(ErrCantClaimIF)
	}

	for _, ep := range []int{epAudioInAddr, epAudioOutAddr, epMidiInAddr, epMidiOutAddr} {
		if err := clearHalt(matched, ep); err != nil {
			intf3.Close()
			intf2.Close()
			intf1.Close()
			cfg.Close()
			matched.Close()
			ctx.Close()
			return nil, device.Descriptor{}, newErr(ErrCantClearEP)
		}
	}

	audioInEP, err := intf1.InEndpoint(epAudioInAddr & 0x7f)
	if err != nil {
		intf3.Close()
		intf2.Close()
		intf1.Close()
		cfg.Close()
		matched.Close()
		ctx.Close()
		return nil, device.Descriptor{}, newErr(ErrCantPrepareTransfer)
	}
	audioOutEP, err := intf1.OutEndpoint(epAudioOutAddr & 0x7f)
	if err != nil {
		intf3.Close()
		intf2.Close()
		intf1.Close()
		cfg.Close()
		matched.Close()
		ctx.Close()
		return nil, device.Descriptor{}, newErr(ErrCantPrepareTransfer)
	}
	midiInEP, err := intf3.InEndpoint(epMidiInAddr & 0x7f)
	if err != nil {
		intf3.Close()
		intf2.Close()
		intf1.Close()
		cfg.Close()
		matched.Close()
		ctx.Close()
		return nil, device.Descriptor{}, newErr(ErrCantPrepareTransfer)
	}
	midiOutEP, err := intf3.OutEndpoint(epMidiOutAddr & 0x7f)
	if err != nil {
		intf3.Close()
		intf2.Close()
		intf1.Close()
		cfg.Close()
		matched.Close()
		ctx.Close()
		return nil, device.Descriptor{}, newErr(ErrCantPrepareTransfer)
	}

	inTransferSize := blocksPerTransfer * blockLen(framesPerBlock, desc.Outputs)
	outTransferSize := blocksPerTransfer * blockLen(framesPerBlock, desc.Inputs)

	// Depth 1: gousb keeps exactly one transfer in flight for this
	// endpoint, resubmitting only once the previous one's bytes have been
	// consumed by the caller's Read/Write — the literal Go expression of
	// "exactly one transfer in flight" (spec §8 invariant 5).
	audioIn, err := audioInEP.NewStream(inTransferSize, 1)
	if err != nil {
		intf3.Close()
		intf2.Close()
		intf1.Close()
		cfg.Close()
		matched.Close()
		ctx.Close()
		return nil, device.Descriptor{}, newErr(ErrCantPrepareTransfer)
	}
	audioOut, err := audioOutEP.NewStream(outTransferSize, 1)
	if err != nil {
		audioIn.Close()
		intf3.Close()
		intf2.Close()
		intf1.Close()
		cfg.Close()
		matched.Close()
		ctx.Close()
		return nil, device.Descriptor{}, newErr(ErrCantPrepareTransfer)
	}

	return &gousbTransport{
		ctx: ctx, dev: matched, cfg: cfg,
		intf1: intf1, intf2: intf2, intf3: intf3,
		audioIn: audioIn, audioOut: audioOut,
		midiIn: midiInEP, midiOut: midiOutEP,
	}, desc, nil
}

func clearHalt(dev *gousb.Device, ep int) error {
	// Standard CLEAR_FEATURE(ENDPOINT_HALT) request: host-to-device,
	// standard type, endpoint recipient.
	const (
		reqTypeEndpointOut = 0x02
		reqClearFeature    = 0x01
		featEndpointHalt   = 0x00
	)
	_, err := dev.Control(reqTypeEndpointOut, reqClearFeature, featEndpointHalt, uint16(ep), nil)
	return err
}

func (t *gousbTransport) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(t.audioIn.Close())
	record(t.audioOut.Close())
	t.intf3.Close()
	t.intf2.Close()
	t.intf1.Close()
	t.cfg.Close()
	record(t.dev.Close())
	record(t.ctx.Close())
	if firstErr != nil {
		return fmt.Errorf("usb shutdown: %w", firstErr)
	}
	return nil
}

func (t *gousbTransport) ReadAudioIn(buf []byte) (int, error) {
	return t.audioIn.Read(buf)
}

func (t *gousbTransport) WriteAudioOut(buf []byte) (int, error) {
	return t.audioOut.Write(buf)
}

func (t *gousbTransport) ReadMidiIn(buf []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), midiInReadTimeout)
	defer cancel()
	n, err := t.midiIn.ReadContext(ctx, buf)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, errMidiTimeout
		}
		return 0, err
	}
	return n, nil
}

func (t *gousbTransport) WriteMidiOut(buf []byte) (int, error) {
	return t.midiOut.Write(buf)
}
