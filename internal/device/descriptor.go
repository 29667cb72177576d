// Package device holds the static table of known class-compliant USB
// audio/MIDI interfaces the engine matches against during discovery.
//
// The original C engine (engine.c, ow_engine_init) walks a NULL-terminated
// OB_DEVICE_DESCS array and compares the device's USB product string
// against each entry's name. This package mirrors that shape with a plain
// Go slice and a Vendor/Product match instead, following the teacher's
// (internal/driver/device) pattern of small immutable constant tables.
package device

// Descriptor is an immutable record describing one supported device: its
// display name and the channel counts the engine needs to size its
// transfer buffers.
type Descriptor struct {
	Name    string
	Vendor  uint16
	Product uint16
	Inputs  int // host -> device channels (p2o)
	Outputs int // device -> host channels (o2p)
}

// Table lists the known devices this engine can bridge. Vendor 0x1935 is
// Elektron AB's registered USB vendor ID; product IDs below follow the
// numbering of their class-compliant audio/MIDI interfaces.
var Table = []Descriptor{
	{Name: "Elektron Digitakt", Vendor: 0x1935, Product: 0x0004, Inputs: 2, Outputs: 12},
	{Name: "Elektron Digitone", Vendor: 0x1935, Product: 0x0006, Inputs: 2, Outputs: 12},
	{Name: "Elektron Analog Four MKII", Vendor: 0x1935, Product: 0x0008, Inputs: 6, Outputs: 6},
	{Name: "Elektron Analog Rytm MKII", Vendor: 0x1935, Product: 0x000a, Inputs: 12, Outputs: 12},
	{Name: "Elektron Model:Samples", Vendor: 0x1935, Product: 0x0010, Inputs: 2, Outputs: 4},
	{Name: "Elektron Syntakt", Vendor: 0x1935, Product: 0x0014, Inputs: 2, Outputs: 12},
}

// Find returns the descriptor matching the given vendor/product pair, or
// ok=false if none is known.
func Find(vendor, product uint16) (Descriptor, bool) {
	for _, d := range Table {
		if d.Vendor == vendor && d.Product == product {
			return d, true
		}
	}
	return Descriptor{}, false
}
