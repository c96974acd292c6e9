package detector

import "io"

// Porter is the minimal interface a detector connection must satisfy. Real
// serial ports, replay files and the synthetic generator all implement it,
// so the mux can be tested without hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}
