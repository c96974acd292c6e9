package detector

import (
	"go.bug.st/serial"
)

// NewRealSourceMux opens the serial port at path and returns a mux reading
// keypoint lines from it.
func NewRealSourceMux(path string, opts PortOptions) (*SourceMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewSourceMux[serial.Port](port), nil
}
