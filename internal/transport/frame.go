package transport

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FrameSize is the length of one request frame on the wire: five
// little-endian IEEE 754 float32 fields.
const FrameSize = 5 * 4

// Request is one trial command for the embedded controller
type Request struct {
	Kp         float64
	Ki         float64
	Kd         float64
	RunTimeMs  int
	DumpRateMs int
}

// ArraySize returns the number of telemetry samples the controller will
// stream back for this request. Integer division: trailing samples that
// do not fill a whole dump interval are dropped by the firmware.
func (r Request) ArraySize() int {
	if r.DumpRateMs <= 0 {
		return 0
	}
	return r.RunTimeMs / r.DumpRateMs
}

// Encode serializes the request into the firmware's fixed frame layout:
// [Kp, Ki, Kd, run_time, dump_rate], each a little-endian float32.
func (r Request) Encode() []byte {
	fields := [5]float64{r.Kp, r.Ki, r.Kd, float64(r.RunTimeMs), float64(r.DumpRateMs)}
	buf := make([]byte, FrameSize)
	for i, f := range fields {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(f)))
	}
	return buf
}

// DecodeRequest parses a frame back into a request. Used by the fake
// controller in tests; the real firmware does the equivalent in C.
func DecodeRequest(frame []byte) (Request, error) {
	if len(frame) != FrameSize {
		return Request{}, fmt.Errorf("transport: frame is %d bytes, want %d", len(frame), FrameSize)
	}
	var fields [5]float64
	for i := range fields {
		fields[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(frame[i*4:])))
	}
	return Request{
		Kp:         fields[0],
		Ki:         fields[1],
		Kd:         fields[2],
		RunTimeMs:  int(fields[3]),
		DumpRateMs: int(fields[4]),
	}, nil
}
