// Package transport drives the serial exchange with the embedded
// controller: one fixed-layout request frame out, one delimited
// telemetry batch back, one acknowledgment each way.
package transport

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/robotune/harness-core/internal/telemetry"
	"github.com/robotune/harness-core/pkg/config"
	"github.com/robotune/harness-core/pkg/logger"
)

const (
	// paramsAckToken appears in the controller's line acknowledging a
	// parameter frame
	paramsAckToken = "done"
	// anglesReceivedToken is sent back after a good batch; the
	// controller blocks on it before accepting the next request
	anglesReceivedToken = "angles received"
	// resendInterval is how long to wait for a parameter ack before
	// writing the frame again
	resendInterval = 500 * time.Millisecond
)

// Port is the byte-level connection the transport needs. Satisfied by
// go.bug.st/serial.Port and by in-memory fakes in tests.
type Port interface {
	io.ReadWriter
}

// inputFlusher is optionally implemented by ports that buffer input;
// real serial ports do.
type inputFlusher interface {
	ResetInputBuffer() error
}

// Conn owns one serial connection to the controller. Calls are strictly
// sequential: the robot physically executes a rotation inside RunTrial,
// and there is exactly one robot.
type Conn struct {
	port     Port
	firmware FirmwareProfile
	closer   io.Closer
}

// Open dials the configured serial port and wraps it in a Conn
func Open(cfg config.SerialConfig, firmware FirmwareProfile) (*Conn, error) {
	mode := &serial.Mode{BaudRate: cfg.BaudRate}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to open %s: %w", cfg.Port, err)
	}
	// Short poll timeout; the trial deadline is enforced in readLine.
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: failed to set read timeout on %s: %w", cfg.Port, err)
	}
	return &Conn{port: port, firmware: firmware, closer: port}, nil
}

// NewConn wraps an existing port. Tests use this with an in-memory fake.
func NewConn(port Port, firmware FirmwareProfile) *Conn {
	return &Conn{port: port, firmware: firmware}
}

// Firmware returns the profile this connection interprets telemetry with
func (c *Conn) Firmware() FirmwareProfile {
	return c.firmware
}

// Close releases the underlying port
func (c *Conn) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// RunTrial sends one trial request and blocks until the full telemetry
// batch arrives or the timeout elapses. The robot executes a physical
// rotation during this call. All failures come back as *TransportError
// so the cost function can decide whether to retry.
func (c *Conn) RunTrial(req Request, timeout time.Duration) (telemetry.Trace, error) {
	if req.ArraySize() <= 0 {
		return nil, fmt.Errorf("transport: request yields no samples (run_time=%d dump_rate=%d)", req.RunTimeMs, req.DumpRateMs)
	}
	deadline := time.Now().Add(timeout)

	c.flushInput()

	if err := c.sendRequest(req, deadline); err != nil {
		return nil, err
	}
	return c.collectBatch(req.ArraySize(), deadline)
}

// sendRequest writes the parameter frame and waits for the controller's
// ack line, re-sending on silence until the deadline.
func (c *Conn) sendRequest(req Request, deadline time.Time) error {
	frame := req.Encode()
	for {
		if _, err := c.port.Write(frame); err != nil {
			return &TransportError{Kind: KindIO, Err: err}
		}
		logger.Debug("trial request sent",
			"kp", req.Kp, "ki", req.Ki, "kd", req.Kd,
			"run_time_ms", req.RunTimeMs, "dump_rate_ms", req.DumpRateMs)

		// The controller needs a beat to unpack the frame before it
		// prints the ack.
		time.Sleep(50 * time.Millisecond)

		ackDeadline := time.Now().Add(resendInterval)
		if ackDeadline.After(deadline) {
			ackDeadline = deadline
		}
		line, err := c.readLine(ackDeadline)
		if err != nil {
			if time.Now().Before(deadline) {
				continue // resend the frame
			}
			return &TransportError{Kind: KindTimeout, Partial: []byte(line), Err: err}
		}
		if strings.Contains(line, paramsAckToken) {
			return nil
		}
		// Some other status line; keep waiting for the ack.
		logger.Debug("controller status", "line", line)
		if time.Now().After(deadline) {
			return &TransportError{Kind: KindTimeout, Partial: []byte(line)}
		}
	}
}

// collectBatch reads the telemetry line, validates it and confirms
// receipt to the controller.
func (c *Conn) collectBatch(arraySize int, deadline time.Time) (telemetry.Trace, error) {
	for {
		line, err := c.readLine(deadline)
		if err != nil {
			return nil, &TransportError{Kind: KindTimeout, Partial: []byte(line), Err: err}
		}
		line = strings.TrimSpace(line)
		if !strings.Contains(line, ";") {
			// Status chatter, not a batch; batches are always
			// semicolon-delimited.
			if line != "" {
				logger.Debug("controller status", "line", line)
			}
			if time.Now().After(deadline) {
				return nil, &TransportError{Kind: KindTimeout, Partial: []byte(line)}
			}
			continue
		}

		trace, err := c.parseBatch(line, arraySize)
		if err != nil {
			return nil, err
		}

		if _, err := c.port.Write([]byte(anglesReceivedToken)); err != nil {
			return nil, &TransportError{Kind: KindIO, Partial: []byte(line), Err: err}
		}
		return trace, nil
	}
}

// parseBatch splits a semicolon-delimited batch line into a corrected
// angle trace of exactly arraySize samples.
func (c *Conn) parseBatch(line string, arraySize int) (telemetry.Trace, error) {
	tokens := strings.Split(line, ";")
	trace := make(telemetry.Trace, 0, arraySize)
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, &TransportError{Kind: KindBadTelemetry, Partial: []byte(line), Err: fmt.Errorf("bad token %q: %w", tok, err)}
		}
		trace = append(trace, telemetry.NormalizeAngle(c.firmware.AngleSign*v))
	}
	if len(trace) != arraySize {
		return nil, &TransportError{
			Kind:    KindShortBatch,
			Partial: []byte(line),
			Err:     fmt.Errorf("got %d samples, want %d", len(trace), arraySize),
		}
	}
	return trace, nil
}

// readLine accumulates bytes until a newline or the deadline. A closed
// port reads as a timeout: the controller resets the USB CDC link when
// it reboots mid-trial.
func (c *Conn) readLine(deadline time.Time) (string, error) {
	var buf []byte
	one := make([]byte, 1)
	for {
		if time.Now().After(deadline) {
			return string(buf), fmt.Errorf("read deadline exceeded")
		}
		n, err := c.port.Read(one)
		if err != nil {
			if err == io.EOF {
				return string(buf), fmt.Errorf("port closed: %w", err)
			}
			return string(buf), err
		}
		if n == 0 {
			continue
		}
		if one[0] == '\n' {
			return strings.TrimRight(string(buf), "\r"), nil
		}
		buf = append(buf, one[0])
	}
}

func (c *Conn) flushInput() {
	if f, ok := c.port.(inputFlusher); ok {
		if err := f.ResetInputBuffer(); err != nil {
			logger.Warn("failed to flush serial input", "error", err)
		}
	}
}
