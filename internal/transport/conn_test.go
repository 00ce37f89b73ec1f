package transport

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// fakePort scripts the controller side of the exchange: everything in
// incoming is what the controller "sends"; writes are captured for
// inspection.
type fakePort struct {
	incoming bytes.Buffer
	outgoing bytes.Buffer
	flushes  int
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.incoming.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.outgoing.Write(b) }
func (p *fakePort) ResetInputBuffer() error {
	p.flushes++
	return nil
}

func batchLine(samples ...float64) string {
	tokens := make([]string, len(samples))
	for i, s := range samples {
		tokens[i] = fmt.Sprintf("%.2f", s)
	}
	return strings.Join(tokens, ";") + "\n"
}

func testRequest() Request {
	return Request{Kp: 5, Ki: 0.1, Kd: 0.2, RunTimeMs: 500, DumpRateMs: 100}
}

func revA(t *testing.T) FirmwareProfile {
	t.Helper()
	p, err := LookupFirmware("rev-a")
	if err != nil {
		t.Fatalf("lookup rev-a: %v", err)
	}
	return p
}

func TestRunTrialHappyPath(t *testing.T) {
	port := &fakePort{}
	port.incoming.WriteString("params done\n")
	port.incoming.WriteString(batchLine(0, 45, 85, 92, 90))

	conn := NewConn(port, revA(t))
	trace, err := conn.RunTrial(testRequest(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trace) != 5 {
		t.Fatalf("trace has %d samples, want 5", len(trace))
	}
	if trace[3] != 92 {
		t.Errorf("trace[3] = %v, want 92", trace[3])
	}

	out := port.outgoing.Bytes()
	if len(out) < FrameSize {
		t.Fatalf("no request frame written")
	}
	decoded, err := DecodeRequest(out[:FrameSize])
	if err != nil {
		t.Fatalf("written frame does not decode: %v", err)
	}
	if decoded.Kp != 5 || decoded.RunTimeMs != 500 {
		t.Errorf("frame carried %+v", decoded)
	}
	if !bytes.HasSuffix(out, []byte("angles received")) {
		t.Errorf("confirmation token not written; wrote %q", out)
	}
	if port.flushes != 1 {
		t.Errorf("input flushed %d times, want 1", port.flushes)
	}
}

func TestRunTrialSkipsStatusChatter(t *testing.T) {
	port := &fakePort{}
	port.incoming.WriteString("params done\n")
	port.incoming.WriteString("motor trim applied\n")
	port.incoming.WriteString(batchLine(90, 90, 90, 90, 90))

	conn := NewConn(port, revA(t))
	trace, err := conn.RunTrial(testRequest(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trace) != 5 {
		t.Errorf("trace has %d samples, want 5", len(trace))
	}
}

func TestRunTrialShortBatch(t *testing.T) {
	port := &fakePort{}
	port.incoming.WriteString("params done\n")
	port.incoming.WriteString(batchLine(90, 90, 90)) // 3 of 5 samples

	conn := NewConn(port, revA(t))
	_, err := conn.RunTrial(testRequest(), 200*time.Millisecond)

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if terr.Kind != KindShortBatch {
		t.Errorf("kind = %v, want short_batch", terr.Kind)
	}
	if len(terr.Partial) == 0 {
		t.Errorf("short batch error should carry the partial buffer")
	}
}

func TestRunTrialBadToken(t *testing.T) {
	port := &fakePort{}
	port.incoming.WriteString("params done\n")
	port.incoming.WriteString("90.00;garbage;90.00;90.00;90.00\n")

	conn := NewConn(port, revA(t))
	_, err := conn.RunTrial(testRequest(), 200*time.Millisecond)

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if terr.Kind != KindBadTelemetry {
		t.Errorf("kind = %v, want bad_telemetry", terr.Kind)
	}
}

func TestRunTrialTimeout(t *testing.T) {
	port := &fakePort{} // controller never answers

	conn := NewConn(port, revA(t))
	_, err := conn.RunTrial(testRequest(), 50*time.Millisecond)

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if terr.Kind != KindTimeout {
		t.Errorf("kind = %v, want timeout", terr.Kind)
	}
}

func TestRunTrialResendsUntilAck(t *testing.T) {
	port := &fakePort{}
	// No ack at first; the harness should re-send the frame rather
	// than give up before the deadline. The ack arrives on the
	// "second" exchange because the script is a single stream.
	port.incoming.WriteString("booting\n")
	port.incoming.WriteString("params done\n")
	port.incoming.WriteString(batchLine(0, 45, 85, 92, 90))

	conn := NewConn(port, revA(t))
	trace, err := conn.RunTrial(testRequest(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trace) != 5 {
		t.Errorf("trace has %d samples, want 5", len(trace))
	}
}

func TestRunTrialAngleCorrection(t *testing.T) {
	// rev-b firmware reports the angle with inverted sign; the
	// transport corrects it and wraps into [-180, 180].
	port := &fakePort{}
	port.incoming.WriteString("params done\n")
	port.incoming.WriteString(batchLine(-90, -90, -90, -90, -270))

	revB, err := LookupFirmware("rev-b")
	if err != nil {
		t.Fatalf("lookup rev-b: %v", err)
	}
	conn := NewConn(port, revB)
	trace, err := conn.RunTrial(testRequest(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trace[0] != 90 {
		t.Errorf("trace[0] = %v, want 90", trace[0])
	}
	if trace[4] != -90 {
		t.Errorf("trace[4] = %v, want -90 (270 wrapped)", trace[4])
	}
}

func TestRunTrialRejectsEmptyRequest(t *testing.T) {
	conn := NewConn(&fakePort{}, revA(t))
	_, err := conn.RunTrial(Request{RunTimeMs: 0, DumpRateMs: 0}, time.Second)
	if err == nil {
		t.Fatalf("expected error for zero-sample request")
	}
	var terr *TransportError
	if errors.As(err, &terr) {
		t.Errorf("config mistakes are not retryable transport errors")
	}
}
