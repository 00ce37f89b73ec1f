package transport

import "fmt"

// ErrorKind classifies transport failures for retry decisions
type ErrorKind int

const (
	// KindTimeout means the controller went silent before the batch completed
	KindTimeout ErrorKind = iota
	// KindShortBatch means the batch parsed but carried the wrong sample count
	KindShortBatch
	// KindBadTelemetry means the batch contained a non-numeric token
	KindBadTelemetry
	// KindIO means the underlying port failed
	KindIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindShortBatch:
		return "short_batch"
	case KindBadTelemetry:
		return "bad_telemetry"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// TransportError is returned for every recoverable trial failure. It
// carries whatever was buffered when the exchange broke down so the
// caller can log it before retrying.
type TransportError struct {
	Kind    ErrorKind
	Partial []byte
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport %s: %v (partial %d bytes)", e.Kind, e.Err, len(e.Partial))
	}
	return fmt.Sprintf("transport %s (partial %d bytes)", e.Kind, len(e.Partial))
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
