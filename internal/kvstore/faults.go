package kvstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// FaultKind classifies a failure talking to the key-value service.
type FaultKind string

const (
	// FaultTimeout covers deadline and i/o timeout failures.
	FaultTimeout FaultKind = "timeout"
	// FaultConnectionRefused covers refused or reset connections.
	FaultConnectionRefused FaultKind = "connection_refused"
	// FaultRateLimited covers server-side pushback (OOM, maxclients).
	FaultRateLimited FaultKind = "rate_limited"
	// FaultServerFault covers transient server states (LOADING, READONLY).
	FaultServerFault FaultKind = "server_fault"
	// FaultOther covers everything else.
	FaultOther FaultKind = "other"
)

// Fault is a classified error produced at the key-value boundary.
type Fault struct {
	Kind FaultKind
	Op   string
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("kvstore %s: %s: %v", f.Op, f.Kind, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// KindOf extracts the fault kind from an error chain.
func KindOf(err error) (FaultKind, bool) {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault.Kind, true
	}
	return "", false
}

// classify wraps err into a Fault with the matching kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Kind: kindFor(err), Op: op, Err: err}
}

func kindFor(err error) FaultKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FaultTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FaultTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return FaultConnectionRefused
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "i/o timeout") || strings.Contains(msg, "timeout"):
		return FaultTimeout
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe"):
		return FaultConnectionRefused
	case strings.Contains(msg, "max number of clients") || strings.Contains(msg, "oom command not allowed"):
		return FaultRateLimited
	case strings.Contains(msg, "loading") || strings.Contains(msg, "readonly") || strings.Contains(msg, "clusterdown") || strings.Contains(msg, "busy"):
		return FaultServerFault
	default:
		return FaultOther
	}
}
