package sensor

import (
	"errors"
	"fmt"

	"github.com/widdakay/fan-controller/pkg"
)

type ErrorKind int

const (
	ErrNotInitialized ErrorKind = iota
	ErrReadFailed
	ErrInvalidData
	ErrTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNotInitialized:
		return "not initialized"
	case ErrReadFailed:
		return "read failed"
	case ErrInvalidData:
		return "invalid data"
	case ErrTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// errNotThisPart is returned by factories whose identification handshake got
// an answer, just not the one this driver requires.
var errNotThisPart = errors.New("identification mismatch")

// Error records a failed sensor operation together with the transaction
// bytes that caused it.
type Error struct {
	Kind     ErrorKind
	Send     []byte
	Received []byte
	Err      error
}

func (e *Error) Error() string {
	ret := e.Kind.String()
	if e.Err != nil {
		ret += ": " + e.Err.Error()
	}
	if e.Send != nil {
		ret += fmt.Sprintf(", Send: [% X]%s", e.Send, pkg.Printable(e.Send))
	}
	if e.Received != nil {
		ret += fmt.Sprintf(", Rcvd: [% X]%s", e.Received, pkg.Printable(e.Received))
	}
	return ret
}

func (e *Error) Unwrap() error {
	return e.Err
}
