package img2bag

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package matches exactly one of them with
// errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrDiscovery     = errors.New("discovery error")
	ErrDecode        = errors.New("decode error")
	ErrWrite         = errors.New("write error")
)

var (
	ErrNotADirectory = errors.New("not a directory")
	ErrNoImages      = errors.New("no images found in any directory")
	ErrInvalidRate   = errors.New("rate must be a finite number greater than zero")
	// ErrStampRange is returned for frames that a builtin_interfaces/Time cannot hold.
	ErrStampRange = errors.New("timestamp out of range")
)

var (
	errInvalidFormat     = errors.New("invalid message format")
	errUnresolvedMsgType = errors.New("failed to resolve a complex message type")
	errInvalidConstType  = errors.New("invalid const type")
	errInvalidDataType   = errors.New("data must be a pointer to a struct")
	errUnknownMsgType    = errors.New("unknown message type")
	errUnknownTopic      = errors.New("topic was not created")
	errClosed            = errors.New("bag is closed")
)

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string {
	return e.err.Error()
}

func (e *kindError) Unwrap() error {
	return e.err
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func withKind(kind, err error) error {
	if err == nil {
		return nil
	}
	// keep the innermost kind, a decode error stays a decode error when wrapped again
	var ke *kindError
	if errors.As(err, &ke) {
		return err
	}
	return &kindError{kind: kind, err: err}
}

func configErrorf(format string, args ...interface{}) error {
	return &kindError{kind: ErrConfiguration, err: fmt.Errorf(format, args...)}
}
