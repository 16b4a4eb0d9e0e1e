package meta

import (
	"errors"
	"fmt"
)

var (
	// ErrDeserialize matches every *DeserializationError via errors.Is.
	ErrDeserialize = errors.New("meta: invalid metadata document")
	// ErrNoIdentity indicates PrefixWith could not derive an identity from
	// the supplied holder.
	ErrNoIdentity = errors.New("meta: holder exposes no identity")
)

// DeserializationError reports stored metadata that is present but does not
// decode into a Document.
type DeserializationError struct {
	Raw string
	Err error
}

func (e *DeserializationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("meta: deserialize metadata: %v", e.Err)
}

func (e *DeserializationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is ErrDeserialize.
func (e *DeserializationError) Is(target error) bool {
	return target == ErrDeserialize
}
