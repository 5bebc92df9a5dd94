package lock

import (
	"errors"
	"fmt"
)

var ErrTimeout = errors.New("timed out waiting for lock")

// KeyError names the key AcquireAll failed on
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("lock %s: %v", e.Key, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}
