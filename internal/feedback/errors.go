package feedback

import (
	"errors"
	"fmt"
)

// ErrRecordNotFound is returned when a record id does not exist.
var ErrRecordNotFound = errors.New("feedback record not found")

// RejectionError is a hard veto from the spam classifier. Message is shown
// to the submitter as is.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

// StorageError reports a failed record write. Nothing of the record is
// left behind when it is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("feedback storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
