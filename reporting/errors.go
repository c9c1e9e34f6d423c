package reporting

import (
	"errors"
	"fmt"
)

// ChannelWriteError is returned when a message cannot be written to the
// report channel. The controller cannot trust a partial stream, so callers
// treat it as fatal.
type ChannelWriteError struct {
	Op  string
	Err error
}

func (e *ChannelWriteError) Error() string {
	return fmt.Sprintf("report channel write failed (%s): %v", e.Op, e.Err)
}

func (e *ChannelWriteError) Unwrap() error {
	return e.Err
}

// IsChannelWriteError reports whether err wraps a ChannelWriteError
func IsChannelWriteError(err error) bool {
	var cwe *ChannelWriteError
	return err != nil && errors.As(err, &cwe)
}
