package reactor

import "fmt"

// Error reports a failed Selector operation.
type Error struct {
	Op  string
	Fd  int
	Msg string
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("reactor: %s: %v", e.Op, e.Err)
	case e.Fd >= 0:
		return fmt.Sprintf("reactor: %s fd %d: %s", e.Op, e.Fd, e.Msg)
	default:
		return fmt.Sprintf("reactor: %s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
