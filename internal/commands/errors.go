package commands

import "errors"

// ErrForbidden is returned when the sender's role does not allow the
// command.
var ErrForbidden = errors.New("forbidden")
