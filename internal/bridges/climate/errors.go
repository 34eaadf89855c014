package climate

import "errors"

var (
	// ErrUnsupportedValue is returned for a mode outside the advertised lists.
	ErrUnsupportedValue = errors.New("climate: unsupported value")

	// ErrInvalidCommand is returned for a malformed or unknown bridge command.
	ErrInvalidCommand = errors.New("climate: invalid command")

	// ErrMissingAttribute is returned when the unit has not reported a value yet.
	ErrMissingAttribute = errors.New("climate: missing attribute")
)
