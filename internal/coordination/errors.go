package coordination

import "errors"

// ErrNotFound is returned when a lookup finds no matching key.
var ErrNotFound = errors.New("coordination: key not found")
