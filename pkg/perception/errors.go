package perception

import "errors"

var (
	// ErrClassNotFound is returned when a class name is not in the table.
	ErrClassNotFound = errors.New("perception: class not found")

	// ErrEmptyClassTable is returned when a class file yields no names.
	ErrEmptyClassTable = errors.New("perception: class table is empty")
)
