package register

import "errors"

// Domain errors for the register package.
var (
	// ErrRegisterNotFound is returned when a register ID does not exist.
	ErrRegisterNotFound = errors.New("register: not found")

	// ErrInvalidTable is returned for an unknown register table.
	ErrInvalidTable = errors.New("register: invalid type")

	// ErrInvalidDataType is returned for an unknown data type.
	ErrInvalidDataType = errors.New("register: invalid data type")
)
