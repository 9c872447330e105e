package vault

import "errors"

var (
	// ErrLocked is returned when Safe Mode data is needed but no data key is
	// in memory.
	ErrLocked = errors.New("vault is locked")
	// ErrIncorrectPassword is returned when a password fails the validator or
	// cannot unwrap the data key.
	ErrIncorrectPassword = errors.New("incorrect password")
	// ErrNotSetUp is returned when unlocking a vault without Safe Mode.
	ErrNotSetUp = errors.New("encryption is not set up")
	// ErrAlreadyEnabled is returned when Safe Mode is already on.
	ErrAlreadyEnabled = errors.New("encryption is already enabled")
	// ErrEmptyPassword is returned for a blank password.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrDuplicateKey is returned when a keyname is already taken.
	ErrDuplicateKey = errors.New("keyname already exists")
	// ErrItemNotFound is returned when no item has the keyname.
	ErrItemNotFound = errors.New("item not found")
	// ErrInvalidKeyname is returned for an empty keyname.
	ErrInvalidKeyname = errors.New("keyname must not be empty")
	// ErrNeedsPassword is returned when an import cannot proceed without a
	// password.
	ErrNeedsPassword = errors.New("a password is required")
	// ErrInvalidExport is returned for data that is not an autofill export.
	ErrInvalidExport = errors.New("invalid export file")
	// ErrCorrupt is returned when stored Safe Mode metadata is malformed.
	ErrCorrupt = errors.New("vault metadata is corrupted")
)
