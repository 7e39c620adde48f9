package masterdata

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrSchema       = errors.New("master data schema invalid")
	ErrEmptyDataset = errors.New("master data contains no records")
)
