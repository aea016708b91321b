package service

import "errors"

// Domain errors surfaced to the transport layer.
var (
	ErrMachineStopped      = errors.New("validation machine is not running")
	ErrScanningLocked      = errors.New("scanning is locked until reset")
	ErrDuplicateScan       = errors.New("duplicate scan ignored")
	ErrNothingToConfirm    = errors.New("no rejected validation awaiting confirmation")
	ErrInvalidAutoReset    = errors.New("auto reset must be between 1 and 10 seconds in steps of 0.5")
	ErrUnknownExportFormat = errors.New("unknown export format: use csv, json or yaml")
	ErrUnavailable         = errors.New("feature unavailable without the primary database")
)
