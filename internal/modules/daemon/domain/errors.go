package domain

import "errors"

var (
	ErrDaemonNotRunning  = errors.New("focusguard daemon is not running")
	ErrDaemonStartFailed = errors.New("focusguard daemon start failed")
	ErrUnknownFormat     = errors.New("unknown export format")
)

// Export formats accepted by the control plane.
const (
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatNotes = "notes"
)
