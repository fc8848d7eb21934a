package chrome

import "errors"

var (
	ErrLaunchFailed  = errors.New("chrome launch failed")
	ErrLoadFailed    = errors.New("document load failed")
	ErrLoadTimeout   = errors.New("document load timeout exceeded")
	ErrExportFailed  = errors.New("pdf export failed")
	ErrSessionClosed = errors.New("session is closed")
	ErrUnknownPaper  = errors.New("unknown paper size")
)
