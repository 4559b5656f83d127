package outstation

import "errors"

var (
	ErrOutstationDisabled      = errors.New("outstation is disabled")
	ErrCapabilityNotRegistered = errors.New("system flag capability not registered")
	ErrControlConfirm          = errors.New("control confirm block does not match")
	ErrControlNotConfigured    = errors.New("control point not configured")
	ErrMissingBlock            = errors.New("request is missing a data block")
)
