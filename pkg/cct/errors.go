package cct

import "errors"

// Error taxonomy. The http layer maps each sentinel to a status code;
// everything else is a 500.
var (
	ErrDuplicateIdentity   = errors.New("duplicate identity")
	ErrUnknownDevice       = errors.New("unknown device")
	ErrUnknownUser         = errors.New("unknown user")
	ErrUnknownProbe        = errors.New("unknown probe")
	ErrUnknownTrigger      = errors.New("unknown trigger")
	ErrUnknownNotification = errors.New("unknown notification")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("validation error")
	ErrNoReadings          = errors.New("no readings from connected probes")
)
