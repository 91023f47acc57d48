package domain

import "errors"

var (
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionCompromised = errors.New("session compromised")
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrForbidden          = errors.New("forbidden")
	ErrDeviceInactive     = errors.New("device is inactive")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConflict           = errors.New("conflict")
)
