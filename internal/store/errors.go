package store

import "errors"

var (
	ErrTokenNotFound       = errors.New("token not found")
	ErrCounterNotFound     = errors.New("counter not found")
	ErrServiceTypeNotFound = errors.New("service type not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrMetricNotFound      = errors.New("service metric not found")
	ErrNoToken             = errors.New("no token available")
	ErrInvalidState        = errors.New("invalid token state")
	ErrCounterClosed       = errors.New("counter is not open")
	ErrAlreadyServing      = errors.New("counter already serving a token")
	ErrConflict            = errors.New("revision conflict")
)
