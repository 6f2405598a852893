package model

import "errors"

// Common errors used across the application
var (
	// Storage errors
	ErrParticipantNotFound = errors.New("participant not found")
	ErrParticipantExists   = errors.New("participant already exists")

	// Registration errors
	ErrIneligible         = errors.New("not a member of the required channel")
	ErrNotRegistered      = errors.New("participant is not registered")
	ErrAlreadyRegistered  = errors.New("participant is already registered")
	ErrAlreadySubmitted   = errors.New("payout address already submitted")
	ErrInvalidAddress     = errors.New("invalid payout address")
	ErrAccessDenied       = errors.New("access denied")
	ErrBackendUnavailable = errors.New("backend unavailable")
)
