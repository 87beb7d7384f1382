package handlers

import "errors"

var (
	// ErrAlreadyDelivered means this (registration, action) pair has
	// already been sent - the notifier handler treats it as success.
	ErrAlreadyDelivered = errors.New("notification already delivered")
	// ErrDeliveryInProgress means another worker currently holds the
	// claim for this (registration, action) pair.
	ErrDeliveryInProgress = errors.New("notification delivery in progress")
)
