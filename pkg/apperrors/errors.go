package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidSourceURL  = errors.New("source URL must start with ws:// or wss://")
	ErrSourceUnreachable = errors.New("could not connect to source")
	ErrSessionRunning    = errors.New("discovery session already running")
	ErrNoSources         = errors.New("no sources registered")
	ErrInvalidActor      = errors.New("invalid actor identifier")
	ErrInvalidAddress    = errors.New("invalid payment address")
)
