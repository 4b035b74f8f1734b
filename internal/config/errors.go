package config

import "errors"

var (
	ErrInvalidTimeout     = errors.New("invalid timeout: must be positive")
	ErrInvalidLimit       = errors.New("invalid limit: must be positive")
	ErrInvalidMaxResponse = errors.New("invalid max response size: must be positive")
	ErrConfigNotFound     = errors.New("configuration file not found")
)
