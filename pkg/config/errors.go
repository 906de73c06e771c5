package config

import "errors"

var (
	ErrParsingConfig  = errors.New("cannot parse environment into config")
	ErrLoadingEnvFile = errors.New("cannot load env file")
	ErrNilPointer     = errors.New("config destination is nil")
)
