package model

import "errors"

// Errors shared by the counter backends and their callers. Remote transports
// map them to and from wire codes so callers can match with errors.Is.
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrUnsupportedResource  = errors.New("unsupported quota resource")
	ErrRewardNotFound       = errors.New("daily reward not found")
	ErrRewardAlreadyClaimed = errors.New("daily reward already claimed")
)
