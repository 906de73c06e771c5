package inapp

import "errors"

var (
	ErrNoUser          = errors.New("in-app recipient has no user id")
	ErrMessageNotFound = errors.New("in-app message not found")
)
