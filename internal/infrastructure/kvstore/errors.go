package kvstore

import "errors"

var (
	// ErrDisabled indicates Redis is disabled in config.
	ErrDisabled = errors.New("kvstore: disabled in configuration")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("kvstore: connection failed")

	// ErrNotConnected indicates the client has been closed.
	ErrNotConnected = errors.New("kvstore: not connected")
)
