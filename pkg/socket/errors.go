package socket

import "errors"

// Failure kinds reported by the datagram socket. Every public operation
// returns one of these, wrapped around the underlying OS error where there
// is one, so callers can classify failures with errors.Is.
var (
	ErrSocketCreation   = errors.New("socket creation failed")
	ErrSocketOption     = errors.New("socket option failed")
	ErrSocketInvalid    = errors.New("socket invalid")
	ErrMulticastConfig  = errors.New("multicast configuration failed")
	ErrTimeoutConfig    = errors.New("timeout configuration failed")
	ErrBind             = errors.New("bind failed")
	ErrSend             = errors.New("send failed")
	ErrReceive          = errors.New("receive failed")
	ErrAlreadyReceiving = errors.New("already receiving")
)
