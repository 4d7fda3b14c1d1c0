package spool

import "errors"

var (
	ErrNotFound    = errors.New("spool: not found")
	ErrInvalidCID  = errors.New("spool: invalid cid")
	ErrCIDMismatch = errors.New("spool: cid mismatch")
	ErrImmutable   = errors.New("spool: immutable object mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
