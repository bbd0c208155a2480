package core

import (
	"fmt"
	"net"
	"time"
)

// Error codes returned by the validators
const (
	CodeInvalidAddress = "INVALID_ADDRESS"
	CodeInvalidTimeout = "INVALID_TIMEOUT"
	CodeInvalidSize    = "INVALID_SIZE"
)

// MaxTimeout is the largest timeout ValidateTimeout accepts
const MaxTimeout = 5 * time.Minute

func invalid(code, format string, args ...interface{}) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidateAddress checks that address is a host:port pair
func ValidateAddress(address string) error {
	if address == "" {
		return invalid(CodeInvalidAddress, "address cannot be empty")
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		return invalid(CodeInvalidAddress, "%v", err)
	}
	return nil
}

// ValidateTimeout checks 0 < timeout <= MaxTimeout
func ValidateTimeout(timeout time.Duration) error {
	switch {
	case timeout <= 0:
		return invalid(CodeInvalidTimeout, "timeout must be positive, got %v", timeout)
	case timeout > MaxTimeout:
		return invalid(CodeInvalidTimeout, "timeout %v exceeds %v", timeout, MaxTimeout)
	}
	return nil
}

// ValidatePoolSize checks that a pool has at least one worker
func ValidatePoolSize(size int) error {
	if size < 1 {
		return invalid(CodeInvalidSize, "worker pool size must be at least 1, got %d", size)
	}
	return nil
}
