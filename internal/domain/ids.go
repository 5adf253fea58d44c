// Package domain contains the IPC value types, sentinel errors and limits.
// No transport or storage dependencies - every other package builds on it.
package domain

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"
)

// PortID identifies an endpoint for the lifetime of a registry.
// Identifiers start at 1 and are never reissued.
type PortID uint64

// NoPort is the reserved zero identifier. It never names a live endpoint
// and marks messages that have no real sender.
const NoPort PortID = 0

// ParsePortID parses a decimal port identifier, rejecting the reserved zero value.
func ParsePortID(raw string) (PortID, error) {
	if raw == "" {
		return NoPort, fmt.Errorf("empty port: %w", ErrInvalidPort)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return NoPort, fmt.Errorf("parse port %q: %w", raw, ErrInvalidPort)
	}
	if v == 0 {
		return NoPort, fmt.Errorf("port 0 is reserved: %w", ErrInvalidPort)
	}
	return PortID(v), nil
}

func (p PortID) Uint64() uint64 { return uint64(p) }
func (p PortID) IsZero() bool   { return p == NoPort }
func (p PortID) String() string { return strconv.FormatUint(uint64(p), 10) }

// ThreadID identifies a caller thread. The IPC core never allocates thread
// identities; callers pass their own.
type ThreadID uint64

func (t ThreadID) Uint64() uint64 { return uint64(t) }
func (t ThreadID) String() string { return strconv.FormatUint(uint64(t), 10) }

// ValidateName checks an endpoint name. Names are flat, case-sensitive
// UTF-8 strings; the empty string means "anonymous" and is handled by callers.
func ValidateName(name string) error {
	if !utf8.ValidString(name) {
		return fmt.Errorf("name is not valid UTF-8: %w", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("name exceeds max length %d: %w", MaxNameLength, ErrInvalidName)
	}
	return nil
}

// InstanceID is a value object identifying one running kernel instance.
// It is stamped on logs and health responses so two restarts are never confused.
type InstanceID struct {
	value string
}

// NewInstanceID creates an InstanceID from a raw string, validating it is a valid UUID.
func NewInstanceID(raw string) (InstanceID, error) {
	if raw == "" {
		return InstanceID{}, fmt.Errorf("empty instance ID: %w", ErrInvalidInput)
	}
	if _, err := uuid.Parse(raw); err != nil {
		return InstanceID{}, fmt.Errorf("invalid instance ID %q: %w", raw, ErrInvalidInput)
	}
	return InstanceID{value: raw}, nil
}

// GenerateInstanceID creates a new random InstanceID.
func GenerateInstanceID() InstanceID {
	return InstanceID{value: uuid.NewString()}
}

func (id InstanceID) String() string { return id.value }
func (id InstanceID) IsZero() bool   { return id.value == "" }
