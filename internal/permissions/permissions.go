package permissions

import (
	"fmt"
	"strings"
)

// Permission names a system permission the detector depends on
type Permission string

const (
	// Microphone covers audio capture, loopback devices included
	Microphone Permission = "microphone"
	// Accessibility covers synthetic mouse input
	Accessibility Permission = "accessibility"
)

// Required lists every permission checked at startup
var Required = []Permission{Microphone, Accessibility}

// Status represents the status of a system permission
type Status int

const (
	// NotDetermined means the user hasn't been asked yet
	NotDetermined Status = 0
	// Restricted means the permission is restricted by policy
	Restricted Status = 1
	// Denied means the user has explicitly denied the permission
	Denied Status = 2
	// Authorized means the user has authorized the permission
	Authorized Status = 3
)

func (s Status) String() string {
	switch s {
	case NotDetermined:
		return "NotDetermined"
	case Restricted:
		return "Restricted"
	case Denied:
		return "Denied"
	case Authorized:
		return "Authorized"
	default:
		return "Unknown"
	}
}

// Checker queries and requests system permissions. Platforms without a
// permission model report everything as authorized
type Checker struct {
	status       func(Permission) Status
	openSettings func(Permission) error
}

// NewChecker creates a checker for the current platform
func NewChecker() *Checker {
	return &Checker{
		status:       platformStatus,
		openSettings: platformOpenSettings,
	}
}

// Status returns the current status of p
func (c *Checker) Status(p Permission) Status {
	return c.status(p)
}

// Granted reports whether p is authorized
func (c *Checker) Granted(p Permission) bool {
	return c.status(p) == Authorized
}

// Missing returns the required permissions that are not authorized
func (c *Checker) Missing() []Permission {
	var missing []Permission
	for _, p := range Required {
		if !c.Granted(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// MissingMessage returns a message listing missing permissions, or ""
func (c *Checker) MissingMessage() string {
	missing := c.Missing()
	if len(missing) == 0 {
		return ""
	}

	names := make([]string, len(missing))
	for i, p := range missing {
		names[i] = string(p)
	}
	return fmt.Sprintf("Missing permissions: %s. Grant them in system settings and restart.", strings.Join(names, ", "))
}

// OpenSettings opens the system settings page for p
func (c *Checker) OpenSettings(p Permission) error {
	return c.openSettings(p)
}
