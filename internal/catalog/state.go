package catalog

import (
	"fmt"
	"strings"
)

// ActiveState is the administrative eligibility flag. Inactive records are
// invisible to scheduling.
type ActiveState int

const (
	Inactive ActiveState = 0
	Active   ActiveState = 1
)

func (s ActiveState) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("ActiveState(%d)", int(s))
	}
}

// ParseActiveState accepts a state name or its numeric value.
func ParseActiveState(s string) (ActiveState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inactive", "0":
		return Inactive, nil
	case "active", "1":
		return Active, nil
	}
	return Inactive, fmt.Errorf("unknown active state %q", s)
}

// CopyState is the coordination state shared by hosts, directories, files,
// destinations and tasks. The numeric values are persisted.
type CopyState int

const (
	Failed   CopyState = -1
	Idle     CopyState = 0
	Busy     CopyState = 1
	Finished CopyState = 2
)

func (s CopyState) String() string {
	switch s {
	case Failed:
		return "failed"
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("CopyState(%d)", int(s))
	}
}

// Valid reports whether s is one of the four known states.
func (s CopyState) Valid() bool {
	return s >= Failed && s <= Finished
}

// ParseCopyState accepts a state name or its numeric value.
func ParseCopyState(s string) (CopyState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "failed", "-1":
		return Failed, nil
	case "idle", "0":
		return Idle, nil
	case "busy", "1":
		return Busy, nil
	case "finished", "2":
		return Finished, nil
	}
	return Idle, fmt.Errorf("unknown copy state %q", s)
}
