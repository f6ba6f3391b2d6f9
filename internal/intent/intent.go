// Package intent defines the closed set of UI commands a gesture can map to.
package intent

import (
	"errors"
	"fmt"
	"strings"
)

// Intent is a UI command identifier.
type Intent string

const (
	None        Intent = "NONE"
	OpenMenu    Intent = "OPEN_MENU"
	CloseMenu   Intent = "CLOSE_MENU"
	SwitchRight Intent = "SWITCH_RIGHT"
	SwitchLeft  Intent = "SWITCH_LEFT"
)

// ErrUnknown is returned by Parse for identifiers outside the enumeration.
var ErrUnknown = errors.New("unknown intent")

// All returns the actionable intents in a stable order.
func All() []Intent {
	return []Intent{OpenMenu, CloseMenu, SwitchRight, SwitchLeft}
}

// Actionable reports whether i is one of the commands that can be executed.
func (i Intent) Actionable() bool {
	switch i {
	case OpenMenu, CloseMenu, SwitchRight, SwitchLeft:
		return true
	}
	return false
}

// Valid reports whether i is actionable or None.
func (i Intent) Valid() bool {
	return i == None || i.Actionable()
}

func (i Intent) String() string { return string(i) }

// Parse converts an identifier (case-insensitive) into an Intent.
func Parse(s string) (Intent, error) {
	i := Intent(strings.ToUpper(strings.TrimSpace(s)))
	if !i.Valid() {
		return None, fmt.Errorf("%w: %q", ErrUnknown, s)
	}
	return i, nil
}
