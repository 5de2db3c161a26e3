package sim

import (
	"errors"
	"fmt"
	"math"
	"time"
)

type CommandKind string

const (
	CommandAltitude CommandKind = "altitude"
	CommandHeading  CommandKind = "heading"
	CommandSpeed    CommandKind = "speed"
)

// Command is an operator instruction for one aircraft. It is consumed
// immediately; only its description survives, in Aircraft.LastCommand.
type Command struct {
	Kind       CommandKind
	Value      float64
	AircraftID string
	Timestamp  time.Time
}

// Accepted command ranges, inclusive.
const (
	MinAltitude = 1000
	MaxAltitude = 40000
	MinHeading  = 0
	MaxHeading  = 360
	MinSpeed    = 100
	MaxSpeed    = 600
)

var (
	ErrOutOfRange      = errors.New("value out of range")
	ErrUnknownCommand  = errors.New("unknown command type")
	ErrUnknownQuickCmd = errors.New("unknown quick command")
)

// ValidateCommand checks the value against the accepted range for its
// kind. ApplyCommand does not re-check; callers validate before issuing.
func ValidateCommand(cmd Command) error {
	var lo, hi float64
	switch cmd.Kind {
	case CommandAltitude:
		lo, hi = MinAltitude, MaxAltitude
	case CommandHeading:
		lo, hi = MinHeading, MaxHeading
	case CommandSpeed:
		lo, hi = MinSpeed, MaxSpeed
	default:
		return fmt.Errorf("%q: %w", cmd.Kind, ErrUnknownCommand)
	}
	if math.IsNaN(cmd.Value) || cmd.Value < lo || cmd.Value > hi {
		return fmt.Errorf("%s %v not in [%v,%v]: %w", cmd.Kind, cmd.Value, lo, hi, ErrOutOfRange)
	}
	return nil
}

// ApplyCommand overwrites one target field of the addressed aircraft and
// records a description of the instruction. A command for an aircraft
// that is no longer present is dropped and s is returned unchanged.
func ApplyCommand(s State, cmd Command) State {
	idx := s.indexOf(cmd.AircraftID)
	if idx < 0 {
		return s
	}

	a := s.Aircraft[idx]
	switch cmd.Kind {
	case CommandAltitude:
		a.TargetAltitude = int(math.Round(cmd.Value))
		a.LastCommand = fmt.Sprintf("Climb/descend to %d feet", a.TargetAltitude)
	case CommandHeading:
		a.TargetHeading = cmd.Value
		a.LastCommand = fmt.Sprintf("Turn to heading %s degrees", formatValue(cmd.Value))
	case CommandSpeed:
		a.TargetSpeed = int(math.Round(cmd.Value))
		a.LastCommand = fmt.Sprintf("Adjust speed to %d knots", a.TargetSpeed)
	default:
		return s
	}
	a.CommandTime = cmd.Timestamp

	aircraft := make([]Aircraft, len(s.Aircraft))
	copy(aircraft, s.Aircraft)
	aircraft[idx] = a
	s.Aircraft = aircraft
	return s
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%g", v)
}

// QuickAction is a one-button instruction relative to the aircraft's
// current state.
type QuickAction string

const (
	QuickClimb   QuickAction = "climb"
	QuickDescend QuickAction = "descend"
	QuickRight   QuickAction = "right"
	QuickLeft    QuickAction = "left"
)

const (
	quickAltitudeDelta = 2000
	quickTurnDelta     = 90
)

// QuickCommand builds the command for a quick action on a. The result is
// validated, so a climb near the ceiling is rejected rather than clamped.
func QuickCommand(a Aircraft, action QuickAction, ts time.Time) (Command, error) {
	cmd := Command{AircraftID: a.ID, Timestamp: ts}
	switch action {
	case QuickClimb:
		cmd.Kind, cmd.Value = CommandAltitude, float64(a.Altitude+quickAltitudeDelta)
	case QuickDescend:
		cmd.Kind, cmd.Value = CommandAltitude, float64(a.Altitude-quickAltitudeDelta)
	case QuickRight:
		cmd.Kind, cmd.Value = CommandHeading, NormalizeHeading(a.Heading+quickTurnDelta)
	case QuickLeft:
		cmd.Kind, cmd.Value = CommandHeading, NormalizeHeading(a.Heading-quickTurnDelta)
	default:
		return Command{}, fmt.Errorf("%q: %w", action, ErrUnknownQuickCmd)
	}
	if err := ValidateCommand(cmd); err != nil {
		return Command{}, err
	}
	return cmd, nil
}
