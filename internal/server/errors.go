package server

import (
	"errors"

	"atc-sim/internal/sim"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionInUse       = errors.New("session is attached to another connection")
	ErrTooManySessions    = errors.New("too many active sessions")
	ErrNotInSession       = errors.New("not in a session")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrTooManyAttempts    = errors.New("too many login attempts, try again later")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNoDatabase         = errors.New("persistence disabled")
)

// clientMessage maps an error to the text shown to the operator. Internal
// failures are not exposed.
func clientMessage(err error) string {
	for _, known := range []error{
		ErrSessionNotFound, ErrSessionInUse, ErrTooManySessions, ErrNotInSession,
		ErrInvalidCredentials, ErrUsernameTaken, ErrInvalidUsername, ErrPasswordTooShort,
		ErrTooManyAttempts, ErrInvalidToken, ErrNoDatabase,
		sim.ErrOutOfRange, sim.ErrUnknownCommand, sim.ErrUnknownQuickCmd,
	} {
		if errors.Is(err, known) {
			return err.Error()
		}
	}
	return "internal error"
}
