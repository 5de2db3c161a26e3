package server

import (
	"encoding/json"

	"atc-sim/internal/sim"
)

// Client -> Server message types
const (
	MsgCreate      = "create"  // start a new game session
	MsgResume      = "resume"  // re-attach to a session after reconnecting
	MsgCheck       = "check"   // check if session exists
	MsgLeave       = "leave"   // end the session
	MsgSelect      = "select"  // toggle aircraft focus
	MsgCommand     = "command" // altitude/heading/speed instruction
	MsgQuick       = "quick"   // climb/descend/left/right shortcut
	MsgToggle      = "toggle"  // play/pause
	MsgReset       = "reset"
	MsgRegister    = "register"
	MsgLogin       = "login"
	MsgAuth        = "auth" // resume an operator login with a token
	MsgLeaderboard = "leaderboard"
)

// Server -> Client message types
const (
	MsgState   = "state"
	MsgCreated = "created"
	MsgResumed = "resumed"
	MsgChecked = "checked"
	MsgResult  = "result" // final figures of a recorded session
	MsgError   = "error"
	MsgAuthOK  = "auth_ok"
	MsgLeaders = "leaderboard"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; D is decoded per message type
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CreateMsg starts a session. Bin selects msgpack-encoded binary state
// frames instead of JSON.
type CreateMsg struct {
	Name string `json:"name"`
	Bin  bool   `json:"bin,omitempty"`
}

type ResumeMsg struct {
	SID string `json:"sid"`
	Bin bool   `json:"bin,omitempty"`
}

type CheckMsg struct {
	SID string `json:"sid"`
}

type CheckedMsg struct {
	SID      string `json:"sid"`
	Exists   bool   `json:"exists"`
	Name     string `json:"name,omitempty"`
	Attached bool   `json:"attached,omitempty"`
}

type SelectMsg struct {
	ID string `json:"id"`
}

// CommandMsg is an operator instruction. Type is one of altitude,
// heading or speed.
type CommandMsg struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// QuickMsg is a relative instruction: climb, descend, left or right.
type QuickMsg struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

type SessionMsg struct {
	SID string `json:"sid"`
}

// ResultMsg reports the final figures of a session when it is recorded.
type ResultMsg struct {
	SID        string `json:"sid"`
	Score      int    `json:"score"`
	Collisions int    `json:"collisions"`
	GameTime   int    `json:"time"`
	Rank       int    `json:"rank,omitempty"`
}

type ErrorMsg struct {
	Msg string `json:"msg"`
}

type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthMsg struct {
	Token string `json:"token"`
}

type AuthOKMsg struct {
	Token      string `json:"token"`
	Username   string `json:"username"`
	OperatorID int64  `json:"oid"`
}

type LeaderboardMsg struct {
	Limit int `json:"limit,omitempty"`
}

// AircraftState is one aircraft as the radar display sees it.
type AircraftState struct {
	ID             string  `json:"id" msgpack:"id"`
	CallSign       string  `json:"cs" msgpack:"cs"`
	Type           string  `json:"type" msgpack:"type"`
	X              float64 `json:"x" msgpack:"x"`
	Y              float64 `json:"y" msgpack:"y"`
	Heading        float64 `json:"hdg" msgpack:"hdg"`
	Compass        string  `json:"cmp" msgpack:"cmp"`
	Altitude       int     `json:"alt" msgpack:"alt"`
	Speed          int     `json:"spd" msgpack:"spd"`
	TargetHeading  float64 `json:"thdg" msgpack:"thdg"`
	TargetAltitude int     `json:"talt" msgpack:"talt"`
	TargetSpeed    int     `json:"tspd" msgpack:"tspd"`
	Status         string  `json:"st" msgpack:"st"`
	Trend          string  `json:"trend" msgpack:"trend"`
	LastCommand    string  `json:"cmd,omitempty" msgpack:"cmd,omitempty"`
	CommandTime    int64   `json:"cmdt,omitempty" msgpack:"cmdt,omitempty"` // unix ms
	Conflict       bool    `json:"cf,omitempty" msgpack:"cf,omitempty"`
}

// GameState is the full snapshot sent after every engine update.
// Selected is empty when nothing is selected or the selected aircraft has
// left the display.
type GameState struct {
	Aircraft   []AircraftState `json:"ac" msgpack:"ac"`
	Score      int             `json:"score" msgpack:"score"`
	Collisions int             `json:"col" msgpack:"col"`
	Playing    bool            `json:"playing" msgpack:"playing"`
	GameTime   int             `json:"time" msgpack:"time"`
	Clock      string          `json:"clock" msgpack:"clock"`
	Selected   string          `json:"sel,omitempty" msgpack:"sel,omitempty"`
	Tick       uint64          `json:"tick" msgpack:"tick"`
}

// ToGameState converts an engine snapshot into its wire form.
func ToGameState(s sim.State) GameState {
	inConflict := make(map[string]bool, 2*len(s.Conflicts))
	for _, c := range s.Conflicts {
		inConflict[c.A] = true
		inConflict[c.B] = true
	}

	gs := GameState{
		Aircraft:   make([]AircraftState, 0, len(s.Aircraft)),
		Score:      s.Score,
		Collisions: s.Collisions,
		Playing:    s.Playing,
		GameTime:   s.GameTime,
		Clock:      sim.FormatGameTime(s.GameTime),
		Tick:       s.Tick,
	}
	if a, ok := s.Selected(); ok {
		gs.Selected = a.ID
	}
	for _, a := range s.Aircraft {
		as := AircraftState{
			ID:             a.ID,
			CallSign:       a.CallSign,
			Type:           string(a.Type),
			X:              a.Position.X,
			Y:              a.Position.Y,
			Heading:        a.Heading,
			Compass:        sim.Compass(a.Heading),
			Altitude:       a.Altitude,
			Speed:          a.Speed,
			TargetHeading:  a.TargetHeading,
			TargetAltitude: a.TargetAltitude,
			TargetSpeed:    a.TargetSpeed,
			Status:         string(a.Status),
			Trend:          string(a.Trend()),
			LastCommand:    a.LastCommand,
			Conflict:       inConflict[a.ID],
		}
		if !a.CommandTime.IsZero() {
			as.CommandTime = a.CommandTime.UnixMilli()
		}
		gs.Aircraft = append(gs.Aircraft, as)
	}
	return gs
}
