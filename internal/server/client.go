package server

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"atc-sim/internal/sim"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 50
	maxNameLen        = 16
	defaultName       = "Controller"
	requestTimeout    = 2 * time.Second

	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	sessionID  string
	remoteAddr string
	binary     atomic.Bool // msgpack state frames
	msgCount   int
	msgResetAt time.Time

	// 0 / "" while unauthenticated
	operatorID int64
	username   string
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.lg.Warnf("ws error from %s: %v", c.remoteAddr, err)
			}
			break
		}

		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			c.hub.lg.Warn("rate limit exceeded, disconnecting", "remote", c.remoteAddr)
			break
		}

		if msgType != websocket.TextMessage {
			continue
		}
		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 0xFF marks a binary frame from SendBinary
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.lg.Errorf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	// send is closed on unregister; a late frame from a feed is dropped
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// too slow, drop
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// SendState sends an engine snapshot, as a bare msgpack GameState when
// the client asked for binary frames.
func (c *Client) SendState(st sim.State) {
	gs := ToGameState(st)
	if !c.binary.Load() {
		c.SendJSON(Envelope{T: MsgState, Data: gs})
		return
	}
	data, err := msgpack.Marshal(&gs)
	if err != nil {
		c.hub.lg.Errorf("msgpack marshal: %v", err)
		return
	}
	c.SendBinary(data)
}

// SendError reports err to the client
func (c *Client) SendError(err error) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: clientMessage(err)}})
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.hub.lg.Debugf("unmarshal error from %s: %v", c.remoteAddr, err)
		return
	}

	switch env.T {
	case MsgCreate:
		c.handleCreate(env.D)
	case MsgResume:
		c.handleResume(env.D)
	case MsgCheck:
		c.handleCheck(env.D)
	case MsgLeave:
		c.handleLeave()
	case MsgSelect:
		c.handleSelect(env.D)
	case MsgCommand:
		c.handleCommand(env.D)
	case MsgQuick:
		c.handleQuick(env.D)
	case MsgToggle:
		c.handleToggle()
	case MsgReset:
		c.handleReset()
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgAuth:
		c.handleAuth(env.D)
	case MsgLeaderboard:
		c.handleLeaderboard(env.D)
	default:
		c.hub.lg.Debug("unknown message type", "t", env.T, "remote", c.remoteAddr)
	}
}

// decode unmarshals an optional payload. A missing payload leaves v zero.
func decode(data json.RawMessage, v any) bool {
	if len(data) == 0 {
		return true
	}
	return json.Unmarshal(data, v) == nil
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultName
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		name = string([]rune(name)[:maxNameLen])
	}
	return name
}

// session returns the session this client is attached to
func (c *Client) session() (*Session, error) {
	if c.sessionID == "" {
		return nil, ErrNotInSession
	}
	sess := c.hub.sessions.GetSession(c.sessionID)
	if sess == nil {
		c.sessionID = ""
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (c *Client) handleCreate(data json.RawMessage) {
	var msg CreateMsg
	if !decode(data, &msg) {
		return
	}
	if c.sessionID != "" {
		c.handleLeave()
	}

	sess, err := c.hub.sessions.CreateSession(cleanName(msg.Name), c.operatorID)
	if err != nil {
		c.SendError(err)
		return
	}
	c.binary.Store(msg.Bin)
	if err := c.hub.sessions.Attach(sess, c, Envelope{T: MsgCreated, Data: SessionMsg{SID: sess.ID}}); err != nil {
		c.SendError(err)
		return
	}
	c.sessionID = sess.ID
}

func (c *Client) handleResume(data json.RawMessage) {
	var msg ResumeMsg
	if !decode(data, &msg) {
		return
	}
	sess := c.hub.sessions.GetSession(msg.SID)
	if sess == nil {
		c.SendError(ErrSessionNotFound)
		return
	}
	if c.sessionID == sess.ID {
		c.SendJSON(Envelope{T: MsgResumed, Data: SessionMsg{SID: sess.ID}})
		return
	}
	if c.sessionID != "" {
		c.handleLeave()
	}

	c.binary.Store(msg.Bin)
	if err := c.hub.sessions.Attach(sess, c, Envelope{T: MsgResumed, Data: SessionMsg{SID: sess.ID}}); err != nil {
		c.SendError(err)
		return
	}
	c.sessionID = sess.ID
	c.hub.lg.Info("session resumed", "sid", sess.ID, "remote", c.remoteAddr)
}

func (c *Client) handleCheck(data json.RawMessage) {
	var msg CheckMsg
	if !decode(data, &msg) {
		return
	}
	sess := c.hub.sessions.GetSession(msg.SID)
	if sess == nil {
		c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{SID: msg.SID, Exists: false}})
		return
	}
	c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{
		SID:      msg.SID,
		Exists:   true,
		Name:     sess.Name,
		Attached: sess.Attached(),
	}})
}

func (c *Client) handleLeave() {
	if c.sessionID == "" {
		return
	}
	id := c.sessionID
	c.sessionID = ""
	res, err := c.hub.sessions.EndSession(id)
	if err != nil {
		c.hub.lg.Debugf("leave %s: %v", id, err)
		return
	}
	if res != nil {
		c.SendJSON(Envelope{T: MsgResult, Data: res})
	}
}

func (c *Client) handleSelect(data json.RawMessage) {
	var msg SelectMsg
	if !decode(data, &msg) {
		return
	}
	sess, err := c.session()
	if err != nil {
		c.SendError(err)
		return
	}
	sess.Engine.Select(msg.ID)
}

func (c *Client) handleCommand(data json.RawMessage) {
	var msg CommandMsg
	if !decode(data, &msg) {
		return
	}
	sess, err := c.session()
	if err != nil {
		c.SendError(err)
		return
	}
	cmd := sim.Command{
		Kind:       sim.CommandKind(msg.Type),
		Value:      msg.Value,
		AircraftID: msg.ID,
		Timestamp:  time.Now(),
	}
	if err := sim.ValidateCommand(cmd); err != nil {
		c.SendError(err)
		return
	}
	c.issue(sess, cmd)
}

func (c *Client) handleQuick(data json.RawMessage) {
	var msg QuickMsg
	if !decode(data, &msg) {
		return
	}
	sess, err := c.session()
	if err != nil {
		c.SendError(err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	st, err := sess.Engine.Snapshot(ctx)
	if err != nil {
		c.hub.lg.Warnf("quick %s: %v", sess.ID, err)
		return
	}
	a, ok := st.Find(msg.ID)
	if !ok {
		// the aircraft left the display before the click arrived
		return
	}
	cmd, err := sim.QuickCommand(a, sim.QuickAction(msg.Action), time.Now())
	if err != nil {
		c.SendError(err)
		return
	}
	c.issue(sess, cmd)
}

func (c *Client) issue(sess *Session, cmd sim.Command) {
	sess.Engine.IssueCommand(cmd)
	c.hub.analytics.Track(EvtCommand, sess.OperatorID(), sess.ID, map[string]any{
		"id":    cmd.AircraftID,
		"type":  string(cmd.Kind),
		"value": cmd.Value,
	})
}

func (c *Client) handleToggle() {
	sess, err := c.session()
	if err != nil {
		c.SendError(err)
		return
	}
	sess.Engine.TogglePlay()
}

func (c *Client) handleReset() {
	sess, err := c.session()
	if err != nil {
		c.SendError(err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	res, err := c.hub.sessions.ResetSession(ctx, sess)
	if err != nil {
		c.hub.lg.Warnf("%v", err)
		c.SendError(err)
		return
	}
	if res != nil {
		c.SendJSON(Envelope{T: MsgResult, Data: res})
	}
}

func (c *Client) authenticated(id int64, username, token string) {
	c.operatorID = id
	c.username = username
	if sess, err := c.session(); err == nil {
		sess.adoptOperator(id)
	}
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:      token,
		Username:   username,
		OperatorID: id,
	}})
}

func (c *Client) handleRegister(data json.RawMessage) {
	if c.hub.auth == nil {
		c.SendError(ErrNoDatabase)
		return
	}
	var msg RegisterMsg
	if !decode(data, &msg) {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.SendError(err)
		return
	}
	c.authenticated(id, strings.TrimSpace(msg.Username), token)
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil {
		c.SendError(ErrNoDatabase)
		return
	}
	var msg LoginMsg
	if !decode(data, &msg) {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.SendError(err)
		return
	}
	c.authenticated(id, strings.TrimSpace(msg.Username), token)
}

func (c *Client) handleAuth(data json.RawMessage) {
	if c.hub.auth == nil {
		c.SendError(ErrNoDatabase)
		return
	}
	var msg AuthMsg
	if !decode(data, &msg) {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.SendError(err)
		return
	}
	c.authenticated(id, username, msg.Token)
}

func (c *Client) handleLeaderboard(data json.RawMessage) {
	var msg LeaderboardMsg
	if !decode(data, &msg) {
		return
	}
	if c.hub.db == nil {
		c.SendError(ErrNoDatabase)
		return
	}
	entries, err := c.hub.db.GetLeaderboard(clampLimit(msg.Limit))
	if err != nil {
		c.hub.lg.Errorf("leaderboard: %v", err)
		c.SendError(err)
		return
	}
	c.SendJSON(Envelope{T: MsgLeaders, Data: entries})
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultLeaderboardLimit
	}
	if n > maxLeaderboardLimit {
		return maxLeaderboardLimit
	}
	return n
}
