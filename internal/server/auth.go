package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"atc-sim/internal/log"
)

const (
	jwtExpiry        = 7 * 24 * time.Hour
	minPasswordLen   = 4
	minUsernameLen   = 2
	maxUsernameLen   = 16
	loginRateWindow  = 60 * time.Second
	maxLoginAttempts = 10
	jwtSecretKey     = "jwt_secret"
)

// bcryptCost is a variable so tests can lower it.
var bcryptCost = 12

// Auth handles operator accounts
type Auth struct {
	db        *DB
	lg        *log.Logger
	jwtSecret []byte

	// Rate limiting for login attempts (IP -> attempts)
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth creates a new Auth handler
func NewAuth(db *DB, lg *log.Logger) (*Auth, error) {
	secret, err := loadOrCreateSecret(db, lg)
	if err != nil {
		return nil, err
	}
	return &Auth{
		db:        db,
		lg:        lg,
		jwtSecret: secret,
		rateMap:   make(map[string]*rateEntry),
	}, nil
}

// loadOrCreateSecret loads the JWT secret from the database, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *DB, lg *log.Logger) ([]byte, error) {
	if h := db.GetSetting(jwtSecretKey); h != "" {
		if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
			return b, nil
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	if err := db.SetSetting(jwtSecretKey, hex.EncodeToString(secret)); err != nil {
		lg.Warnf("could not persist JWT secret: %v", err)
	}
	return secret, nil
}

// Register creates a new account and returns its id and a token
func (a *Auth) Register(username, password string) (int64, string, error) {
	username = strings.TrimSpace(username)

	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return 0, "", fmt.Errorf("%w: must be %d-%d characters", ErrInvalidUsername, minUsernameLen, maxUsernameLen)
	}
	if len(password) < minPasswordLen {
		return 0, "", fmt.Errorf("%w: need at least %d characters", ErrPasswordTooShort, minPasswordLen)
	}

	exists, err := a.db.UsernameExists(username)
	if err != nil {
		return 0, "", fmt.Errorf("register %q: %w", username, err)
	}
	if exists {
		return 0, "", ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return 0, "", fmt.Errorf("hash password: %w", err)
	}

	id, err := a.db.CreateOperator(username, string(hash))
	if err != nil {
		return 0, "", fmt.Errorf("create operator: %w", err)
	}

	token, err := a.generateToken(id, username)
	if err != nil {
		return 0, "", err
	}
	a.lg.Info("operator registered", "operator_id", id, "username", username)
	return id, token, nil
}

// Login authenticates an operator and returns a JWT
func (a *Auth) Login(username, password, ip string) (int64, string, error) {
	if !a.checkRate(ip) {
		return 0, "", ErrTooManyAttempts
	}

	op, err := a.db.GetOperatorByUsername(strings.TrimSpace(username))
	if err != nil {
		return 0, "", fmt.Errorf("login %q: %w", username, err)
	}
	if op == nil || op.PassHash == "" {
		return 0, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PassHash), []byte(password)); err != nil {
		return 0, "", ErrInvalidCredentials
	}

	token, err := a.generateToken(op.ID, op.Username)
	if err != nil {
		return 0, "", err
	}
	return op.ID, token, nil
}

// ValidateToken validates a JWT and returns (operatorID, username, error)
func (a *Auth) ValidateToken(tokenStr string) (int64, string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return 0, "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, "", ErrInvalidToken
	}
	oid, ok := claims["oid"].(float64)
	if !ok {
		return 0, "", fmt.Errorf("%w: missing oid", ErrInvalidToken)
	}
	username, ok := claims["usr"].(string)
	if !ok {
		return 0, "", fmt.Errorf("%w: missing usr", ErrInvalidToken)
	}
	return int64(oid), username, nil
}

func (a *Auth) generateToken(operatorID int64, username string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"oid": operatorID,
		"usr": username,
		"exp": now.Add(jwtExpiry).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(loginRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxLoginAttempts
}
