package server

import (
	"net"
	"net/http"

	"github.com/google/uuid"
)

// GenerateUUID returns a random RFC 4122 version 4 UUID string
func GenerateUUID() string {
	return uuid.NewString()
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
