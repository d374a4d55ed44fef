package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	idAlphabet     = "abcdefghijklmnopqrstuvwxyz0123456789"
	eventIDLength  = 15
	sessionPrefix  = "session_"
	sessionIDBytes = 24
)

// GenerateCode returns n random bytes as upper-case hex.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// NewEventID returns a short URL-safe id for an event record.
func NewEventID() (string, error) {
	id, err := nanoid.Generate(idAlphabet, eventIDLength)
	if err != nil {
		return "", fmt.Errorf("NewEventID: %w", err)
	}
	return id, nil
}

// NewSessionID returns "session_" followed by 48 hex characters.
func NewSessionID() (string, error) {
	code, err := GenerateCode(sessionIDBytes)
	if err != nil {
		return "", fmt.Errorf("NewSessionID: %w", err)
	}
	return sessionPrefix + strings.ToLower(code), nil
}

// IsValidSessionID checks the shape produced by NewSessionID.
func IsValidSessionID(id string) bool {
	raw, ok := strings.CutPrefix(id, sessionPrefix)
	if !ok || len(raw) != sessionIDBytes*2 {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}
