package backend

import (
	"encoding/json"
	"fmt"

	"github.com/palaverhq/palaver/internal/models"
)

// Signal payloads are kept compact because the backend caps signal size.
// Typing uses the short field names the original clients put on the wire.

// TypingSignal announces that a user started or stopped typing.
type TypingSignal struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Typing bool   `json:"t"`
}

// ReadSignal announces a user's last-read token.
type ReadSignal struct {
	UserID    string       `json:"id"`
	ReadToken models.Token `json:"read"`
}

type signalEnvelope struct {
	UserID    string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	Typing    *bool         `json:"t,omitempty"`
	ReadToken *models.Token `json:"read,omitempty"`
}

// EncodeTypingSignal serializes a typing signal.
func EncodeTypingSignal(s TypingSignal) ([]byte, error) {
	return json.Marshal(s)
}

// EncodeReadSignal serializes a read-receipt signal.
func EncodeReadSignal(s ReadSignal) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSignal parses a signal payload into one of TypingSignal or
// ReadSignal. Unrecognized payloads return an error so callers can log and
// drop them rather than misinterpret.
func DecodeSignal(payload []byte) (any, error) {
	var env signalEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode signal: %w", err)
	}
	if env.UserID == "" {
		return nil, fmt.Errorf("decode signal: missing user id")
	}
	switch {
	case env.Typing != nil:
		return TypingSignal{UserID: env.UserID, Name: env.Name, Typing: *env.Typing}, nil
	case env.ReadToken != nil:
		return ReadSignal{UserID: env.UserID, ReadToken: *env.ReadToken}, nil
	default:
		return nil, fmt.Errorf("decode signal: unknown shape")
	}
}
