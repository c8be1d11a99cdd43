// Package session holds the dialogue state stores. Sessions are kept as JSON
// so both backends share one wire format.
package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

const DefaultKeyPrefix = "support:session:"

// ErrConflict means another writer saved the session after it was loaded.
var ErrConflict = errors.New("session was modified concurrently")

func Encode(s *domain.Session) ([]byte, error) {
	if s == nil || s.ID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode session", fmt.Errorf("session id is required"))
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return raw, nil
}

func Decode(raw []byte) (*domain.Session, error) {
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if s.History == nil {
		s.History = domain.NewHistory()
	}
	return &s, nil
}

func NotFound(id string) error {
	return domain.WrapError(domain.ErrSessionNotFound, "load session", fmt.Errorf("id %q", id))
}

// Conflict is retryable by the caller: reload the session and replay the turn.
func Conflict(id string) error {
	return domain.WrapError(domain.ErrTemporary, "save session", fmt.Errorf("id %q: %w", id, ErrConflict))
}

// StoredVersion reads only the version of an encoded session.
func StoredVersion(raw []byte) (int64, error) {
	var head struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return 0, fmt.Errorf("unmarshal session version: %w", err)
	}
	return head.Version, nil
}

// Next returns the encoding of sess as the following version. sess itself is
// left untouched until the store accepts the write.
func Next(sess *domain.Session) ([]byte, int64, error) {
	if sess == nil {
		return nil, 0, domain.WrapError(domain.ErrInvalidInput, "encode session", fmt.Errorf("session is nil"))
	}
	next := *sess
	next.Version++
	raw, err := Encode(&next)
	if err != nil {
		return nil, 0, err
	}
	return raw, next.Version, nil
}
