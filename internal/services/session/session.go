// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session manages server-side admin sessions. The cookie carries a
// signed random identifier; everything else lives in the database.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/harbourline/intake/internal/config"
	"codeberg.org/harbourline/intake/internal/models"
	"codeberg.org/harbourline/intake/internal/repository"
	"codeberg.org/harbourline/intake/internal/services/token"
	"github.com/gorilla/securecookie"
)

// Store persists sessions.
type Store interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string, now time.Time) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) error
}

// ClientInfo is recorded with each session.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Manager creates, loads and destroys sessions.
type Manager struct {
	store      Store
	codec      *securecookie.SecureCookie
	cookieName string
	maxAge     int
	secure     bool
	now        func() time.Time
}

// NewManager creates a session manager. The signing key is derived from
// cfg.Secret; an empty secret gets a random key, so sessions do not survive
// a restart.
func NewManager(store Store, cfg *config.SessionConfig, secure bool) (*Manager, error) {
	var hashKey []byte
	if cfg.Secret != "" {
		sum := sha256.Sum256([]byte(cfg.Secret))
		hashKey = sum[:]
	} else {
		slog.Warn("no session secret configured, generating a random key (sessions will not survive restarts)")
		hashKey = securecookie.GenerateRandomKey(32)
		if hashKey == nil {
			return nil, errors.New("failed to generate session key")
		}
	}

	var blockKey []byte
	if cfg.BlockKey != "" {
		var err error
		blockKey, err = hex.DecodeString(cfg.BlockKey)
		if err != nil {
			return nil, fmt.Errorf("invalid session block key: %w", err)
		}
		if len(blockKey) != 32 {
			return nil, fmt.Errorf("session block key must be 32 bytes, got %d", len(blockKey))
		}
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(cfg.MaxAge)

	return &Manager{
		store:      store,
		codec:      codec,
		cookieName: cfg.CookieName,
		maxAge:     cfg.MaxAge,
		secure:     secure,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create persists a new session for account and returns its cookie.
func (m *Manager) Create(ctx context.Context, account models.AccountSummary, client ClientInfo) (*http.Cookie, error) {
	now := m.now()
	if err := m.store.DeleteExpiredSessions(ctx, now); err != nil {
		slog.Error("failed to purge expired sessions", "error", err)
	}

	rawID, err := token.Generate()
	if err != nil {
		return nil, err
	}

	s := &models.Session{
		ID:          token.Hash(rawID),
		AdminUserID: account.ID,
		UserEmail:   account.Email,
		UserName:    account.Name,
		UserRole:    account.Role,
		IPAddress:   client.IP,
		UserAgent:   client.UserAgent,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Duration(m.maxAge) * time.Second),
	}
	if err := m.store.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	encoded, err := m.codec.Encode(m.cookieName, rawID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	return m.cookie(encoded, m.maxAge), nil
}

// Regenerate drops the session referenced by r, if any, and creates a fresh one.
func (m *Manager) Regenerate(r *http.Request, account models.AccountSummary, client ClientInfo) (*http.Cookie, error) {
	if _, err := m.Destroy(r); err != nil {
		return nil, err
	}
	return m.Create(r.Context(), account, client)
}

// Load returns the unexpired session referenced by r. A missing, tampered or
// unknown cookie yields nil without error.
func (m *Manager) Load(r *http.Request) (*models.Session, error) {
	id, ok := m.sessionID(r)
	if !ok {
		return nil, nil
	}

	s, err := m.store.GetSession(r.Context(), id, m.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// Destroy deletes the session referenced by r and returns a clearing cookie.
// It is idempotent.
func (m *Manager) Destroy(r *http.Request) (*http.Cookie, error) {
	if id, ok := m.sessionID(r); ok {
		if err := m.store.DeleteSession(r.Context(), id); err != nil {
			return nil, fmt.Errorf("failed to delete session: %w", err)
		}
	}
	return m.Clear(), nil
}

// Clear returns a cookie that removes the session cookie.
func (m *Manager) Clear() *http.Cookie {
	return m.cookie("", -1)
}

// sessionID decodes the cookie and returns the stored (hashed) session ID.
func (m *Manager) sessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}

	var rawID string
	if err := m.codec.Decode(m.cookieName, c.Value, &rawID); err != nil || rawID == "" {
		return "", false
	}
	return token.Hash(rawID), true
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
