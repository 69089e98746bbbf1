// Package session authenticates validator operators via signed login
// challenges and hands out expiring bearer tokens.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spknetwork/storage-coordinator/config/params"
	"github.com/spknetwork/storage-coordinator/identity"
)

var log = logrus.WithField("prefix", "session")

// ErrUnauthorized covers every way a login or token check can be
// rejected: bad signature, stale challenge, lost witness slot, unknown
// token.
var ErrUnauthorized = errors.New("unauthorized")

// DemoUsername is the account admitted without signature checks when
// demo mode is enabled.
const DemoUsername = "demo_user"

const tokenBytes = 48

// Session is the authenticated state attached to a live token.
type Session struct {
	Username    string    `json:"username"`
	WitnessRank int       `json:"witnessRank"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Manager issues and validates operator sessions. Tokens live in an
// expiring in-memory cache; a restart logs everyone out.
type Manager struct {
	provider identity.Provider
	sessions *cache.Cache
	now      func() time.Time
}

// NewManager builds a manager with the configured session TTL. The
// cache janitor sweeps expired tokens in the background.
func NewManager(provider identity.Provider) *Manager {
	ttl := params.CoordinatorConfig().SessionTTL
	return &Manager{
		provider: provider,
		sessions: cache.New(ttl, ttl/2),
		now:      time.Now,
	}
}

// Login verifies a signed challenge and, on success, issues a token.
// The challenge must be fresh and the account must hold a top witness
// slot. In demo mode the demo account skips both checks.
func (m *Manager) Login(ctx context.Context, username, challenge, signature string) (string, *Session, error) {
	cfg := params.CoordinatorConfig()

	if cfg.DemoMode && username == DemoUsername {
		return m.issue(username, 0)
	}

	issuedAt, err := identity.ParseLoginChallenge(challenge)
	if err != nil {
		return "", nil, errors.Wrap(ErrUnauthorized, err.Error())
	}
	age := m.now().Sub(issuedAt)
	if age < 0 || age > cfg.ChallengeMaxAge {
		return "", nil, errors.Wrap(ErrUnauthorized, "login challenge expired")
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.LoginTimeout)
	defer cancel()
	valid, err := m.provider.VerifySignature(verifyCtx, username, challenge, signature)
	if err != nil {
		return "", nil, errors.Wrap(err, "could not verify login signature")
	}
	if !valid {
		return "", nil, errors.Wrap(ErrUnauthorized, "signature rejected")
	}

	rank, ok, err := m.provider.WitnessRank(verifyCtx, username)
	if err != nil {
		return "", nil, errors.Wrap(err, "could not check witness rank")
	}
	if !ok || rank > cfg.TopWitnessRank {
		return "", nil, errors.Wrapf(ErrUnauthorized, "%s does not hold a top %d witness slot", username, cfg.TopWitnessRank)
	}

	return m.issue(username, rank)
}

func (m *Manager) issue(username string, rank int) (string, *Session, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, errors.Wrap(err, "could not generate session token")
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	ttl := params.CoordinatorConfig().SessionTTL
	sess := &Session{
		Username:    username,
		WitnessRank: rank,
		IssuedAt:    m.now().UTC(),
		ExpiresAt:   m.now().UTC().Add(ttl),
	}
	m.sessions.Set(token, sess, ttl)
	log.WithFields(logrus.Fields{
		"username": username,
		"rank":     rank,
	}).Info("Operator logged in")
	return token, sess, nil
}

// Validate resolves a token to its session. The witness slot is
// re-checked on every call; an operator who drops out of the top set is
// evicted immediately.
func (m *Manager) Validate(ctx context.Context, token string) (*Session, error) {
	cfg := params.CoordinatorConfig()
	v, found := m.sessions.Get(token)
	if !found {
		return nil, errors.Wrap(ErrUnauthorized, "unknown or expired token")
	}
	sess := v.(*Session)

	if cfg.DemoMode && sess.Username == DemoUsername {
		return sess, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, cfg.LoginTimeout)
	defer cancel()
	rank, ok, err := m.provider.WitnessRank(checkCtx, sess.Username)
	if err != nil {
		return nil, errors.Wrap(err, "could not re-check witness rank")
	}
	if !ok || rank > cfg.TopWitnessRank {
		m.sessions.Delete(token)
		log.WithField("username", sess.Username).Warn("Session revoked, witness slot lost")
		return nil, errors.Wrap(ErrUnauthorized, "witness slot lost")
	}
	sess.WitnessRank = rank
	return sess, nil
}

// Logout discards a token. Unknown tokens are a no-op.
func (m *Manager) Logout(token string) {
	m.sessions.Delete(token)
}

// ActiveSessions reports how many tokens are currently live.
func (m *Manager) ActiveSessions() int {
	return m.sessions.ItemCount()
}
