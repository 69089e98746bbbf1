// Package identity abstracts the external ledger: signature
// verification and witness-rank lookups. The coordinator never signs or
// verifies anything itself; it asks a provider and reports failures
// rather than swallowing them.
package identity

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Provider answers the two identity questions the coordinator asks.
type Provider interface {
	// VerifySignature reports whether signature is a valid signature of
	// challenge by username's key.
	VerifySignature(ctx context.Context, username, challenge, signature string) (bool, error)
	// WitnessRank returns the operator's rank, or ok=false when the
	// account holds no witness slot at all.
	WitnessRank(ctx context.Context, username string) (rank int, ok bool, err error)
}

// IsTopWitness reports whether username ranks within the top topN
// witnesses.
func IsTopWitness(ctx context.Context, p Provider, username string, topN int) (bool, error) {
	rank, ok, err := p.WitnessRank(ctx, username)
	if err != nil {
		return false, err
	}
	return ok && rank > 0 && rank <= topN, nil
}

// LoginChallengePrefix is the required shape of a login challenge
// string: the prefix followed by the issuing unix-millisecond timestamp.
const LoginChallengePrefix = "SPK-Validator-Login-"

// ErrBadChallenge rejects malformed or stale login challenge strings.
var ErrBadChallenge = errors.New("invalid login challenge")

// ParseLoginChallenge validates the challenge format and returns its
// issue time. Callers enforce their own freshness window on top.
func ParseLoginChallenge(challenge string) (time.Time, error) {
	if !strings.HasPrefix(challenge, LoginChallengePrefix) {
		return time.Time{}, errors.Wrap(ErrBadChallenge, "missing prefix")
	}
	millis, err := strconv.ParseInt(strings.TrimPrefix(challenge, LoginChallengePrefix), 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrap(ErrBadChallenge, "bad timestamp")
	}
	return time.UnixMilli(millis), nil
}
