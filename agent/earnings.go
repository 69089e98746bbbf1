package agent

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Earnings is the agent's local record of challenge outcomes and
// accumulated rewards. LastChallengeTime is null until the first
// challenge lands.
type Earnings struct {
	TotalHbd          float64    `json:"totalHbd"`
	ChallengesPassed  int        `json:"challengesPassed"`
	ChallengesFailed  int        `json:"challengesFailed"`
	ConsecutivePasses int        `json:"consecutivePasses"`
	LastChallengeTime *time.Time `json:"lastChallengeTime"`
}

// EarningsStore persists earnings to a JSON file, rewritten atomically
// on every change.
type EarningsStore struct {
	path string

	mu       sync.Mutex
	earnings Earnings
}

// LoadEarningsStore reads the earnings file at path; a missing file
// starts from zero.
func LoadEarningsStore(path string) (*EarningsStore, error) {
	s := &EarningsStore{path: path}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, errors.Wrap(err, "could not read earnings file")
	}
	if err := json.Unmarshal(data, &s.earnings); err != nil {
		return nil, errors.Wrap(err, "could not parse earnings file")
	}
	return s, nil
}

// Earnings returns a snapshot of the current totals.
func (s *EarningsStore) Earnings() Earnings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.earnings
}

// RecordSuccess credits a passed challenge with its reward.
func (s *EarningsStore) RecordSuccess(reward float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.earnings.TotalHbd += reward
	s.earnings.ChallengesPassed++
	s.earnings.ConsecutivePasses++
	at = at.UTC()
	s.earnings.LastChallengeTime = &at
	return s.save()
}

// RecordFailure records a failed challenge and resets the pass streak.
func (s *EarningsStore) RecordFailure(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.earnings.ChallengesFailed++
	s.earnings.ConsecutivePasses = 0
	at = at.UTC()
	s.earnings.LastChallengeTime = &at
	return s.save()
}

func (s *EarningsStore) save() error {
	data, err := json.MarshalIndent(s.earnings, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not encode earnings")
	}
	return writeFileAtomic(s.path, data)
}
