package identity

import "context"

// StaticProvider serves fixed answers. Used in tests and in demo mode.
type StaticProvider struct {
	// Ranks maps username to witness rank; absent means no slot.
	Ranks map[string]int
	// ValidSignatures maps username+"|"+signature to acceptance.
	ValidSignatures map[string]bool
	// Err, when set, is returned from every call.
	Err error
}

// VerifySignature checks the static signature table.
func (s *StaticProvider) VerifySignature(_ context.Context, username, _, signature string) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	return s.ValidSignatures[username+"|"+signature], nil
}

// WitnessRank checks the static rank table.
func (s *StaticProvider) WitnessRank(_ context.Context, username string) (int, bool, error) {
	if s.Err != nil {
		return 0, false, s.Err
	}
	rank, ok := s.Ranks[username]
	return rank, ok, nil
}
