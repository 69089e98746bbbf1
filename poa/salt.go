package poa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// GenerateSalt builds a challenge salt from fresh entropy, the latest
// chain block hash, and the current time. The chain hash prevents a node
// from precomputing proofs; the random bytes keep concurrent validators
// from colliding.
func GenerateSalt(lastBlockHash string) (string, error) {
	entropy := make([]byte, 32)
	if _, err := rand.Read(entropy); err != nil {
		return "", errors.Wrap(err, "could not read salt entropy")
	}
	payload := make([]byte, 0, len(entropy)+len(lastBlockHash)+16)
	payload = append(payload, entropy...)
	payload = append(payload, lastBlockHash...)
	payload = append(payload, strconv.FormatInt(time.Now().UnixMilli(), 10)...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
