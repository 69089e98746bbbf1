// Package encoding runs the transcoding job queue: lease-based dispatch
// to external encoder agents, the signed progress/completion protocol,
// retry with backoff, and the lease reaper safety valve.
package encoding

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// SignLease derives the lease signature handed to an agent on claim:
// HMAC-SHA256(secret, jobId || encoderId || leaseExpiresAt). The agent
// must echo it on every subsequent call for the job. Renewing the lease
// moves the expiry, so a renewal invalidates older signatures.
func SignLease(secret []byte, jobID, encoderID string, leaseExpiresAt time.Time) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(jobID))
	mac.Write([]byte(encoderID))
	mac.Write([]byte(strconv.FormatInt(leaseExpiresAt.Unix(), 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyLease checks a presented signature in constant time.
func VerifyLease(secret []byte, jobID, encoderID string, leaseExpiresAt time.Time, signature string) bool {
	want := SignLease(secret, jobID, encoderID, leaseExpiresAt)
	return hmac.Equal([]byte(want), []byte(signature))
}
