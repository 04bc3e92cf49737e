// Package webhook authenticates inbound provider callbacks before any
// task state is touched.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"reelmint/internal/domain"
)

// Verifier checks the HMAC signature and freshness of callback
// parameters. The signature is computed over "taskID.timestamp" with a
// shared secret; timestamps outside MaxSkew are rejected to limit
// replay.
type Verifier struct {
	secret  []byte
	maxSkew time.Duration
	now     func() time.Time
}

func NewVerifier(secret string, maxSkew time.Duration) *Verifier {
	if maxSkew <= 0 {
		maxSkew = 5 * time.Minute
	}
	return &Verifier{secret: []byte(secret), maxSkew: maxSkew, now: time.Now}
}

// Sign computes the signature a caller is expected to present. Exposed
// for tests and for registering the callback with providers.
func (v *Verifier) Sign(taskID string, timestamp int64) string {
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%s.%d", taskID, timestamp)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify validates signature and clock skew. Any failure returns
// domain.ErrSignatureInvalid wrapped with the reason; callers must
// short-circuit before parsing the request body.
func (v *Verifier) Verify(taskID, timestamp, signature string) error {
	if taskID == "" || timestamp == "" || signature == "" {
		return fmt.Errorf("%w: missing parameters", domain.ErrSignatureInvalid)
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", domain.ErrSignatureInvalid)
	}
	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return fmt.Errorf("%w: timestamp outside allowed window", domain.ErrSignatureInvalid)
	}
	expected := v.Sign(taskID, ts)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrSignatureInvalid)
	}
	return nil
}
