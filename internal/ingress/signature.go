package ingress

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"
)

// VerifySignature checks header (e.g. "sha256=abcd...") against an HMAC
// of body under secret, auto-detecting the algorithm from the prefix,
// and compares in constant time.
func VerifySignature(header string, body []byte, secret string) error {
	if header == "" {
		return fmt.Errorf("missing signature header")
	}

	var newHash func() hash.Hash
	var want string
	switch {
	case strings.HasPrefix(header, "sha256="):
		want = strings.TrimPrefix(header, "sha256=")
		newHash = sha256.New
	case strings.HasPrefix(header, "sha1="):
		want = strings.TrimPrefix(header, "sha1=")
		newHash = sha1.New
	default:
		return fmt.Errorf("unrecognized signature algorithm prefix")
	}

	wantBytes, err := hex.DecodeString(want)
	if err != nil {
		return fmt.Errorf("signature is not valid hex")
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	got := mac.Sum(nil)

	if !hmac.Equal(got, wantBytes) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// VerifyTimestamp rejects a webhook whose X-Request-Timestamp header is
// more than maxSkew away from wall-clock time, guarding against replay.
func VerifyTimestamp(header string, maxSkew time.Duration) error {
	if header == "" {
		return nil
	}
	secs, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp header is not a valid unix timestamp")
	}
	ts := time.Unix(secs, 0)
	delta := time.Since(ts)
	if delta < 0 {
		delta = -delta
	}
	if delta > maxSkew {
		return fmt.Errorf("timestamp outside the allowed skew window")
	}
	return nil
}
