package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the provider's webhook signature:
// "t=<unix seconds>,v1=<hex hmac-sha256 of "<t>.<payload>">"
const SignatureHeader = "Payment-Signature"

var ErrInvalidSignature = errors.New("invalid webhook signature")

// VerifySignature checks the webhook signature header against the shared
// secret. The timestamp must be within tolerance to limit replay.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration) error {
	if secret == "" {
		return errors.New("webhook secret not configured")
	}

	var ts int64
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			ts = parsed
		case "v1":
			sigs = append(sigs, v)
		}
	}

	if ts == 0 || len(sigs) == 0 {
		return fmt.Errorf("%w: missing timestamp or signature", ErrInvalidSignature)
	}

	if d := time.Since(time.Unix(ts, 0)); d > tolerance || d < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// ComputeSignature builds a signature header value for the given payload.
// Used by tests and local tooling to produce valid webhook requests.
func ComputeSignature(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
