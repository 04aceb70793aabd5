package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Webhook header names used by relayers that push inbound messages.
const (
	HeaderTimestamp = "X-Relayer-Timestamp"
	HeaderSignature = "X-Relayer-Signature"
)

// WebhookAuth signs and verifies relayer webhook requests with a shared
// secret: hex(HMAC-SHA256(secret, timestamp + method + path + body)).
type WebhookAuth struct {
	Secret  string
	MaxSkew time.Duration
	now     func() time.Time
}

// NewWebhookAuth creates a WebhookAuth. maxSkew bounds replay of old requests.
func NewWebhookAuth(secret string, maxSkew time.Duration) *WebhookAuth {
	return &WebhookAuth{Secret: secret, MaxSkew: maxSkew, now: time.Now}
}

// Headers returns the headers a relayer attaches to a request.
func (w *WebhookAuth) Headers(method, path string, body []byte) map[string]string {
	ts := strconv.FormatInt(w.now().Unix(), 10)
	return map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: w.sign(ts, method, path, body),
	}
}

// Verify checks a request's timestamp and signature.
func (w *WebhookAuth) Verify(method, path string, body []byte, ts, sig string) error {
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("crypto/hmac: bad timestamp %q", ts)
	}
	skew := w.now().Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if w.MaxSkew > 0 && skew > w.MaxSkew {
		return fmt.Errorf("crypto/hmac: timestamp skew %s exceeds %s", skew, w.MaxSkew)
	}
	want := w.sign(ts, method, path, body)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return fmt.Errorf("crypto/hmac: signature mismatch")
	}
	return nil
}

// String returns a redacted representation suitable for logging.
func (w *WebhookAuth) String() string {
	if len(w.Secret) <= 4 {
		return "WebhookAuth{secret=****}"
	}
	return fmt.Sprintf("WebhookAuth{secret=%s****}", w.Secret[:4])
}

func (w *WebhookAuth) sign(ts, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(w.Secret))
	mac.Write([]byte(ts + method + path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
