package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/alanyoungcy/zetatrigger/internal/crypto"
)

const maxWebhookBody = 1 << 20

// Webhook verifies the relayer HMAC headers over method, path and body
// before handing the request on with its body restored. A nil auth rejects
// every request, so the endpoint stays closed until a secret is configured.
func Webhook(auth *crypto.WebhookAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				writeJSONError(w, http.StatusForbidden, "webhook not configured")
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "unreadable body")
				return
			}
			err = auth.Verify(r.Method, r.URL.Path, body,
				r.Header.Get(crypto.HeaderTimestamp), r.Header.Get(crypto.HeaderSignature))
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid webhook signature")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
