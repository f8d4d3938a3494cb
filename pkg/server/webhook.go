package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// maxWebhookBody caps the request body; GitHub's own limit is well below
// this.
const maxWebhookBody = 2 << 20

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	event := r.Header.Get("X-GitHub-Event")
	delivery := r.Header.Get("X-GitHub-Delivery")
	if delivery == "" {
		delivery = uuid.NewString()
	}

	secret := s.webhookSecret()
	if secret == "" {
		slog.Error("Webhook received but no webhook secret is configured")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "webhook secret not configured"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read body"})
		return
	}

	if !verifySignature(body, secret, r.Header.Get("X-Hub-Signature-256")) {
		slog.Warn("Webhook signature mismatch", "delivery", delivery)
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid signature"})
		return
	}

	var payload eventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		return
	}

	webhookEvents.WithLabelValues(event, payload.Action).Inc()

	// Acknowledge before doing any work; GitHub retries slow responders.
	writeJSON(w, http.StatusOK, map[string]string{"status": "processing"})

	go s.dispatch(event, delivery, payload)
}

// verifySignature checks the sha256 HMAC GitHub sends in
// X-Hub-Signature-256.
func verifySignature(body []byte, secret, header string) bool {
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}
