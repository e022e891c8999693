package replicate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSignature = errors.New("replicate: webhook signature mismatch")

// WebhookHeaders carries the three signing headers of a webhook delivery.
type WebhookHeaders struct {
	ID        string
	Timestamp string
	Signature string
}

// DecodeWebhookSecret strips the provider prefix ("whsec_") from the signing
// secret and base64-decodes the remainder into the raw HMAC key.
func DecodeWebhookSecret(secret string) ([]byte, error) {
	i := strings.IndexByte(secret, '_')
	if i < 0 {
		return nil, errors.New("replicate: webhook secret missing prefix")
	}
	key, err := base64.StdEncoding.DecodeString(secret[i+1:])
	if err != nil {
		return nil, fmt.Errorf("replicate: decode webhook secret: %w", err)
	}
	return key, nil
}

// VerifyWebhook authenticates a delivery. The signed content is
// "{id}.{timestamp}.{body}"; the signature header may carry several versioned
// signatures ("v1,<b64> v1,<b64>" or comma separated) and any match passes.
func VerifyWebhook(secret string, h WebhookHeaders, body []byte) error {
	if h.ID == "" || h.Timestamp == "" || h.Signature == "" {
		return ErrInvalidSignature
	}
	key, err := DecodeWebhookSecret(secret)
	if err != nil {
		return err
	}

	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", h.ID, h.Timestamp)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, candidate := range splitSignatures(h.Signature) {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func splitSignatures(header string) []string {
	var out []string
	for _, entry := range strings.FieldsFunc(header, func(r rune) bool { return r == ' ' || r == ',' }) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		// Versioned entries look like "v1,<sig>"; after splitting on commas
		// the version tag survives as its own field and is skipped here.
		if len(entry) <= 3 && strings.HasPrefix(entry, "v") {
			continue
		}
		out = append(out, entry)
	}
	return out
}
