// Package notify delivers offers to vendor backends over HTTP.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	corenotify "github.com/scraphaul/dispatch/core/notify"

	"github.com/scraphaul/dispatch/core/model"
	"github.com/scraphaul/dispatch/infra/logger"
)

// Config defines the outbound delivery parameters.
type Config struct {
	// Secret signs the request body; vendors verify the signature before
	// acting on an offer. Empty disables signing.
	Secret string `json:"secret"`
	// TimeoutSeconds bounds a single delivery attempt.
	TimeoutSeconds int `json:"timeout_seconds"`
}

const defaultSendTimeout = 5 * time.Second

// SendTimeout returns the per-delivery timeout.
func (c Config) SendTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultSendTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Offer-Signature"

// HTTPNotifier posts offer documents to each vendor's callback URL. Any
// transport failure or non-2xx response comes back as a *notify.SendError so
// the coordinator treats the vendor as having rejected.
type HTTPNotifier struct {
	client *http.Client
	secret []byte
	log    logger.Logger
}

var _ corenotify.VendorNotifier = (*HTTPNotifier)(nil)

// NewHTTPNotifier builds a notifier with a bounded-timeout client.
func NewHTTPNotifier(cfg Config) *HTTPNotifier {
	n := &HTTPNotifier{
		client: &http.Client{Timeout: cfg.SendTimeout()},
		log:    logger.New("vendor_notifier"),
	}
	if cfg.Secret != "" {
		n.secret = []byte(cfg.Secret)
	}
	return n
}

// Offer posts the payload to the vendor's callback URL.
func (n *HTTPNotifier) Offer(ctx context.Context, cand model.VendorCandidate, payload corenotify.OfferPayload) error {
	if cand.CallbackURL == "" {
		return &corenotify.SendError{VendorRef: cand.VendorRef, Err: fmt.Errorf("vendor has no callback url")}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal offer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cand.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return &corenotify.SendError{VendorRef: cand.VendorRef, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != nil {
		req.Header.Set(SignatureHeader, n.sign(body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warnf("offer delivery to %s failed: %v", cand.VendorRef, err)
		return &corenotify.SendError{VendorRef: cand.VendorRef, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.log.Warnf("offer to %s refused with status %d", cand.VendorRef, resp.StatusCode)
		return &corenotify.SendError{VendorRef: cand.VendorRef, StatusCode: resp.StatusCode}
	}
	n.log.Debugf("offer %s delivered to %s", payload.OfferID, cand.VendorRef)
	return nil
}

func (n *HTTPNotifier) sign(body []byte) string {
	mac := hmac.New(sha256.New, n.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound signature against a shared secret.
// Vendor-side handlers use it to validate offer documents.
func VerifySignature(secret, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
