package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scraphaul/dispatch/core/model"
	corenotify "github.com/scraphaul/dispatch/core/notify"
)

func testPayload() corenotify.OfferPayload {
	return corenotify.OfferPayload{
		OfferID:   "offer-1",
		PickupID:  "p1",
		Address:   "12 Scrapyard Lane",
		Items:     []model.PickupItem{{ScrapType: "steel", EstimatedKg: 40}},
		ExpiresAt: time.Now().Add(10 * time.Second),
	}
}

func TestHTTPNotifierDeliversSignedOffer(t *testing.T) {
	var (
		gotBody []byte
		gotSig  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		gotSig = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(Config{Secret: "s3cret"})
	cand := model.VendorCandidate{VendorRef: "v1", CallbackURL: srv.URL}
	require.NoError(t, n.Offer(context.Background(), cand, testPayload()))

	var decoded corenotify.OfferPayload
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "p1", decoded.PickupID)
	assert.True(t, VerifySignature([]byte("s3cret"), gotBody, gotSig))
	assert.False(t, VerifySignature([]byte("wrong"), gotBody, gotSig))
}

func TestHTTPNotifierNon2xxIsSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(Config{})
	err := n.Offer(context.Background(), model.VendorCandidate{VendorRef: "v1", CallbackURL: srv.URL}, testPayload())
	var sendErr *corenotify.SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, "v1", sendErr.VendorRef)
	assert.Equal(t, http.StatusServiceUnavailable, sendErr.StatusCode)
}

func TestHTTPNotifierTransportFailureIsSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	n := NewHTTPNotifier(Config{TimeoutSeconds: 1})
	err := n.Offer(context.Background(), model.VendorCandidate{VendorRef: "v1", CallbackURL: srv.URL}, testPayload())
	var sendErr *corenotify.SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Zero(t, sendErr.StatusCode)
	assert.Error(t, sendErr.Err)
}

func TestHTTPNotifierMissingCallback(t *testing.T) {
	n := NewHTTPNotifier(Config{})
	err := n.Offer(context.Background(), model.VendorCandidate{VendorRef: "v1"}, testPayload())
	var sendErr *corenotify.SendError
	require.True(t, errors.As(err, &sendErr))
}

func TestMockNotifier(t *testing.T) {
	m := NewMockNotifier()
	m.FailFor["bad"] = errors.New("boom")

	require.NoError(t, m.Offer(context.Background(), model.VendorCandidate{VendorRef: "v1"}, testPayload()))
	err := m.Offer(context.Background(), model.VendorCandidate{VendorRef: "bad"}, testPayload())
	var sendErr *corenotify.SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, []string{"v1"}, m.VendorsOffered())
}
