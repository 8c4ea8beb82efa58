package notify

import (
	"context"
	"sync"

	"github.com/scraphaul/dispatch/core/model"
	corenotify "github.com/scraphaul/dispatch/core/notify"
)

// SentOffer records one delivery attempt made through the MockNotifier.
type SentOffer struct {
	VendorRef string
	Payload   corenotify.OfferPayload
}

// MockNotifier records offers for tests. Deliveries to vendors listed in
// FailFor come back as *notify.SendError; an optional OnOffer hook runs
// after each successful recording.
type MockNotifier struct {
	mu      sync.Mutex
	sent    []SentOffer
	FailFor map[string]error
	OnOffer func(cand model.VendorCandidate, payload corenotify.OfferPayload)
}

var _ corenotify.VendorNotifier = (*MockNotifier)(nil)

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{FailFor: make(map[string]error)}
}

func (m *MockNotifier) Offer(_ context.Context, cand model.VendorCandidate, payload corenotify.OfferPayload) error {
	m.mu.Lock()
	if err, ok := m.FailFor[cand.VendorRef]; ok {
		m.mu.Unlock()
		return &corenotify.SendError{VendorRef: cand.VendorRef, Err: err}
	}
	m.sent = append(m.sent, SentOffer{VendorRef: cand.VendorRef, Payload: payload})
	hook := m.OnOffer
	m.mu.Unlock()
	if hook != nil {
		hook(cand, payload)
	}
	return nil
}

// Sent returns a copy of the recorded deliveries.
func (m *MockNotifier) Sent() []SentOffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentOffer, len(m.sent))
	copy(out, m.sent)
	return out
}

// VendorsOffered returns the vendor refs in delivery order.
func (m *MockNotifier) VendorsOffered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.VendorRef)
	}
	return out
}
