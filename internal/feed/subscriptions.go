package feed

import (
	"errors"
	"sync"
)

// ErrMissingCredentials is returned when the active protocol variant rejects
// unauthenticated subscriptions and no credentials are configured. The
// request is withheld rather than sent malformed.
var ErrMissingCredentials = errors.New("feed: subscription requires credentials and none are configured")

// Subscriptions tracks the desired set of feed asset IDs. The set survives
// disconnects and is replayed in full on every transition into Ready; only
// an explicit unsubscribe removes an entry. Insertion order is preserved so
// replay frames are deterministic.
type Subscriptions struct {
	mu      sync.Mutex
	desired map[string]struct{}
	order   []string
}

// NewSubscriptions returns an empty desired set.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{desired: make(map[string]struct{})}
}

// Add records assetID as desired. It returns false if it was already present.
func (s *Subscriptions) Add(assetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.desired[assetID]; ok {
		return false
	}
	s.desired[assetID] = struct{}{}
	s.order = append(s.order, assetID)
	return true
}

// Remove drops assetID from the desired set. It returns false if absent.
func (s *Subscriptions) Remove(assetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.desired[assetID]; !ok {
		return false
	}
	delete(s.desired, assetID)
	for i, id := range s.order {
		if id == assetID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Desired returns the desired asset IDs in insertion order.
func (s *Subscriptions) Desired() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the size of the desired set.
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// SubscribeFrame builds the subscribe message for the given asset IDs under
// the variant's credential policy: anonymous mode is used where the dialect
// supports it, otherwise the request is withheld with ErrMissingCredentials.
func (s *Subscriptions) SubscribeFrame(p Protocol, creds Credentials, assetIDs []string) ([]byte, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}
	if p.needsAuth && creds.Empty() && !p.allowsAnonymous {
		return nil, ErrMissingCredentials
	}
	return p.SubscribeFrame(assetIDs, creds), nil
}
