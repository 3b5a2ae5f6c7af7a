// Package identity holds the signed-in user for client processes and fans
// changes out to subscribers.
package identity

import (
	"sync"

	"activamigos-chat/internal/auth"
	"activamigos-chat/internal/models"
)

// Provider stores the current identity. A nil identity means signed out.
type Provider struct {
	mu      sync.Mutex
	current *models.Identity
	nextID  int
	subs    map[int]chan *models.Identity
}

// NewProvider returns a signed-out provider.
func NewProvider() *Provider {
	return &Provider{subs: make(map[int]chan *models.Identity)}
}

// FromToken derives the identity carried by a session token.
func FromToken(token string) (*models.Identity, error) {
	id, err := auth.IdentityFromToken(token)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// Set replaces the current identity and notifies subscribers.
func (p *Provider) Set(id *models.Identity) {
	var cp *models.Identity
	if id != nil {
		v := *id
		cp = &v
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = cp
	for _, ch := range p.subs {
		deliverLatest(ch, cp)
	}
}

// Clear signs out.
func (p *Provider) Clear() {
	p.Set(nil)
}

// Current returns a copy of the current identity, or nil.
func (p *Provider) Current() *models.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	v := *p.current
	return &v
}

// Subscribe returns a channel that first yields the current identity and then
// every change. A slow reader may miss intermediate values but always sees
// the latest one. Call cancel to stop delivery.
func (p *Provider) Subscribe() (<-chan *models.Identity, func()) {
	ch := make(chan *models.Identity, 1)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	ch <- p.current
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
	return ch, cancel
}

// deliverLatest replaces any undelivered value with v. Callers hold p.mu, so
// the channel has a single writer.
func deliverLatest(ch chan *models.Identity, v *models.Identity) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
