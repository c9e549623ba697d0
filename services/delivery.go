package services

import (
	"sync"
	"time"
)

type pickup struct {
	owner    string
	receiver string
	at       time.Time
}

// Delivery tracks who is waiting on a code and who owned a code that has
// already been handed over. A code has at most one parked receiver; taking
// it removes it, so every receiver is notified at most once.
type Delivery struct {
	mu      sync.Mutex
	waiters map[string]string
	pickups map[string]pickup
	now     func() time.Time
}

func NewDelivery(now func() time.Time) *Delivery {
	if now == nil {
		now = time.Now
	}
	return &Delivery{
		waiters: make(map[string]string),
		pickups: make(map[string]pickup),
		now:     now,
	}
}

// Park registers receiverID as the waiter for code, replacing any earlier one.
func (d *Delivery) Park(code, receiverID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waiters[code] = receiverID
}

// Unpark removes receiverID's wait on code, leaving any other receiver in place.
func (d *Delivery) Unpark(code, receiverID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.waiters[code] == receiverID {
		delete(d.waiters, code)
	}
}

func (d *Delivery) Take(code string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.waiters[code]
	if ok {
		delete(d.waiters, code)
	}
	return id, ok
}

func (d *Delivery) DropReceiver(receiverID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for code, id := range d.waiters {
		if id == receiverID {
			delete(d.waiters, code)
		}
	}
}

// RecordPickup remembers that receiver took code from owner.
func (d *Delivery) RecordPickup(code, owner, receiver string) {
	if owner == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pickups[code] = pickup{owner: owner, receiver: receiver, at: d.now()}
}

// PickupOwner returns the sender of code if receiver is the one who picked it up.
func (d *Delivery) PickupOwner(code, receiver string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pickups[code]
	if !ok || p.receiver != receiver {
		return "", false
	}
	return p.owner, true
}

func (d *Delivery) DropOwner(owner string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for code, p := range d.pickups {
		if p.owner == owner {
			delete(d.pickups, code)
		}
	}
}

// PrunePickups forgets receipts older than maxAge and returns how many were removed.
func (d *Delivery) PrunePickups(now time.Time, maxAge time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for code, p := range d.pickups {
		if now.Sub(p.at) > maxAge {
			delete(d.pickups, code)
			n++
		}
	}
	return n
}

func (d *Delivery) Waiting() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.waiters)
}
