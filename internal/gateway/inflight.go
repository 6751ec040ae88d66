package gateway

import "sync"

// InFlight serializes mutations per order. Different orders never contend.
type InFlight struct {
	mu     sync.Mutex
	orders map[string]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{orders: make(map[string]struct{})}
}

// Acquire marks orderID busy. It fails with ErrSyncInFlight instead of waiting.
// The returned release is safe to call more than once.
func (f *InFlight) Acquire(orderID string) (release func(), err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, busy := f.orders[orderID]; busy {
		return nil, ErrSyncInFlight
	}
	f.orders[orderID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.orders, orderID)
			f.mu.Unlock()
		})
	}, nil
}

// Busy reports whether orderID has an outstanding mutation.
func (f *InFlight) Busy(orderID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, busy := f.orders[orderID]
	return busy
}
