package recording

import "sync"

// Subscription is one recording run: the registry's hold on the receiver's speaking events.
type Subscription struct {
	ID string

	once   sync.Once
	cancel func()
}

// Cancel stops speaking events from reaching the registry. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
