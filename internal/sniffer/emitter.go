package sniffer

import "sync"

// emitter owns a backend's observer list. Backends embed it to get OnEvent
// and emit; the mutex makes registration safe while the capture goroutine
// is already delivering events.
type emitter struct {
	mu        sync.RWMutex
	callbacks []Callback
}

// OnEvent registers a callback for new beacon events.
func (e *emitter) OnEvent(cb Callback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks = append(e.callbacks, cb)
}

// emit delivers the event to every registered observer in order.
func (e *emitter) emit(event BeaconEvent) {
	e.mu.RLock()
	cbs := make([]Callback, len(e.callbacks))
	copy(cbs, e.callbacks)
	e.mu.RUnlock()

	for _, cb := range cbs {
		cb(event)
	}
}
