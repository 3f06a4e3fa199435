package http

import (
	"sync"

	"quest-session-service/internal/app"
)

// NotifierHub fans process-level notifications (e.g. analytics delivery
// failures) out to every connected client. It implements app.Notifier.
type NotifierHub struct {
	mu    sync.RWMutex
	sinks map[app.Notifier]struct{}
}

func NewNotifierHub() *NotifierHub {
	return &NotifierHub{sinks: make(map[app.Notifier]struct{})}
}

func (h *NotifierHub) register(n app.Notifier) func() {
	h.mu.Lock()
	h.sinks[n] = struct{}{}
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.sinks, n)
		h.mu.Unlock()
	}
}

func (h *NotifierHub) Notify(kind, title, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sink := range h.sinks {
		sink.Notify(kind, title, message)
	}
}
