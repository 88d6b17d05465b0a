package page

import (
	"fmt"
	"net/url"
	"sync"
)

// NavigationKind says how the current entry changed.
type NavigationKind string

const (
	NavigationPush    NavigationKind = "pushState"
	NavigationReplace NavigationKind = "replaceState"
	NavigationPop     NavigationKind = "popstate"
)

// Navigation is delivered to history observers after the entry changed.
type Navigation struct {
	Kind NavigationKind
	URL  *url.URL
}

// History is the session history of a single-page app. Observers are notified
// of every client-side route change, replacing the need to patch the
// pushState/replaceState methods.
type History struct {
	mu        sync.Mutex
	entries   []*url.URL
	index     int
	next      uint64
	observers map[uint64]func(Navigation)
	order     []uint64
}

// NewHistory starts a history at the given absolute URL.
func NewHistory(start string) (*History, error) {
	u, err := url.Parse(start)
	if err != nil {
		return nil, fmt.Errorf("invalid start url: %w", err)
	}

	return &History{
		entries:   []*url.URL{u},
		observers: make(map[uint64]func(Navigation)),
	}, nil
}

// Current returns a copy of the current URL.
func (h *History) Current() *url.URL {
	h.mu.Lock()
	defer h.mu.Unlock()

	u := *h.entries[h.index]

	return &u
}

// Len returns the number of history entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.entries)
}

// PushState adds an entry resolved against the current URL.
func (h *History) PushState(target string) error {
	h.mu.Lock()

	u, err := h.resolve(target)
	if err != nil {
		h.mu.Unlock()

		return err
	}

	h.entries = append(h.entries[:h.index+1], u)
	h.index++
	h.mu.Unlock()

	h.notify(Navigation{Kind: NavigationPush, URL: u})

	return nil
}

// ReplaceState swaps the current entry.
func (h *History) ReplaceState(target string) error {
	h.mu.Lock()

	u, err := h.resolve(target)
	if err != nil {
		h.mu.Unlock()

		return err
	}

	h.entries[h.index] = u
	h.mu.Unlock()

	h.notify(Navigation{Kind: NavigationReplace, URL: u})

	return nil
}

// Back moves one entry back and fires popstate. It reports whether there was an entry to go back to.
func (h *History) Back() bool {
	h.mu.Lock()

	if h.index == 0 {
		h.mu.Unlock()

		return false
	}

	h.index--
	u := h.entries[h.index]
	h.mu.Unlock()

	h.notify(Navigation{Kind: NavigationPop, URL: u})

	return true
}

// Observe installs fn as a navigation observer and returns its uninstall func.
func (h *History) Observe(fn func(Navigation)) (uninstall func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	id := h.next
	h.observers[id] = fn
	h.order = append(h.order, id)

	var once sync.Once

	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			delete(h.observers, id)

			for i, v := range h.order {
				if v == id {
					h.order = append(h.order[:i:i], h.order[i+1:]...)

					break
				}
			}
		})
	}
}

// ObserverCount returns the number of installed observers.
func (h *History) ObserverCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.observers)
}

func (h *History) resolve(target string) (*url.URL, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", target, err)
	}

	return h.entries[h.index].ResolveReference(ref), nil
}

func (h *History) notify(nav Navigation) {
	h.mu.Lock()

	observers := make([]func(Navigation), 0, len(h.order))
	for _, id := range h.order {
		observers = append(observers, h.observers[id])
	}

	h.mu.Unlock()

	for _, fn := range observers {
		u := *nav.URL
		fn(Navigation{Kind: nav.Kind, URL: &u})
	}
}
