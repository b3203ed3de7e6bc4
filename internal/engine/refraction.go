package engine

import "sync"

// Refraction tracks activation keys that have already fired in a session.
//
// An activation key is the rule plus the handles and versions of the
// matched facts. Once a key fires it never becomes an activation again,
// even if the match is re-evaluated many times. Modifying one of the facts
// bumps its version and yields a new key, so the rule can fire again on
// the changed fact.
type Refraction struct {
	mu      sync.Mutex
	history map[string]map[string]bool // map[session]map[activation key]bool
}

// NewRefraction creates an empty refraction history.
func NewRefraction() *Refraction {
	return &Refraction{history: make(map[string]map[string]bool)}
}

// Fired reports whether key has already fired in the session.
func (r *Refraction) Fired(sessionID, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.history[sessionID][key]
}

// Record marks key as fired in the session.
func (r *Refraction) Record(sessionID, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.history[sessionID] == nil {
		r.history[sessionID] = make(map[string]bool)
	}
	r.history[sessionID][key] = true
}

// Clear removes all history for a session.
func (r *Refraction) Clear(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.history, sessionID)
}

// Size returns the number of keys tracked for a session.
func (r *Refraction) Size(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.history[sessionID])
}
