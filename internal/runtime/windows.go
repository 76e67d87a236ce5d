package runtime

import (
	"sync"
	"time"

	loggingpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/logging"
)

// WindowID is the host-assigned identifier of one renderer window. Zero is
// reserved for the main process.
type WindowID int64

// WindowDescriptor tracks one live renderer window. Topic is the
// main-process send endpoint for the window and is owned by the registry
// entry: once the descriptor is removed the topic must not be written again.
type WindowDescriptor struct {
	ID           WindowID  `json:"id"`
	Role         string    `json:"role"`
	Topic        string    `json:"topic"`
	RegisteredAt time.Time `json:"registered_at"`
}

// WindowRegistry tracks live renderer windows and their declared roles. It is
// the basis for addressed invokes and grouped broadcast.
//
// The host guarantees registration happens immediately after window creation
// and unregistration synchronously with the close notification, so the
// registry never holds a descriptor for a destroyed window. Mutation can come
// from host callbacks on arbitrary goroutines, hence the mutex.
type WindowRegistry struct {
	mu     sync.RWMutex
	byID   map[WindowID]*WindowDescriptor
	order  []WindowID
	logger loggingpkg.ServiceLogger
}

// NewWindowRegistry constructs an empty registry.
func NewWindowRegistry(logger loggingpkg.ServiceLogger) *WindowRegistry {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	return &WindowRegistry{
		byID:   make(map[WindowID]*WindowDescriptor),
		logger: logger,
	}
}

// Register adds a window under the given role and returns its descriptor.
// Roles are labels, not identities: several windows may share one role.
// Re-registering a live id replaces the prior descriptor in place and logs a
// conflict, mirroring handler-table semantics.
func (r *WindowRegistry) Register(id WindowID, role string) *WindowDescriptor {
	desc := &WindowDescriptor{
		ID:           id,
		Role:         role,
		Topic:        WindowTopic(id),
		RegisteredAt: time.Now().UTC(),
	}

	r.mu.Lock()
	_, duplicate := r.byID[id]
	r.byID[id] = desc
	if !duplicate {
		r.order = append(r.order, id)
	}
	r.mu.Unlock()

	if duplicate {
		r.logger.Error("Duplicate window registration, replacing descriptor", nil, loggingpkg.LogFields{
			"window_id": int64(id),
			"role":      role,
		})
	} else {
		r.logger.Debug("Window registered", loggingpkg.LogFields{
			"window_id": int64(id),
			"role":      role,
		})
	}
	return desc
}

// GetByID returns the descriptor for a window id. Unknown ids yield an
// explicit absent marker, never a panic.
func (r *WindowRegistry) GetByID(id WindowID) (*WindowDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.byID[id]
	return desc, ok
}

// GetAll returns the live descriptors in insertion order.
func (r *WindowRegistry) GetAll() []*WindowDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*WindowDescriptor, 0, len(r.order))
	for _, id := range r.order {
		if desc, ok := r.byID[id]; ok {
			all = append(all, desc)
		}
	}
	return all
}

// ByRole returns all live windows carrying the role, in insertion order.
func (r *WindowRegistry) ByRole(role string) []*WindowDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*WindowDescriptor
	for _, id := range r.order {
		if desc, ok := r.byID[id]; ok && desc.Role == role {
			matched = append(matched, desc)
		}
	}
	return matched
}

// Unregister removes a window. It must be called exactly once per window
// close, synchronously with the close notification. Returns false when the
// id was not registered.
func (r *WindowRegistry) Unregister(id WindowID) bool {
	r.mu.Lock()
	_, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		for i, ordered := range r.order {
			if ordered == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if ok {
		r.logger.Debug("Window unregistered", loggingpkg.LogFields{"window_id": int64(id)})
	}
	return ok
}

// Len returns the number of live windows.
func (r *WindowRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
