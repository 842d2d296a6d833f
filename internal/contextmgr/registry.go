package contextmgr

import (
	"errors"
	"sync"
)

var ErrMeetingNotFound = errors.New("meeting not found")

// Registry tracks the live Manager for every meeting the process is
// handling. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	meetings map[string]*Manager
}

func NewRegistry() *Registry {
	return &Registry{meetings: map[string]*Manager{}}
}

// Put registers a manager, replacing any previous one for the meeting.
func (r *Registry) Put(m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meetings[m.MeetingID()] = m
}

func (r *Registry) Get(meetingID string) (*Manager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meetings[meetingID]
	if !ok {
		return nil, ErrMeetingNotFound
	}
	return m, nil
}

func (r *Registry) Remove(meetingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.meetings, meetingID)
}

// ForEach calls fn for every registered manager. fn runs outside the
// registry lock so it may take per-meeting locks freely.
func (r *Registry) ForEach(fn func(*Manager)) {
	r.mu.RLock()
	managers := make([]*Manager, 0, len(r.meetings))
	for _, m := range r.meetings {
		managers = append(managers, m)
	}
	r.mu.RUnlock()
	for _, m := range managers {
		fn(m)
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.meetings)
}
