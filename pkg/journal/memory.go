package journal

import "sync"

// Memory keeps events in process. Tests assert on it; the demo prints it.
type Memory struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Events returns a copy of everything recorded so far, oldest first.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Memory) OfKind(k Kind) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

// Last returns the most recent event of kind k.
func (m *Memory) Last(k Kind) (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Kind == k {
			return m.events[i], true
		}
	}
	return Event{}, false
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
