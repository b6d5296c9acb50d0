// internal/gauge/missed.go
package gauge

import "sync"

// MaxMissedReadings bounds the anomaly log
const MaxMissedReadings = 256

// MissedReadings is a bounded log of distinct anomalous raw replies
type MissedReadings struct {
	mu     sync.RWMutex
	values []string
}

// NewMissedReadings creates an empty anomaly log
func NewMissedReadings() *MissedReadings {
	return &MissedReadings{values: make([]string, 0, MaxMissedReadings)}
}

// Record appends value unless it is already stored. It reports whether the value was added.
func (m *MissedReadings) Record(value string) bool {
	if value == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range m.values {
		if v == value {
			return false
		}
	}

	m.values = append(m.values, value)
	if over := len(m.values) - MaxMissedReadings; over > 0 {
		m.values = append(m.values[:0], m.values[over:]...)
	}
	return true
}

// Snapshot returns a copy of the stored values, oldest first
func (m *MissedReadings) Snapshot() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.values))
	copy(out, m.values)
	return out
}

// Len returns the number of stored values
func (m *MissedReadings) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
