package sync

import "context"

// Status is a point-in-time snapshot of the engine for CLIs and dashboards.
type Status struct {
	// Enabled reports whether remote sync is configured and switched on.
	Enabled bool `json:"enabled"`

	// Syncing is true while a coordinated operation holds the flight lock.
	Syncing bool `json:"syncing"`

	// PendingRetries counts ledger entries awaiting replay.
	PendingRetries int `json:"pendingRetries"`

	// Message is the human-readable configuration/enablement state.
	Message string `json:"message"`
}

// IsSyncing reports whether a coordinated sync operation is in flight.
func (m *Manager) IsSyncing() bool {
	return m.lock.Held()
}

// PendingRetryCount returns the number of ledger entries awaiting replay.
func (m *Manager) PendingRetryCount(ctx context.Context) (int, error) {
	entries, err := m.store.RetryQueue(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// StatusMessage describes the engine's configuration state for display.
func (m *Manager) StatusMessage() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return statusMessage(m.settings)
}

func statusMessage(s Settings) string {
	switch {
	case !s.Enabled && s.URL != "" && s.Token != "":
		return "cloud sync configured but not enabled"
	case !s.Enabled:
		return "cloud sync disabled"
	case s.URL == "":
		return "database URL not set"
	case s.Token == "":
		return "auth token not set"
	default:
		return "cloud sync enabled"
	}
}

// Status assembles the full snapshot.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	pending, err := m.PendingRetryCount(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	enabled := m.settings.Ready()
	m.mu.RUnlock()

	return &Status{
		Enabled:        enabled,
		Syncing:        m.IsSyncing(),
		PendingRetries: pending,
		Message:        m.StatusMessage(),
	}, nil
}
