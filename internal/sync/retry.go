package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/webcollect/collector/internal/schema"
)

// DrainResult reports one sweep over the retry ledger.
type DrainResult struct {
	// Replayed counts entries whose remote mutation finally succeeded.
	Replayed int `json:"replayed"`

	// Abandoned counts entries dropped at the retry ceiling.
	Abandoned int `json:"abandoned"`

	// Remaining counts entries still pending after the sweep.
	Remaining int `json:"remaining"`
}

// recordRetry upserts a failed mutation into the durable ledger.
//
// The ledger holds at most one entry per (op, id); a repeat failure
// increments the existing entry's retry count instead of duplicating it.
// The updated ledger is persisted before returning (synchronous durability
// point). A ledger persistence failure is returned so callers can report
// that the mutation will not be retried.
func (m *Manager) recordRetry(ctx context.Context, op schema.RetryOp, id string, b *schema.Bookmark) error {
	m.retryMu.Lock()
	defer m.retryMu.Unlock()

	entries, err := m.store.RetryQueue(ctx)
	if err != nil {
		m.logger.Printf("failed to load retry ledger: %v", err)
		return err
	}

	key := fmt.Sprintf("%s:%s", op, id)
	found := false
	for i := range entries {
		if entries[i].Key() == key {
			entries[i].Retries++
			if b != nil {
				entries[i].Bookmark = b
			}
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, schema.RetryEntry{
			Op:        op,
			ID:        id,
			Bookmark:  b,
			Retries:   1,
			CreatedAt: time.Now().UTC(),
		})
	}

	if err := m.store.SetRetryQueue(ctx, entries); err != nil {
		m.logger.Printf("failed to persist retry ledger: %v", err)
		return err
	}
	m.logger.Printf("recorded retry %s (pending: %d)", key, len(entries))
	return nil
}

// DrainRetries replays the retry ledger behind the flight lock.
// Called on startup and periodically by the daemon.
func (m *Manager) DrainRetries(ctx context.Context) (*DrainResult, error) {
	m.lock.Acquire("drain")
	defer m.lock.Release("drain")
	return m.drain(ctx)
}

// drain sweeps the ledger once, outside any flight-lock concerns.
//
// For each entry below the retry ceiling, the mutation is replayed through
// the transport, marked as a retry so a further failure does not re-record
// it; instead the failure bumps the entry's retry count in place. Successful
// entries are removed; entries at the ceiling are dropped with a logged
// abandonment. Per-entry failures are swallowed - this is a best-effort
// sweep and only local store errors propagate.
func (m *Manager) drain(ctx context.Context) (*DrainResult, error) {
	m.retryMu.Lock()
	defer m.retryMu.Unlock()

	entries, err := m.store.RetryQueue(ctx)
	if err != nil {
		return nil, err
	}

	result := &DrainResult{}
	if len(entries) == 0 {
		return result, nil
	}

	var keep []schema.RetryEntry
	for _, e := range entries {
		if e.Retries >= maxRetries {
			m.logger.Printf("abandoning %s after %d retries", e.Key(), e.Retries)
			result.Abandoned++
			continue
		}

		var ok bool
		switch e.Op {
		case schema.RetrySave:
			ok = e.Bookmark != nil && m.saveRemote(ctx, e.Bookmark, true).Success
		case schema.RetryDelete:
			ok = m.deleteRemote(ctx, e.ID, true).Success
		default:
			m.logger.Printf("dropping unknown ledger entry %s", e.Key())
			result.Abandoned++
			continue
		}

		if ok {
			result.Replayed++
			continue
		}

		e.Retries++
		keep = append(keep, e)
	}

	if keep == nil {
		keep = []schema.RetryEntry{}
	}
	if err := m.store.SetRetryQueue(ctx, keep); err != nil {
		return nil, err
	}

	result.Remaining = len(keep)
	if result.Replayed > 0 || result.Abandoned > 0 {
		m.logger.Printf("drain complete: %d replayed, %d abandoned, %d remaining",
			result.Replayed, result.Abandoned, result.Remaining)
	}

	m.notify(func(n Notifier) { n.DrainComplete(result) })
	return result, nil
}
