// Package edits implements inline manual corrections: a per-cell state
// machine and the two ledgers (pending and confirmed) behind it.
package edits

import (
	"sort"

	"crmimport/internal/models"
)

// Ledger stores manual edits in two phases. Pending edits are drafts
// awaiting confirmation; confirmed edits are permanent for the session and
// override source-derived values on every normalization.
type Ledger struct {
	pending   map[models.CellKey]string
	confirmed map[models.CellKey]string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		pending:   make(map[models.CellKey]string),
		confirmed: make(map[models.CellKey]string),
	}
}

// Confirmed returns the confirmed value for key.
func (l *Ledger) Confirmed(key models.CellKey) (string, bool) {
	if l == nil {
		return "", false
	}
	v, ok := l.confirmed[key]
	return v, ok
}

// Pending returns the unconfirmed draft for key.
func (l *Ledger) Pending(key models.CellKey) (string, bool) {
	v, ok := l.pending[key]
	return v, ok
}

// HasPending reports whether any draft awaits confirmation.
func (l *Ledger) HasPending() bool { return len(l.pending) > 0 }

// ConfirmedCount is the number of permanent edits.
func (l *Ledger) ConfirmedCount() int { return len(l.confirmed) }

// ConfirmedKeys lists confirmed cells ordered by row then field.
func (l *Ledger) ConfirmedKeys() []models.CellKey {
	keys := make([]models.CellKey, 0, len(l.confirmed))
	for k := range l.confirmed {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].OriginalIndex != keys[j].OriginalIndex {
			return keys[i].OriginalIndex < keys[j].OriginalIndex
		}
		return keys[i].Field < keys[j].Field
	})
	return keys
}

// DiscardPending drops every draft. Confirmed edits are kept.
func (l *Ledger) DiscardPending() {
	l.pending = make(map[models.CellKey]string)
}

func (l *Ledger) stage(key models.CellKey, value string) { l.pending[key] = value }

func (l *Ledger) drop(key models.CellKey) { delete(l.pending, key) }

func (l *Ledger) confirm(key models.CellKey) (string, bool) {
	v, ok := l.pending[key]
	if !ok {
		return "", false
	}
	delete(l.pending, key)
	l.confirmed[key] = v
	return v, true
}
