// Package dedup splits normalized records into a ready set of
// representatives and a skipped set, resolving duplicates by priority
// ordered match keys with a richest-record-wins policy.
package dedup

import (
	"cmp"
	"fmt"
	"slices"

	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/logging"
	"crmimport/internal/models"
)

// TieRule decides a collision between records of equal completeness.
type TieRule int

const (
	// IncumbentWinsTie keeps the record seen first when completeness
	// scores are equal.
	IncumbentWinsTie TieRule = iota
	// ChallengerWinsTie lets a later, equally complete record replace the
	// representative.
	ChallengerWinsTie
)

func (r TieRule) String() string {
	switch r {
	case IncumbentWinsTie:
		return "incumbent"
	case ChallengerWinsTie:
		return "challenger"
	}
	return fmt.Sprintf("TieRule(%d)", int(r))
}

// ParseTieRule reads "incumbent" or "challenger"; empty means incumbent.
func ParseTieRule(s string) (TieRule, error) {
	switch s {
	case "", "incumbent":
		return IncumbentWinsTie, nil
	case "challenger":
		return ChallengerWinsTie, nil
	}
	return IncumbentWinsTie, fmt.Errorf("unknown dedup tie rule %q: %w", s, pipelineerrors.ErrInvalidInput)
}

// Deduplicator resolves duplicates in a single left-to-right pass.
type Deduplicator struct {
	Tie TieRule
}

// New returns a Deduplicator using IncumbentWinsTie.
func New() *Deduplicator { return &Deduplicator{Tie: IncumbentWinsTie} }

// Partition routes every record: critical and empty rows straight to
// skipped with their validation reasons, the rest through Deduplicate.
// Skipped is ordered by OriginalIndex.
func (d *Deduplicator) Partition(records []models.NormalizedRecord) models.DedupOutcome {
	var (
		candidates []models.NormalizedRecord
		excluded   []models.SkippedRecord
	)
	for _, rec := range records {
		if rec.Status.Importable() {
			candidates = append(candidates, rec)
			continue
		}
		excluded = append(excluded, models.SkippedRecord{Record: rec, Reasons: validationReasons(rec)})
	}

	out := d.Deduplicate(candidates)
	out.Skipped = append(excluded, out.Skipped...)
	sortSkipped(out.Skipped)
	return out
}

// Deduplicate partitions candidates, which must all be importable. Ready
// keeps first-seen order; Skipped is ordered by OriginalIndex.
//
// The registry maps each key to the slot of its representative in Ready.
// Replacing a representative rewrites the slot, so every key that already
// pointed at it sees the new record.
func (d *Deduplicator) Deduplicate(candidates []models.NormalizedRecord) models.DedupOutcome {
	log := logging.Default()

	var out models.DedupOutcome
	registry := make(map[matchKey]int)

	for _, c := range candidates {
		rec := c.Clone()
		keys := keysFor(rec)

		slot, kind, hit := lookup(registry, keys)
		if !hit {
			slot = len(out.Ready)
			out.Ready = append(out.Ready, rec)
			register(registry, keys, slot)
			continue
		}

		if kind.Tier() == 3 {
			rec.Status = rec.Status.AtLeast(models.StatusWarning)
			rec.Messages = append(rec.Messages, models.Message{
				Code:  models.CodeLowConfidenceMatch,
				Field: models.FieldName,
				Text:  fmt.Sprintf("Matched row %d by name only; check this is the same contact", out.Ready[slot].OriginalIndex+1),
			})
		}

		incumbent := out.Ready[slot]
		if d.candidateWins(incumbent, rec) {
			out.Ready[slot] = rec
			out.Skipped = append(out.Skipped, models.SkippedRecord{
				Record:  incumbent,
				Reasons: []models.Reason{replacedReason(kind, rec.OriginalIndex)},
			})
			log.Debug().Int("row", rec.OriginalIndex).Int("replaced", incumbent.OriginalIndex).Str("match", string(kind)).Msg("duplicate replaced representative")
		} else {
			out.Skipped = append(out.Skipped, models.SkippedRecord{
				Record:  rec,
				Reasons: []models.Reason{duplicateReason(kind, incumbent.OriginalIndex)},
			})
			log.Debug().Int("row", rec.OriginalIndex).Int("kept", incumbent.OriginalIndex).Str("match", string(kind)).Msg("duplicate skipped")
		}
		register(registry, keys, slot)
	}

	sortSkipped(out.Skipped)
	log.Info().Int("candidates", len(candidates)).Int("ready", len(out.Ready)).Int("duplicates", len(out.Skipped)).Msg("deduplication completed")
	return out
}

func (d *Deduplicator) candidateWins(incumbent, candidate models.NormalizedRecord) bool {
	ci, cc := incumbent.Completeness(), candidate.Completeness()
	if cc != ci {
		return cc > ci
	}
	switch d.Tie {
	case ChallengerWinsTie:
		return true
	default:
		return false
	}
}

func sortSkipped(skipped []models.SkippedRecord) {
	slices.SortStableFunc(skipped, func(a, b models.SkippedRecord) int {
		return cmp.Compare(a.Record.OriginalIndex, b.Record.OriginalIndex)
	})
}

// lookup walks the tiers in priority order and returns the first slot hit.
func lookup(registry map[matchKey]int, keys []matchKey) (int, models.MatchType, bool) {
	for _, tier := range tiers {
		for _, kind := range tier {
			for _, k := range keys {
				if k.kind != kind {
					continue
				}
				if slot, ok := registry[k]; ok {
					return slot, kind, true
				}
			}
		}
	}
	return 0, "", false
}

// register points keys at slot. Keys already owned by another slot keep
// their owner so earlier decisions never move.
func register(registry map[matchKey]int, keys []matchKey, slot int) {
	for _, k := range keys {
		if _, taken := registry[k]; !taken {
			registry[k] = slot
		}
	}
}

func duplicateReason(kind models.MatchType, winner int) models.Reason {
	return models.Reason{
		Code:        "duplicate_" + string(kind),
		Text:        fmt.Sprintf("Duplicate of row %d (matched by %s)", winner+1, matchLabel(kind)),
		MatchType:   kind,
		WinnerIndex: winner,
	}
}

func replacedReason(kind models.MatchType, winner int) models.Reason {
	return models.Reason{
		Code:        "duplicate_" + string(kind),
		Text:        fmt.Sprintf("Replaced by more complete row %d (matched by %s)", winner+1, matchLabel(kind)),
		MatchType:   kind,
		WinnerIndex: winner,
	}
}

func validationReasons(rec models.NormalizedRecord) []models.Reason {
	var reasons []models.Reason
	for _, m := range rec.Messages {
		switch m.Code {
		case models.CodeMissingName, models.CodeEmptyRow:
			reasons = append(reasons, models.Reason{Code: m.Code, Text: m.Text, WinnerIndex: -1})
		}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, models.Reason{Code: string(rec.Status), Text: "Row cannot be imported", WinnerIndex: -1})
	}
	return reasons
}

func matchLabel(kind models.MatchType) string {
	switch kind {
	case models.MatchVAT:
		return "VAT number"
	case models.MatchEmail:
		return "email"
	case models.MatchNamePhone:
		return "name and phone"
	case models.MatchNameLinkedIn:
		return "name and LinkedIn profile"
	case models.MatchName:
		return "name only"
	}
	return string(kind)
}
