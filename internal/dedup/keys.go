package dedup

import (
	"crmimport/internal/models"
	"crmimport/internal/normalize"
	"crmimport/internal/textnorm"
)

// matchKey is one registry key a record can produce.
type matchKey struct {
	kind  models.MatchType
	value string
}

func (k matchKey) String() string { return string(k.kind) + ":" + k.value }

// tiers groups match types by confidence, highest first. Lookups walk the
// tiers in order and stop at the first hit.
var tiers = [][]models.MatchType{
	{models.MatchVAT, models.MatchEmail},
	{models.MatchNamePhone, models.MatchNameLinkedIn},
	{models.MatchName},
}

// keysFor returns every key rec can produce, in priority order.
func keysFor(rec models.NormalizedRecord) []matchKey {
	var keys []matchKey
	for _, tier := range tiers {
		for _, kind := range tier {
			if v := keyValue(rec, kind); v != "" {
				keys = append(keys, matchKey{kind: kind, value: v})
			}
		}
	}
	return keys
}

func keyValue(rec models.NormalizedRecord, kind models.MatchType) string {
	name := textnorm.NameKey(rec.Value(models.FieldName))
	switch kind {
	case models.MatchVAT:
		return normalize.VATKey(rec.Value(models.FieldVATNumber))
	case models.MatchEmail:
		if e := rec.Value(models.FieldEmail); normalize.ValidEmail(e) {
			return e
		}
	case models.MatchNamePhone:
		phone := textnorm.Digits(rec.Value(models.FieldPhone))
		if name != "" && len(phone) >= 6 {
			return name + "|" + phone
		}
	case models.MatchNameLinkedIn:
		profile := textnorm.URLKey(rec.Value(models.FieldLinkedIn))
		if name != "" && profile != "" {
			return name + "|" + profile
		}
	case models.MatchName:
		return textnorm.BareNameKey(rec.Value(models.FieldName))
	}
	return ""
}
