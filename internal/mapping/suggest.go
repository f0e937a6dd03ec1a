package mapping

import (
	"strings"

	"crmimport/internal/models"
	"crmimport/internal/textnorm"
)

// Required fields must be mapped before the pipeline leaves the mapping stage.
var Required = []models.Field{models.FieldName}

// target is a slot the heuristics can fill. The name field owns three:
// the full column and the two halves of split mode.
type target string

const (
	targetNameFull  target = "name"
	targetNameFirst target = "name.first"
	targetNameLast  target = "name.last"
)

// synonymTable lists, per target and in priority order, the compact forms
// (see textnorm.Compact) of headers that select it. Targets are evaluated in
// table order, so when one header fits several targets the earlier target
// wins.
var synonymTable = []struct {
	target   target
	synonyms []string
}{
	{targetNameFull, []string{"fullname", "name", "nominativo", "nomecompleto", "nomecognome", "nomeecognome", "contactname", "investorname", "denominazione"}},
	{targetNameFirst, []string{"firstname", "first", "givenname", "forename", "nome"}},
	{targetNameLast, []string{"lastname", "last", "surname", "familyname", "cognome"}},
	{target(models.FieldEmail), []string{"email", "emailaddress", "mail", "indirizzoemail", "posta", "postaelettronica", "pec"}},
	{target(models.FieldPhone), []string{"phone", "phonenumber", "telephone", "tel", "telefono", "mobile", "cellulare", "cell", "cellphone"}},
	{target(models.FieldCompany), []string{"company", "companyname", "organization", "organisation", "azienda", "nomeazienda", "societa", "ragionesociale", "ditta", "firm", "legalname"}},
	{target(models.FieldVATNumber), []string{"vatnumber", "vat", "partitaiva", "piva", "vatid", "vatcode", "taxid", "ustid"}},
	{target(models.FieldLinkedIn), []string{"linkedin", "linkedinurl", "linkedinprofile", "profilolinkedin"}},
	{target(models.FieldWebsite), []string{"website", "web", "sitoweb", "sito", "homepage", "url", "site"}},
	{target(models.FieldRole), []string{"role", "jobtitle", "title", "position", "ruolo", "qualifica", "carica"}},
	{target(models.FieldCity), []string{"city", "citta", "town", "comune", "localita"}},
	{target(models.FieldCountry), []string{"country", "nazione", "paese", "stato"}},
	{target(models.FieldInvestorType), []string{"investortype", "tipoinvestitore", "investorcategory", "type", "tipo", "category", "categoria"}},
}

// notesSynonyms select every column aggregated into notes.
var notesSynonyms = []string{"notes", "note", "comments", "comment", "commenti", "remarks", "description", "descrizione", "memo"}

// minSubstringLen keeps short synonyms like "tel" out of containment
// matching, where they would hit unrelated headers.
const minSubstringLen = 4

// Suggest infers a mapping from headers. It never fails: any field it
// cannot place is left unmapped.
//
// Matching runs in two passes. The exact pass compares the compact form of
// each header with each synonym; the containment pass then looks for
// synonyms inside the remaining headers. Within a pass targets are visited
// in synonymTable order, synonyms in priority order and headers in file
// order, and a header claimed by an earlier target is never reconsidered.
func Suggest(headers []string) FieldMapping {
	compact := make([]string, len(headers))
	for i, h := range headers {
		compact[i] = textnorm.Compact(h)
	}

	claimed := make(map[int]bool, len(headers))
	chosen := make(map[target]int)

	match := func(exact bool) {
		for _, entry := range synonymTable {
			if _, done := chosen[entry.target]; done {
				continue
			}
			if conflictsWithName(chosen, entry.target) {
				continue
			}
		synonyms:
			for _, syn := range entry.synonyms {
				if !exact && len(syn) < minSubstringLen {
					continue
				}
				for i, c := range compact {
					if claimed[i] || c == "" {
						continue
					}
					if c == syn || (!exact && strings.Contains(c, syn)) {
						chosen[entry.target] = i
						claimed[i] = true
						break synonyms
					}
				}
			}
		}
	}
	match(true)
	match(false)

	m := New()
	if i, ok := chosen[targetNameFull]; ok {
		m.Columns[models.FieldName] = headers[i]
	} else if first, last := index(chosen, targetNameFirst), index(chosen, targetNameLast); first >= 0 || last >= 0 {
		m.NameMode = NameModeSplit
		if first >= 0 {
			m.FirstName = headers[first]
		}
		if last >= 0 {
			m.LastName = headers[last]
		}
	}

	for _, entry := range synonymTable {
		if isNameHalf(entry.target) || entry.target == targetNameFull {
			continue
		}
		if i, ok := chosen[entry.target]; ok {
			m.Columns[models.Field(entry.target)] = headers[i]
		}
	}

	for i, c := range compact {
		if claimed[i] || c == "" {
			continue
		}
		for _, syn := range notesSynonyms {
			if c == syn || strings.Contains(c, syn) {
				m.Notes = append(m.Notes, headers[i])
				break
			}
		}
	}

	return m
}

// Reconcile re-runs Suggest for headers and then re-applies every field
// the user set by hand in current, so explicit choices always win.
func Reconcile(headers []string, current FieldMapping) FieldMapping {
	next := Suggest(headers)
	for field, manual := range current.Overridden {
		if !manual {
			continue
		}
		next.Overridden[field] = true
		switch field {
		case models.FieldName:
			next.switchMode(current.NameMode)
			if current.NameMode == NameModeSplit {
				next.FirstName, next.LastName = current.FirstName, current.LastName
			} else if c := current.Columns[models.FieldName]; c != "" {
				next.Columns[models.FieldName] = c
			} else {
				delete(next.Columns, models.FieldName)
			}
		case models.FieldNotes:
			next.Notes = append([]string(nil), current.Notes...)
		default:
			if c := current.Columns[field]; c != "" {
				next.Columns[field] = c
			} else {
				delete(next.Columns, field)
			}
		}
	}
	return next
}

// conflictsWithName keeps the two name modes exclusive: once a full column
// is chosen the halves are not looked for, and once either half is chosen
// no full column is.
func conflictsWithName(chosen map[target]int, t target) bool {
	switch {
	case isNameHalf(t):
		_, full := chosen[targetNameFull]
		return full
	case t == targetNameFull:
		return index(chosen, targetNameFirst) >= 0 || index(chosen, targetNameLast) >= 0
	}
	return false
}

func isNameHalf(t target) bool {
	return t == targetNameFirst || t == targetNameLast
}

func index(chosen map[target]int, t target) int {
	if i, ok := chosen[t]; ok {
		return i
	}
	return -1
}
