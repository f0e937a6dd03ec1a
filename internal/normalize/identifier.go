package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"crmimport/internal/models"
)

// DomesticVATPrefix is the country prefix assumed for bare VAT numbers.
const DomesticVATPrefix = "IT"

var (
	vatStripRe  = regexp.MustCompile(`[^0-9A-Za-z]+`)
	vatFormatRe = regexp.MustCompile(`^([A-Z]{2})?([0-9]{11})$`)
)

// VATNumber strips punctuation and whitespace, uppercases the country
// prefix and requires exactly 11 digits. Invalid values are cleared.
func VATNumber(raw string) (string, *models.Message) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	v := strings.ToUpper(vatStripRe.ReplaceAllString(raw, ""))
	if !vatFormatRe.MatchString(v) {
		return "", &models.Message{
			Code:  models.CodeInvalidVAT,
			Field: models.FieldVATNumber,
			Text:  fmt.Sprintf("VAT number %q is not valid and was cleared", strings.TrimSpace(raw)),
		}
	}
	return v, nil
}

// VATKey is the match key of a normalized VAT number: the domestic prefix
// is dropped so "IT12345678901" and "12345678901" compare equal.
func VATKey(v string) string {
	m := vatFormatRe.FindStringSubmatch(v)
	if m == nil {
		return ""
	}
	if m[1] == "" || m[1] == DomesticVATPrefix {
		return m[2]
	}
	return m[1] + m[2]
}
