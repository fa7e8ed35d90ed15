package measure

// validation.go applies the Decimal Normalizer across one record.
//
// Every field is evaluated; validation never stops at the first failure so
// a review screen can show the whole picture. Empty fields produce warnings,
// which never block submission. Unparseable fields produce errors, which do.

import (
	"sort"
	"strings"
)

// Validate checks every header/raw pair of a measurement record.
// Headers are visited in sorted order so the warning and error lists are
// stable; the outcome for each header does not depend on that order.
func Validate(fields map[string]string) ValidationResult {
	result := ValidationResult{Normalized: make(map[string]*float64, len(fields))}

	headers := make([]string, 0, len(fields))
	for h := range fields {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	for _, header := range headers {
		raw := strings.TrimSpace(fields[header])
		if raw == "" {
			issue := &FieldError{Header: header, Raw: raw, Err: ErrEmpty}
			result.Warnings = append(result.Warnings, issue.Error())
			result.Issues = append(result.Issues, FieldIssue{Header: header, Raw: raw, Err: ErrEmpty})
			result.Normalized[header] = nil
			continue
		}

		value, err := Parse(raw)
		if err != nil {
			issue := &FieldError{Header: header, Raw: raw, Err: ErrNotNumeric}
			result.Errors = append(result.Errors, issue.Error())
			result.Issues = append(result.Issues, FieldIssue{Header: header, Raw: raw, Err: ErrNotNumeric})
			result.Normalized[header] = nil
			continue
		}
		result.Normalized[header] = &value
	}

	return result
}
