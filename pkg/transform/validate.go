package transform

import (
	"fmt"

	"github.com/civicworks/lake311/pkg/requests"
)

// SchemaError is a fatal post-transform validation failure. It aborts the
// publish step entirely; a previously published dataset is left untouched.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string {
	return "schema validation failed: " + e.Detail
}

// Validate enforces the clean-dataset invariants before publishing:
// unique_key uniqueness and non-negative response hours.
func Validate(records []requests.CleanRecord) error {
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if seen[r.UniqueKey] {
			return &SchemaError{Detail: fmt.Sprintf("unique_key %q has duplicates", r.UniqueKey)}
		}
		seen[r.UniqueKey] = true

		if r.ResponseHours != nil && *r.ResponseHours < 0 {
			return &SchemaError{Detail: fmt.Sprintf("negative response_hours %.2f for unique_key %q", *r.ResponseHours, r.UniqueKey)}
		}
	}
	return nil
}
