package measure

import "fmt"

// AutoSource says what an auto-generated column is filled with.
type AutoSource string

const (
	SourceTimestamp AutoSource = "timestamp"
	SourceOperator  AutoSource = "operator"
)

// AutoColumn is one required column the Row Writer creates on demand.
// The list is ordered: missing columns are created in this order.
type AutoColumn struct {
	Name   string     `yaml:"name" json:"name" validate:"required"`
	Source AutoSource `yaml:"source" json:"source" validate:"oneof=timestamp operator"`
}

// DefaultAutoColumns is the capture timestamp followed by the operator id.
func DefaultAutoColumns() []AutoColumn {
	return []AutoColumn{
		{Name: "Zeit", Source: SourceTimestamp},
		{Name: "Mitarbeiter", Source: SourceOperator},
	}
}

// AutoColumnNames returns the names in order.
func AutoColumnNames(cols []AutoColumn) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// CheckAutoColumns rejects empty or repeated names and unknown sources.
func CheckAutoColumns(cols []AutoColumn) error {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if c.Name == "" {
			return fmt.Errorf("auto column with empty name")
		}
		if seen[c.Name] {
			return fmt.Errorf("auto column %q listed twice", c.Name)
		}
		seen[c.Name] = true
		if c.Source != SourceTimestamp && c.Source != SourceOperator {
			return fmt.Errorf("auto column %q: unknown source %q", c.Name, c.Source)
		}
	}
	return nil
}
