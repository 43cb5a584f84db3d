package models

import "strings"

// ColumnSpec describes one recognized column: its semantic kind, whether a
// dataset must carry it, and whether it is a count that can never be negative.
type ColumnSpec struct {
	Name      string
	Kind      ColumnKind
	Required  bool
	Countable bool
}

// Schema is the explicit descriptor of recognized columns. The validator and
// every analytics method consult it instead of scattering ad hoc column
// presence checks through the code.
type Schema struct {
	specs map[string]ColumnSpec
	order []string
}

// Column name keywords used to classify columns the schema does not list
// explicitly. numericKeywords marks a column as coercible to numeric;
// countKeywords additionally marks it as a non-negative count.
var (
	numericKeywords = []string{"cases", "deaths", "vaccinations", "vaccinated", "tests", "rate", "total", "new", "patients", "population"}
	countKeywords   = []string{"cases", "deaths", "tests", "vaccinations", "vaccinated", "patients"}
)

// DefaultSchema returns the schema for OWID-shaped COVID-19 data. Only date
// and location are required; every metric column is optional because column
// sets vary by source.
func DefaultSchema() *Schema {
	s := &Schema{specs: make(map[string]ColumnSpec)}
	add := func(spec ColumnSpec) {
		s.specs[spec.Name] = spec
		s.order = append(s.order, spec.Name)
	}

	add(ColumnSpec{Name: ColDate, Kind: KindDate, Required: true})
	add(ColumnSpec{Name: ColLocation, Kind: KindText, Required: true})

	for _, name := range []string{
		"total_cases", "new_cases",
		"total_deaths", "new_deaths",
		"total_cases_per_million", "new_cases_per_million",
		"total_deaths_per_million", "new_deaths_per_million",
		"people_vaccinated", "people_fully_vaccinated",
		"total_vaccinations", "new_vaccinations",
		"total_tests", "new_tests",
		"hosp_patients", "icu_patients",
	} {
		add(ColumnSpec{Name: name, Kind: KindNumeric, Countable: true})
	}
	add(ColumnSpec{Name: "population", Kind: KindNumeric})
	return s
}

// Spec returns the descriptor for a column name. Unlisted names fall back to
// the keyword heuristics so that sources with extra columns still clean
// sensibly.
func (s *Schema) Spec(name string) ColumnSpec {
	if spec, ok := s.specs[name]; ok {
		return spec
	}
	spec := ColumnSpec{Name: name, Kind: KindText}
	if containsAny(name, numericKeywords) {
		spec.Kind = KindNumeric
	}
	if containsAny(name, countKeywords) {
		spec.Countable = true
	}
	return spec
}

// IsRecognized reports whether the schema lists the column explicitly.
func (s *Schema) IsRecognized(name string) bool {
	_, ok := s.specs[name]
	return ok
}

// RequiredColumns returns the required column names in declaration order.
func (s *Schema) RequiredColumns() []string {
	var out []string
	for _, name := range s.order {
		if s.specs[name].Required {
			out = append(out, name)
		}
	}
	return out
}

// NumericColumns returns every recognized numeric column name in order.
func (s *Schema) NumericColumns() []string {
	var out []string
	for _, name := range s.order {
		if s.specs[name].Kind == KindNumeric {
			out = append(out, name)
		}
	}
	return out
}

// IsNumericName reports whether a column should be coerced to numeric,
// either by explicit spec or by keyword.
func (s *Schema) IsNumericName(name string) bool {
	return s.Spec(name).Kind == KindNumeric
}

// IsCountable reports whether a column is a count that must be >= 0.
func (s *Schema) IsCountable(name string) bool {
	return s.Spec(name).Countable
}

func containsAny(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
