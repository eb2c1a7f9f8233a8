package sheet

import (
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

type Transform string

const (
	TransformTrim         Transform = "trim"
	TransformLowercase    Transform = "lowercase"
	TransformParseDate    Transform = "parseDate"
	TransformParseNumber  Transform = "parseNumber"
	TransformParseBoolean Transform = "parseBoolean"
	TransformEnumMap      Transform = "enumMap"
)

// ColumnMapping binds one source column to one target field. A non-empty
// StaticValue overrides the source column entirely.
type ColumnMapping struct {
	SourceColumn string            `json:"sourceColumn"`
	TargetField  string            `json:"targetField"`
	Transform    Transform         `json:"transform,omitempty"`
	StaticValue  string            `json:"staticValue,omitempty"`
	EnumMap      map[string]string `json:"enumMap,omitempty"`
}

const (
	scoreKeyExact      = 100
	scoreAliasExact    = 90
	scoreSubstring     = 70
	scoreAcceptMinimum = 50
)

// SuggestMappings proposes a source-column → target-field mapping. Fields are
// visited in catalog order and each claims the best-scoring unused column;
// there is no backtracking, so an earlier field keeps a column even when a
// later field would have matched it better. Unmatched fields stay unmapped
// and surface at validation time if required.
func SuggestMappings(sourceColumns []string, fields []FieldDefinition) []ColumnMapping {
	used := make([]bool, len(sourceColumns))
	mappings := make([]ColumnMapping, 0, len(fields))

	for _, field := range fields {
		bestIdx := -1
		bestScore := 0
		for i, column := range sourceColumns {
			if used[i] {
				continue
			}
			score := matchScore(column, field)
			if score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx < 0 || bestScore < scoreAcceptMinimum {
			continue
		}
		used[bestIdx] = true
		mappings = append(mappings, ColumnMapping{
			SourceColumn: sourceColumns[bestIdx],
			TargetField:  field.Key,
			Transform:    defaultTransform(field.Type),
		})
	}
	return mappings
}

func matchScore(column string, field FieldDefinition) int {
	n := normalize(column)
	if n == "" {
		return 0
	}
	if n == normalize(field.Key) {
		return scoreKeyExact
	}

	score := 0
	named := append([]string{field.Label}, field.Aliases...)
	for _, candidate := range named {
		c := normalize(candidate)
		if c != "" && n == c {
			score = scoreAliasExact
			break
		}
	}

	// Substring only ever lifts a weak candidate, never degrades a strong one.
	if score < scoreSubstring {
		for _, candidate := range append([]string{field.Key}, named...) {
			c := normalize(candidate)
			if c == "" {
				continue
			}
			if strings.Contains(n, c) || strings.Contains(c, n) {
				score = scoreSubstring
				break
			}
		}
	}
	return score
}

// normalize folds case and strips everything that is not a letter or digit,
// so "Company Name", "company_name" and "CompanyName" compare equal.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func defaultTransform(t FieldType) Transform {
	switch t {
	case FieldTypeEmail:
		return TransformLowercase
	case FieldTypeDatetime:
		return TransformParseDate
	case FieldTypeNumber:
		return TransformParseNumber
	case FieldTypeBoolean:
		return TransformParseBoolean
	}
	return ""
}

// SuggestFields ranks catalog fields by fuzzy similarity to an unmapped
// column name, for "did you mean" hints on the mapping screen.
func SuggestFields(column string, fields []FieldDefinition, limit int) []string {
	targets := make([]string, 0, len(fields))
	for _, f := range fields {
		targets = append(targets, f.Key)
	}
	ranks := fuzzy.RankFindNormalizedFold(normalize(column), targets)
	sort.Sort(ranks)
	keys := make([]string, 0, limit)
	for _, r := range ranks {
		if len(keys) == limit {
			break
		}
		keys = append(keys, r.Target)
	}
	return keys
}

// RowMapper applies a confirmed mapping to raw rows. Column positions are
// resolved once so per-row application is just indexed reads.
type RowMapper struct {
	mappings []ColumnMapping
	indexes  []int
}

func NewRowMapper(columns []string, mappings []ColumnMapping) *RowMapper {
	position := make(map[string]int, len(columns))
	for i, c := range columns {
		position[c] = i
	}
	indexes := make([]int, len(mappings))
	for i, m := range mappings {
		idx, ok := position[m.SourceColumn]
		if !ok {
			idx = -1
		}
		indexes[i] = idx
	}
	return &RowMapper{mappings: mappings, indexes: indexes}
}

// Map produces the field → value record for one raw row. Missing source
// columns read as empty strings.
func (rm *RowMapper) Map(row []string) map[string]string {
	out := make(map[string]string, len(rm.mappings))
	for i, m := range rm.mappings {
		value := m.StaticValue
		if value == "" {
			if idx := rm.indexes[i]; idx >= 0 && idx < len(row) {
				value = row[idx]
			}
		}
		out[m.TargetField] = m.Apply(value)
	}
	return out
}

// ApplyMapping is the one-shot form of RowMapper for callers mapping a
// single row.
func ApplyMapping(columns []string, row []string, mappings []ColumnMapping) map[string]string {
	return NewRowMapper(columns, mappings).Map(row)
}
