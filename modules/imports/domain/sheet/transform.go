package sheet

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Apply runs the mapping's transform over a raw cell value. Every transform
// is total: unparseable input degrades to pass-through text and the failure
// is left for validation to classify.
func (m ColumnMapping) Apply(value string) string {
	switch m.Transform {
	case TransformTrim:
		return strings.TrimSpace(value)
	case TransformLowercase:
		return strings.ToLower(strings.TrimSpace(value))
	case TransformParseDate:
		return ParseDate(value)
	case TransformParseNumber:
		return ParseNumber(value)
	case TransformParseBoolean:
		return ParseBoolean(value)
	case TransformEnumMap:
		return MapEnum(value, m.EnumMap)
	}
	return value
}

var isoFragmentRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2})?(?:Z|[+-]\d{2}:?\d{2})?)?`)

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

var looseLayouts = []string{
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

var naturalParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseDateValue interprets s as a point in time: an embedded ISO-8601
// fragment wins, then a fixed layout list, then natural language ("next
// friday") via the when parser.
func ParseDateValue(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if fragment := isoFragmentRe.FindString(s); fragment != "" {
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, fragment); err == nil {
				return t, true
			}
		}
	}

	for _, layout := range looseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	if r, err := naturalParser.Parse(s, time.Now()); err == nil && r != nil {
		return r.Time, true
	}

	return time.Time{}, false
}

// ParseDate normalizes a date-ish cell to ISO form, or returns the trimmed
// original when nothing parses.
func ParseDate(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	t, ok := ParseDateValue(trimmed)
	if !ok {
		return trimmed
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

// ParseNumber strips thousands separators and re-renders the value as a
// plain float string, or returns the trimmed original when it is not a
// number.
func ParseNumber(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	cleaned := strings.ReplaceAll(trimmed, ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return trimmed
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseBoolean maps common yes/no spellings to "true"/"false"; anything
// unrecognized passes through lowercased.
func ParseBoolean(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "true", "yes", "1", "y", "on":
		return "true"
	case "false", "no", "0", "n", "off", "":
		return "false"
	}
	return v
}

// MapEnum looks the trimmed value up case-insensitively in the mapping's
// enum table, passing unknown values through untouched.
func MapEnum(value string, enumMap map[string]string) string {
	trimmed := strings.TrimSpace(value)
	if mapped, ok := enumMap[trimmed]; ok {
		return mapped
	}
	for k, v := range enumMap {
		if strings.EqualFold(k, trimmed) {
			return v
		}
	}
	return trimmed
}
