package main

import (
	"fmt"
	"log"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// filter types accepted in query parameters.  keys show up in the URL, the
// corresponding values are what the search service accepts.
const (
	filterMatchAll = "match-all"
	filterMatchAny = "match-any"
	filterRange    = "range"
	filterYear     = "year"
	filterMonth    = "month"
	filterDay      = "day"
	filterHour     = "hour"
	filterMinute   = "minute"
	filterSecond   = "second"
)

var filterTypes = map[string]string{
	filterMatchAll: "match_all",
	filterMatchAny: "match_any",
	filterRange:    "range",
	filterYear:     "range",
	filterMonth:    "range",
	filterDay:      "range",
	filterHour:     "range",
	filterMinute:   "range",
	filterSecond:   "range",
}

var dateFilterTypes = map[string]bool{
	filterYear:   true,
	filterMonth:  true,
	filterDay:    true,
	filterHour:   true,
	filterMinute: true,
	filterSecond: true,
}

// precompiled pattern for detecting the filter type in a query key.
// unrecognized type segments simply fail to match and the key is skipped,
// which keeps unrelated query parameters from breaking a search.
var filterQueryPattern = regexp.MustCompile(
	`^filter(-(` + strings.Join([]string{
		filterMatchAll, filterMatchAny, filterRange,
		filterYear, filterMonth, filterDay,
		filterHour, filterMinute, filterSecond,
	}, "|") + `))?\.(.+)$`)

const rangeSeparator = "--"
const rangeUnbounded = "*"
const dateBoundFormat = "2006-01-02 15:04:05"

// rangeValue is one "from"/"to" pair within a range filter.  either bound
// may be the literal "*" for unbounded, a number, or a datetime string.
type rangeValue struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// searchFilter is one filter constraint in the form the search service
// accepts.  Values holds strings for term filters and rangeValue entries
// for range filters.
type searchFilter struct {
	FieldName string        `json:"field_name"`
	Type      string        `json:"type"`
	Values    []interface{} `json:"values"`
}

// parseQueryFilters builds search filters from the request's query
// parameters.  keys look like "filter.<field>" or "filter-<type>.<field>";
// the field name may itself contain dots.  repeated keys contribute all of
// their values, in order.  keys that do not match the grammar are ignored.
func parseQueryFilters(values url.Values, defaultType string) []searchFilter {
	if defaultType == "" {
		defaultType = filterMatchAll
	}

	// iterate keys in a fixed order so output is deterministic
	var keys []string
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var filters []searchFilter

	for _, key := range keys {
		m := filterQueryPattern.FindStringSubmatch(key)
		if m == nil {
			continue
		}

		filterType := m[2]
		if filterType == "" {
			filterType = defaultType
		}

		fieldName := m[3]

		parsed := parseFilterValues(nonemptyValues(values[key]), filterType)
		if len(parsed) == 0 {
			continue
		}

		filters = append(filters, searchFilter{
			FieldName: fieldName,
			Type:      filterTypes[filterType],
			Values:    parsed,
		})
	}

	return filters
}

// parseFilterValues converts raw query parameter values for the given
// filter type.  term filter values pass through verbatim; range and date
// values are parsed, and literals that fail to parse are skipped rather
// than failing the whole request.
func parseFilterValues(values []string, filterType string) []interface{} {
	var parsed []interface{}

	for _, value := range values {
		switch {
		case dateFilterTypes[filterType]:
			rv, err := getDateRangeForDate(value, filterType)
			if err != nil {
				log.Printf("skipping filter value [%s]: %s", value, err.Error())
				continue
			}
			parsed = append(parsed, rv)

		case filterType == filterRange:
			rv, err := deserializeRange(value)
			if err != nil {
				log.Printf("skipping filter value [%s]: %s", value, err.Error())
				continue
			}
			parsed = append(parsed, rv)

		default:
			parsed = append(parsed, value)
		}
	}

	return parsed
}

// getDateRangeForDate bounds the given date literal by the enclosing
// interval.  year/month/day intervals produce half-open calendar ranges;
// hour and minute are bounded inclusively within themselves, and second is
// widened by one second on each side (preserved as observed behavior).
func getDateRangeForDate(date string, interval string) (rangeValue, error) {
	t, err := parseDateLiteral(date)
	if err != nil {
		return rangeValue{}, err
	}

	var from, to time.Time

	switch interval {
	case filterYear:
		from = time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(1, 0, 0)
	case filterMonth:
		from = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 1, 0)
	case filterDay:
		from = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 0, 1)
	case filterHour:
		from = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
		to = from.Add(59*time.Minute + 59*time.Second)
	case filterMinute:
		from = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
		to = from.Add(59 * time.Second)
	case filterSecond:
		from = t.Add(-1 * time.Second)
		to = t.Add(1 * time.Second)
	default:
		return rangeValue{}, fmt.Errorf("unsupported date interval: [%s]", interval)
	}

	return rangeValue{
		From: from.Format(dateBoundFormat),
		To:   to.Format(dateBoundFormat),
	}, nil
}

func parseDateLiteral(date string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"2006-01",
		"2006",
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t, nil
		}
	}

	return time.Time{}, &invalidRangeFilterError{value: date, reason: "unable to parse date"}
}

// deserializeRange parses "<low>--<high>".  either bound may be "*" for
// unbounded; numeric bounds are typed as float if they contain a decimal
// point, otherwise integer.  a missing separator or an empty bound is
// rejected, never silently defaulted.
func deserializeRange(s string) (rangeValue, error) {
	if strings.Contains(s, rangeSeparator) == false {
		return rangeValue{}, &invalidRangeFilterError{value: s, reason: "missing separator"}
	}

	parts := strings.SplitN(s, rangeSeparator, 2)

	if parts[0] == "" {
		return rangeValue{}, &invalidRangeFilterError{value: s, reason: "missing low bound"}
	}

	if parts[1] == "" {
		return rangeValue{}, &invalidRangeFilterError{value: s, reason: "missing high bound"}
	}

	return rangeValue{
		From: parseRangeBound(parts[0]),
		To:   parseRangeBound(parts[1]),
	}, nil
}

func parseRangeBound(s string) interface{} {
	if s == rangeUnbounded {
		return s
	}

	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	} else {
		if i, err := strconv.Atoi(s); err == nil {
			return i
		}
	}

	// non-numeric bounds (e.g. datetimes) pass through as strings
	return s
}

// serializeRange is the exact inverse of deserializeRange.
func serializeRange(r rangeValue) string {
	return fmt.Sprintf("%s%s%s", rangeBoundString(r.From), rangeSeparator, rangeBoundString(r.To))
}

func rangeBoundString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		s := strconv.FormatFloat(val, 'f', -1, 64)
		if strings.ContainsAny(s, ".eE") == false {
			// keep float typing across a serialize/deserialize round trip
			s += ".0"
		}
		return s
	default:
		return fmt.Sprintf("%v", val)
	}
}

// facetFilterType resolves the filter type the portal frontend should use
// to filter on the given facet.  stat facets (avg/sum) are not filterable
// and resolve to the empty string; callers must not treat that as an error.
func facetFilterType(facet portalConfigFacet) string {
	switch facet.Type {
	case "", facetTypeTerms:
		if facet.FilterType != "" {
			return facet.FilterType
		}
		return filterMatchAll

	case facetTypeNumericHistogram:
		return filterRange

	case facetTypeDateHistogram:
		return facet.DateInterval

	case facetTypeAvg, facetTypeSum:
		return ""

	default:
		log.Printf("unrecognized facet type: [%s]", facet.Type)
		return ""
	}
}
