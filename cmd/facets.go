package main

import (
	"fmt"
	"sort"
)

// facet types accepted in index configuration
const (
	facetTypeTerms            = "terms"
	facetTypeNumericHistogram = "numeric_histogram"
	facetTypeDateHistogram    = "date_histogram"
	facetTypeAvg              = "avg"
	facetTypeSum              = "sum"
)

const facetDefaultSize = 10
const builtinFacetModifier = "drop_empty"

// facetBucket is one value within a shaped facet, annotated with
// everything a portal frontend needs to render it as a filter toggle.
type facetBucket struct {
	Value                interface{} `json:"value"`
	Count                int         `json:"count"`
	FieldName            string      `json:"field_name"`
	Checked              bool        `json:"checked"`
	FilterType           string      `json:"filter_type,omitempty"`
	SearchFilterQueryKey string      `json:"search_filter_query_key,omitempty"`
	Datetime             string      `json:"datetime,omitempty"`
}

// portalFacet is a shaped facet in portal configuration order.  bucket
// facets carry Buckets; stat facets (avg/sum) carry a scalar Value and
// no buckets.
type portalFacet struct {
	Name       string        `json:"name"`
	FieldName  string        `json:"field_name"`
	Type       string        `json:"type"`
	UniqueName string        `json:"unique_name"`
	Size       int           `json:"size,omitempty"`
	Buckets    []facetBucket `json:"buckets"`
	Value      interface{}   `json:"value,omitempty"`
}

// prepareSearchFacets converts the index's configured facets into the
// definitions sent to the search service.  each definition gets a unique
// name derived from its position and field so results can be matched back
// to configuration unambiguously.
func prepareSearchFacets(facets []portalConfigFacet) ([]searchAPIFacet, error) {
	var defs []searchAPIFacet

	for idx, facet := range facets {
		if facet.FieldName == "" {
			return nil, fmt.Errorf("facet %d has no field_name", idx)
		}

		def := searchAPIFacet{
			Name:      facetUniqueName(idx, facet.FieldName),
			FieldName: facet.FieldName,
			Type:      facet.Type,
		}

		if def.Type == "" {
			def.Type = facetTypeTerms
		}

		switch def.Type {
		case facetTypeTerms:
			def.Size = facet.Size
			if def.Size == 0 {
				def.Size = facetDefaultSize
			}

		case facetTypeNumericHistogram:
			def.Size = facet.Size
			if def.Size == 0 {
				def.Size = facetDefaultSize
			}
			if facet.HistogramRange != nil {
				def.HistogramRange = &searchAPIHistogramRange{
					Low:  facet.HistogramRange.Low,
					High: facet.HistogramRange.High,
				}
			}

		case facetTypeDateHistogram:
			def.DateInterval = facet.DateInterval

		case facetTypeAvg, facetTypeSum:
			// stat facets take no size or range

		default:
			return nil, fmt.Errorf("facet %d (%s) has unrecognized type: [%s]", idx, facet.FieldName, def.Type)
		}

		defs = append(defs, def)
	}

	return defs, nil
}

func facetUniqueName(idx int, fieldName string) string {
	return fmt.Sprintf("facet_def_%d_%s", idx, fieldName)
}

// shapeFacets merges the search service's facet results back into portal
// configuration order, annotating each bucket with its field, filter type,
// filter query key, and whether the active filters already select it.
// configured facets with no matching result are dropped.
func (s *searchContext) shapeFacets(results []searchAPIFacetResult, filters []searchFilter) []portalFacet {
	facets := s.index.Facets

	byName := make(map[string]*searchAPIFacetResult)
	for i := range results {
		byName[results[i].Name] = &results[i]
	}

	checked := checkedFilterValues(filters)

	var shaped []portalFacet

	for idx, facet := range facets {
		uniqueName := facetUniqueName(idx, facet.FieldName)

		result := byName[uniqueName]
		if result == nil {
			continue
		}

		filterType := facetFilterType(facet)
		queryKey := ""
		if filterType != "" {
			queryKey = fmt.Sprintf("filter-%s.%s", filterType, facet.FieldName)
		}

		out := portalFacet{
			Name:       facet.Name,
			FieldName:  facet.FieldName,
			Type:       facet.Type,
			UniqueName: uniqueName,
			Size:       facet.Size,
		}

		if out.Name == "" {
			out.Name = facet.FieldName
		}

		if out.Type == "" {
			out.Type = facetTypeTerms
		}

		switch out.Type {
		case facetTypeAvg, facetTypeSum:
			out.Value = result.Value

		default:
			for _, bucket := range result.Buckets {
				value, serialized, isRange := shapeBucketValue(bucket.Value)

				shapedBucket := facetBucket{
					Value:                value,
					Count:                bucket.Count,
					FieldName:            facet.FieldName,
					Checked:              checked[facet.FieldName][serialized],
					FilterType:           filterType,
					SearchFilterQueryKey: queryKey,
				}

				if out.Type == facetTypeDateHistogram && isRange == false {
					if str, ok := value.(string); ok == true {
						shapedBucket.Datetime = str
					}
				}

				out.Buckets = append(out.Buckets, shapedBucket)
			}
		}

		shaped = append(shaped, out)
	}

	return applyFacetModifiers(s.client, s.facetModifierNames(), shaped)
}

// facetModifierNames resolves the modifier chain for this index.  a nil
// configuration gets the built-in default; an explicitly empty list
// disables modification entirely.
func (s *searchContext) facetModifierNames() []string {
	if s.index.FacetModifiers != nil {
		return s.index.FacetModifiers
	}

	if s.svc.config.FacetModifiers != nil {
		return s.svc.config.FacetModifiers
	}

	return []string{builtinFacetModifier}
}

// shapeBucketValue normalizes a raw bucket value and returns the value to
// expose, its serialized form for checked-state comparison, and whether it
// was a range.  range buckets arrive as from/to maps and are exposed in
// the same serialized form a filter would use.
func shapeBucketValue(raw interface{}) (interface{}, string, bool) {
	if m, ok := raw.(map[string]interface{}); ok == true {
		rv := rangeValue{From: normalizeRangeBound(m["from"]), To: normalizeRangeBound(m["to"])}
		serialized := serializeRange(rv)
		return serialized, serialized, true
	}

	switch val := raw.(type) {
	case string:
		return val, val, false
	default:
		return raw, rangeBoundString(raw), false
	}
}

// normalizeRangeBound collapses whole-valued floats to ints so the
// serialized form matches what a filter parsed from the URL produces.
func normalizeRangeBound(v interface{}) interface{} {
	if f, ok := v.(float64); ok {
		if f == float64(int(f)) {
			return int(f)
		}
	}

	return v
}

// checkedFilterValues indexes the active filters by field name, with each
// value in its serialized string form.  serialized comparison sidesteps
// numeric type differences between parsed filters and decoded results.
func checkedFilterValues(filters []searchFilter) map[string]map[string]bool {
	checked := make(map[string]map[string]bool)

	for _, filter := range filters {
		values := checked[filter.FieldName]
		if values == nil {
			values = make(map[string]bool)
			checked[filter.FieldName] = values
		}

		for _, value := range filter.Values {
			switch val := value.(type) {
			case rangeValue:
				values[serializeRange(val)] = true
			case string:
				values[val] = true
			default:
				values[rangeBoundString(val)] = true
			}
		}
	}

	return checked
}

// facetModifier transforms the full shaped facet list before it is
// returned to the client.
type facetModifier func([]portalFacet) []portalFacet

var facetModifierRegistry = map[string]facetModifier{
	"drop_empty": dropEmptyFacets,
	"reverse":    reverseFacets,
	"sort_terms": sortFacetTerms,
}

// validateFacetModifierNames rejects modifier names with no registry
// entry.  called at startup so a typo fails configuration, not a search.
func validateFacetModifierNames(names []string) error {
	for _, name := range names {
		if _, ok := facetModifierRegistry[name]; ok == false {
			return fmt.Errorf("unregistered facet modifier: [%s]", name)
		}
	}

	return nil
}

// applyFacetModifiers runs the configured modifier chain over the shaped
// facets.  a modifier that panics is logged and skipped, leaving its
// input untouched.
func applyFacetModifiers(c *clientContext, names []string, facets []portalFacet) []portalFacet {
	for _, name := range names {
		modifier := facetModifierRegistry[name]
		if modifier == nil {
			c.warn("unregistered facet modifier: [%s]", name)
			continue
		}

		facets = runFacetModifier(c, name, modifier, facets)
	}

	return facets
}

func runFacetModifier(c *clientContext, name string, modifier facetModifier, facets []portalFacet) (result []portalFacet) {
	result = facets

	defer func() {
		if r := recover(); r != nil {
			c.warn("facet modifier [%s] panicked: %v", name, r)
			result = facets
		}
	}()

	return modifier(facets)
}

func dropEmptyFacets(facets []portalFacet) []portalFacet {
	var kept []portalFacet

	for _, facet := range facets {
		switch facet.Type {
		case facetTypeAvg, facetTypeSum:
			if facet.Value == nil {
				continue
			}
		default:
			if len(facet.Buckets) == 0 {
				continue
			}
		}

		kept = append(kept, facet)
	}

	return kept
}

func reverseFacets(facets []portalFacet) []portalFacet {
	reversed := make([]portalFacet, 0, len(facets))

	for i := len(facets) - 1; i >= 0; i-- {
		reversed = append(reversed, facets[i])
	}

	return reversed
}

func sortFacetTerms(facets []portalFacet) []portalFacet {
	for i := range facets {
		if facets[i].Type != facetTypeTerms {
			continue
		}

		sort.Slice(facets[i].Buckets, func(a, b int) bool {
			av, aok := facets[i].Buckets[a].Value.(string)
			bv, bok := facets[i].Buckets[b].Value.(string)

			if aok == false || bok == false {
				return false
			}

			return av < bv
		})
	}

	return facets
}
