package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSearchContext(index *portalConfigIndex) *searchContext {
	return &searchContext{
		svc: &portalContext{
			config: &portalConfig{
				Search: portalConfigSearch{ResultsPerPage: 10, MaxPages: 10},
			},
		},
		client: &clientContext{},
		index:  index,
	}
}

func TestPrepareSearchFacets(t *testing.T) {
	facets := []portalConfigFacet{
		{FieldName: "tags"},
		{FieldName: "depth", Type: "numeric_histogram", Size: 20, HistogramRange: &portalConfigHistogramRange{Low: 0, High: 1000}},
		{FieldName: "pub_date", Type: "date_histogram", DateInterval: "year"},
		{FieldName: "score", Type: "avg"},
	}

	defs, err := prepareSearchFacets(facets)
	require.NoError(t, err)
	require.Len(t, defs, 4)

	assert.Equal(t, "facet_def_0_tags", defs[0].Name)
	assert.Equal(t, "terms", defs[0].Type)
	assert.Equal(t, 10, defs[0].Size)

	assert.Equal(t, "facet_def_1_depth", defs[1].Name)
	assert.Equal(t, 20, defs[1].Size)
	require.NotNil(t, defs[1].HistogramRange)
	assert.Equal(t, float64(1000), defs[1].HistogramRange.High)

	assert.Equal(t, "facet_def_2_pub_date", defs[2].Name)
	assert.Equal(t, "year", defs[2].DateInterval)

	assert.Equal(t, "facet_def_3_score", defs[3].Name)
	assert.Equal(t, 0, defs[3].Size)
}

func TestPrepareSearchFacetsErrors(t *testing.T) {
	_, err := prepareSearchFacets([]portalConfigFacet{{Name: "No Field"}})
	assert.Error(t, err)

	_, err = prepareSearchFacets([]portalConfigFacet{{FieldName: "tags", Type: "cardinality"}})
	assert.Error(t, err)
}

func TestShapeFacetsTermsChecked(t *testing.T) {
	index := &portalConfigIndex{
		Facets: []portalConfigFacet{{FieldName: "tags"}},
	}

	s := testSearchContext(index)

	results := []searchAPIFacetResult{
		{Name: "facet_def_0_tags", Buckets: []searchAPIBucket{
			{Value: "glaciers", Count: 10},
			{Value: "satellites", Count: 3},
		}},
	}

	filters := []searchFilter{
		{FieldName: "tags", Type: "match_all", Values: []interface{}{"glaciers"}},
	}

	shaped := s.shapeFacets(results, filters)
	require.Len(t, shaped, 1)

	facet := shaped[0]
	assert.Equal(t, "tags", facet.Name)
	assert.Equal(t, "facet_def_0_tags", facet.UniqueName)
	require.Len(t, facet.Buckets, 2)

	assert.Equal(t, "glaciers", facet.Buckets[0].Value)
	assert.True(t, facet.Buckets[0].Checked)
	assert.Equal(t, "tags", facet.Buckets[0].FieldName)
	assert.Equal(t, "match-all", facet.Buckets[0].FilterType)
	assert.Equal(t, "filter-match-all.tags", facet.Buckets[0].SearchFilterQueryKey)

	assert.False(t, facet.Buckets[1].Checked)
}

func TestShapeFacetsDateRangeChecked(t *testing.T) {
	index := &portalConfigIndex{
		Facets: []portalConfigFacet{
			{FieldName: "pub_date", Type: "date_histogram", DateInterval: "year"},
		},
	}

	s := testSearchContext(index)

	results := []searchAPIFacetResult{
		{Name: "facet_def_0_pub_date", Buckets: []searchAPIBucket{
			{Value: map[string]interface{}{"from": "2020-01-01 00:00:00", "to": "2021-01-01 00:00:00"}, Count: 7},
			{Value: map[string]interface{}{"from": "2021-01-01 00:00:00", "to": "2022-01-01 00:00:00"}, Count: 2},
		}},
	}

	// the same filter a frontend would round-trip through the query string
	filters := parseFiltersFromQuery(t, "filter-year.pub_date", "2020")

	shaped := s.shapeFacets(results, filters)
	require.Len(t, shaped, 1)
	require.Len(t, shaped[0].Buckets, 2)

	assert.Equal(t, "2020-01-01 00:00:00--2021-01-01 00:00:00", shaped[0].Buckets[0].Value)
	assert.True(t, shaped[0].Buckets[0].Checked)
	assert.Equal(t, "filter-year.pub_date", shaped[0].Buckets[0].SearchFilterQueryKey)

	assert.False(t, shaped[0].Buckets[1].Checked)
}

func TestShapeFacetsNumericRangeChecked(t *testing.T) {
	index := &portalConfigIndex{
		Facets: []portalConfigFacet{
			{FieldName: "depth", Type: "numeric_histogram"},
		},
	}

	s := testSearchContext(index)

	// remote values decode as floats even when whole
	results := []searchAPIFacetResult{
		{Name: "facet_def_0_depth", Buckets: []searchAPIBucket{
			{Value: map[string]interface{}{"from": float64(0), "to": float64(100)}, Count: 4},
		}},
	}

	filters := parseFiltersFromQuery(t, "filter-range.depth", "0--100")

	shaped := s.shapeFacets(results, filters)
	require.Len(t, shaped, 1)
	require.Len(t, shaped[0].Buckets, 1)

	assert.Equal(t, "0--100", shaped[0].Buckets[0].Value)
	assert.True(t, shaped[0].Buckets[0].Checked)
	assert.Equal(t, "range", shaped[0].Buckets[0].FilterType)
}

func TestShapeFacetsStatValue(t *testing.T) {
	index := &portalConfigIndex{
		Facets: []portalConfigFacet{
			{Name: "Average Score", FieldName: "score", Type: "avg"},
		},
	}

	s := testSearchContext(index)

	results := []searchAPIFacetResult{
		{Name: "facet_def_0_score", Value: 42.5},
	}

	shaped := s.shapeFacets(results, nil)
	require.Len(t, shaped, 1)

	assert.Equal(t, 42.5, shaped[0].Value)
	assert.Empty(t, shaped[0].Buckets)
}

func TestShapeFacetsDropsUnmatched(t *testing.T) {
	index := &portalConfigIndex{
		Facets: []portalConfigFacet{
			{FieldName: "tags"},
			{FieldName: "missing"},
		},
	}

	s := testSearchContext(index)

	results := []searchAPIFacetResult{
		{Name: "facet_def_0_tags", Buckets: []searchAPIBucket{{Value: "glaciers", Count: 1}}},
	}

	shaped := s.shapeFacets(results, nil)
	require.Len(t, shaped, 1)
	assert.Equal(t, "tags", shaped[0].FieldName)
}

func TestFacetModifierDefaultDropsEmpty(t *testing.T) {
	index := &portalConfigIndex{
		Facets: []portalConfigFacet{
			{FieldName: "tags"},
			{FieldName: "empty"},
		},
	}

	s := testSearchContext(index)

	results := []searchAPIFacetResult{
		{Name: "facet_def_0_tags", Buckets: []searchAPIBucket{{Value: "glaciers", Count: 1}}},
		{Name: "facet_def_1_empty", Buckets: []searchAPIBucket{}},
	}

	shaped := s.shapeFacets(results, nil)
	require.Len(t, shaped, 1)
	assert.Equal(t, "tags", shaped[0].FieldName)
}

func TestFacetModifierEmptyListDisablesDefault(t *testing.T) {
	index := &portalConfigIndex{
		Facets: []portalConfigFacet{
			{FieldName: "tags"},
			{FieldName: "empty"},
		},
		FacetModifiers: []string{},
	}

	s := testSearchContext(index)

	results := []searchAPIFacetResult{
		{Name: "facet_def_0_tags", Buckets: []searchAPIBucket{{Value: "glaciers", Count: 1}}},
		{Name: "facet_def_1_empty", Buckets: []searchAPIBucket{}},
	}

	shaped := s.shapeFacets(results, nil)
	assert.Len(t, shaped, 2)
}

func TestFacetModifierReverseAndSort(t *testing.T) {
	index := &portalConfigIndex{
		Facets: []portalConfigFacet{
			{FieldName: "tags"},
			{FieldName: "type"},
		},
		FacetModifiers: []string{"sort_terms", "reverse"},
	}

	s := testSearchContext(index)

	results := []searchAPIFacetResult{
		{Name: "facet_def_0_tags", Buckets: []searchAPIBucket{
			{Value: "satellites", Count: 3},
			{Value: "glaciers", Count: 10},
		}},
		{Name: "facet_def_1_type", Buckets: []searchAPIBucket{{Value: "dataset", Count: 5}}},
	}

	shaped := s.shapeFacets(results, nil)
	require.Len(t, shaped, 2)

	assert.Equal(t, "type", shaped[0].FieldName)
	assert.Equal(t, "tags", shaped[1].FieldName)

	assert.Equal(t, "glaciers", shaped[1].Buckets[0].Value)
	assert.Equal(t, "satellites", shaped[1].Buckets[1].Value)
}

func TestValidateFacetModifierNames(t *testing.T) {
	assert.NoError(t, validateFacetModifierNames([]string{"drop_empty", "reverse", "sort_terms"}))
	assert.Error(t, validateFacetModifierNames([]string{"drop_empty", "no_such_modifier"}))
}

func TestFacetModifierPanicRecovery(t *testing.T) {
	facetModifierRegistry["explode"] = func([]portalFacet) []portalFacet {
		panic("boom")
	}
	defer delete(facetModifierRegistry, "explode")

	index := &portalConfigIndex{
		Facets:         []portalConfigFacet{{FieldName: "tags"}},
		FacetModifiers: []string{"explode"},
	}

	s := testSearchContext(index)

	results := []searchAPIFacetResult{
		{Name: "facet_def_0_tags", Buckets: []searchAPIBucket{{Value: "glaciers", Count: 1}}},
	}

	// the panicking modifier is skipped and the facets come through untouched
	shaped := s.shapeFacets(results, nil)
	require.Len(t, shaped, 1)
	assert.Equal(t, "tags", shaped[0].FieldName)
}

func parseFiltersFromQuery(t *testing.T, key string, value string) []searchFilter {
	t.Helper()

	filters := parseQueryFilters(map[string][]string{key: {value}}, "")
	require.Len(t, filters, 1)

	return filters
}
