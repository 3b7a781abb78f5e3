package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPortal(searchHost string) *portalContext {
	p := &portalContext{
		config: &portalConfig{
			Search: portalConfigSearch{Host: searchHost, ResultsPerPage: 10, MaxPages: 10},
		},
		search: portalSearch{client: &http.Client{}, url: searchHost},
	}

	p.initFieldMappers()

	return p
}

func TestGetPagination(t *testing.T) {
	s := testSearchContext(&portalConfigIndex{})

	tests := []struct {
		name        string
		total       int
		offset      int
		currentPage int
		pageCount   int
	}{
		{name: "first page of many", total: 1000, offset: 0, currentPage: 1, pageCount: 10},
		{name: "second page", total: 1000, offset: 10, currentPage: 2, pageCount: 10},
		{name: "partial last page", total: 25, offset: 20, currentPage: 3, pageCount: 3},
		{name: "no results", total: 0, offset: 0, currentPage: 1, pageCount: 1},
		{name: "single page", total: 7, offset: 0, currentPage: 1, pageCount: 1},
		{name: "capped at max pages", total: 101, offset: 0, currentPage: 1, pageCount: 10},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pagination := s.getPagination(test.total, test.offset)

			assert.Equal(t, test.currentPage, pagination.CurrentPage)
			assert.Len(t, pagination.Pages, test.pageCount)

			if test.pageCount > 0 {
				assert.Equal(t, 1, pagination.Pages[0].Number)
				assert.Equal(t, test.pageCount, pagination.Pages[test.pageCount-1].Number)
			}
		})
	}
}

func TestPerformSearchEmptyQuery(t *testing.T) {
	s := testSearchContext(&portalConfigIndex{Name: "data", UUID: "uuid"})

	resp := s.performSearch("", url.Values{}, 1)

	require.NoError(t, resp.err)
	assert.Equal(t, http.StatusOK, resp.status)

	data := resp.data.(portalSearchData)
	assert.Empty(t, data.Results)
	assert.Empty(t, data.Facets)
	assert.Equal(t, "", data.Query)
}

func TestPerformSearchFullPipeline(t *testing.T) {
	var received searchAPIRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.True(t, strings.HasSuffix(r.URL.Path, "/v1/index/test-uuid/search"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		res := map[string]interface{}{
			"gmeta": []map[string]interface{}{
				{
					"subject": "globus://endpoint/path/to file.csv",
					"entries": []map[string]interface{}{
						{"content": map[string]interface{}{
							"title":    "Ice Core 7",
							"tags":     []string{"glaciers", "cores"},
							"internal": "hidden",
						}},
					},
				},
			},
			"facet_results": []map[string]interface{}{
				{
					"name": "facet_def_0_pub_date",
					"buckets": []map[string]interface{}{
						{"value": map[string]string{"from": "2020-01-01 00:00:00", "to": "2021-01-01 00:00:00"}, "count": 3},
					},
				},
			},
			"total":  1000,
			"offset": 0,
			"count":  10,
		}

		json.NewEncoder(w).Encode(res)
	}))
	defer srv.Close()

	p := testPortal(srv.URL)

	index := &portalConfigIndex{
		Name: "data",
		UUID: "test-uuid",
		Fields: []portalConfigField{
			{Name: "title"},
			{Name: "tags", Mapper: "join_comma"},
		},
		Facets: []portalConfigFacet{
			{FieldName: "pub_date", Type: "date_histogram", DateInterval: "year"},
		},
	}

	s := &searchContext{svc: p, client: &clientContext{}, index: index}

	query := url.Values{"filter-year.pub_date": {"2020"}}

	resp := s.performSearch("ice cores", query, 1)

	require.NoError(t, resp.err)
	require.Equal(t, http.StatusOK, resp.status)

	// the outgoing request carries the parsed filter and prepared facet
	assert.Equal(t, "ice cores", received.Q)
	assert.Equal(t, 0, received.Offset)
	assert.Equal(t, 10, received.Limit)
	require.Len(t, received.Facets, 1)
	assert.Equal(t, "facet_def_0_pub_date", received.Facets[0].Name)
	require.Len(t, received.Filters, 1)
	assert.Equal(t, "range", received.Filters[0].Type)

	data := resp.data.(portalSearchData)

	require.Len(t, data.Results, 1)
	assert.Equal(t, url.QueryEscape("globus://endpoint/path/to file.csv"), data.Results[0].Subject)
	assert.Equal(t, "Ice Core 7", data.Results[0].Fields["title"])
	assert.Equal(t, "glaciers, cores", data.Results[0].Fields["tags"])
	assert.NotContains(t, data.Results[0].Fields, "internal")

	require.Len(t, data.Facets, 1)
	require.Len(t, data.Facets[0].Buckets, 1)
	assert.True(t, data.Facets[0].Buckets[0].Checked)

	assert.Equal(t, 1, data.Pagination.CurrentPage)
	assert.Len(t, data.Pagination.Pages, 10)
	assert.Equal(t, 1000, data.Total)
	assert.Empty(t, data.Error)
}

func TestPerformSearchRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"code": "Search.Error", "message": "index unavailable"})
	}))
	defer srv.Close()

	p := testPortal(srv.URL)

	s := &searchContext{svc: p, client: &clientContext{}, index: &portalConfigIndex{Name: "data", UUID: "test-uuid"}}

	resp := s.performSearch("ice", url.Values{}, 1)

	// a failed upstream search degrades rather than failing the request
	require.NoError(t, resp.err)
	assert.Equal(t, http.StatusOK, resp.status)

	data := resp.data.(portalSearchData)
	assert.Contains(t, data.Error, "index unavailable")
	assert.Empty(t, data.Results)
	assert.Empty(t, data.Facets)
}

func TestPerformSearchExpiredToken(t *testing.T) {
	requests := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	p := testPortal(srv.URL)

	claims := testClaims()
	claims.LastLogin = time.Now().Unix() - 7200

	s := &searchContext{svc: p, client: &clientContext{claims: claims}, index: &portalConfigIndex{Name: "data", UUID: "test-uuid"}}

	resp := s.performSearch("ice", url.Values{}, 1)

	// an expired search token surfaces; the search is never downgraded to
	// an anonymous request
	var expiredErr *expiredTokenError
	require.ErrorAs(t, resp.err, &expiredErr)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Equal(t, 0, requests)
}

func TestPerformSearchMissingToken(t *testing.T) {
	requests := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	p := testPortal(srv.URL)

	claims := testClaims()
	claims.OtherTokens = nil
	claims.AccessToken = ""

	s := &searchContext{svc: p, client: &clientContext{claims: claims}, index: &portalConfigIndex{Name: "data", UUID: "test-uuid"}}

	resp := s.performSearch("ice", url.Values{}, 1)

	var lookupErr *tokenLookupError
	require.ErrorAs(t, resp.err, &lookupErr)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Equal(t, 0, requests)
}

func TestPerformSearchPageClamping(t *testing.T) {
	var received searchAPIRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(map[string]interface{}{"gmeta": []interface{}{}, "total": 0, "offset": received.Offset, "count": 0})
	}))
	defer srv.Close()

	p := testPortal(srv.URL)
	s := &searchContext{svc: p, client: &clientContext{}, index: &portalConfigIndex{Name: "data", UUID: "test-uuid"}}

	s.performSearch("ice", url.Values{}, 500)
	assert.Equal(t, 90, received.Offset)

	s.performSearch("ice", url.Values{}, -3)
	assert.Equal(t, 0, received.Offset)
}

func TestNewSearchContextUnknownIndex(t *testing.T) {
	p := testPortal("http://localhost")
	p.maps.indexes = map[string]*portalConfigIndex{}

	_, err := p.newSearchContext(&clientContext{}, "nope")

	var indexErr *indexNotFoundError
	require.ErrorAs(t, err, &indexErr)
	assert.Equal(t, http.StatusNotFound, statusForError(err))
}

func TestGetSubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "GET", r.Method)
		require.Equal(t, "globus://endpoint/file.csv", r.URL.Query().Get("subject"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"subject": "globus://endpoint/file.csv",
			"entries": []map[string]interface{}{
				{"content": map[string]interface{}{"title": "A File"}},
			},
		})
	}))
	defer srv.Close()

	p := testPortal(srv.URL)
	s := &searchContext{svc: p, client: &clientContext{}, index: &portalConfigIndex{Name: "data", UUID: "test-uuid"}}

	resp := s.getSubject("globus://endpoint/file.csv")

	require.NoError(t, resp.err)
	require.Equal(t, http.StatusOK, resp.status)

	record := resp.data.(portalRecord)
	assert.Equal(t, url.QueryEscape("globus://endpoint/file.csv"), record.Subject)
	assert.Equal(t, "A File", record.Fields["title"])
}

func TestGetSubjectNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"code": "NotFound.Generic", "message": "no such subject"})
	}))
	defer srv.Close()

	p := testPortal(srv.URL)
	s := &searchContext{svc: p, client: &clientContext{}, index: &portalConfigIndex{Name: "data", UUID: "test-uuid"}}

	resp := s.getSubject("globus://endpoint/missing.csv")

	assert.Equal(t, http.StatusNotFound, resp.status)
	assert.Error(t, resp.err)
}

func TestProcessSearchDataNoFieldConfig(t *testing.T) {
	s := testSearchContext(&portalConfigIndex{})

	records := s.processSearchData([]searchAPIGMeta{
		{Subject: "x", Entries: []searchAPIGMetaEntry{{Content: map[string]interface{}{"a": 1.0, "b": "two"}}}},
		{Subject: "y"},
	})

	require.Len(t, records, 2)
	assert.Len(t, records[0].Fields, 2)
	assert.Empty(t, records[1].Fields)
}
