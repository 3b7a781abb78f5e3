package main

import (
	"errors"
	"net/http"
	"net/url"
)

// searchResponse wraps a handler result with the http status to return
type searchResponse struct {
	status int         // http status code
	data   interface{} // data to return as JSON
	err    error       // error, if any
}

// searchContext is the scope of a single search-flavored request: the
// portal, the client making the request, and the index it targets.
type searchContext struct {
	svc    *portalContext
	client *clientContext
	index  *portalConfigIndex
}

func (p *portalContext) newSearchContext(c *clientContext, indexName string) (*searchContext, error) {
	index := p.maps.indexes[indexName]
	if index == nil {
		return nil, &indexNotFoundError{index: indexName}
	}

	return &searchContext{svc: p, client: c, index: index}, nil
}

func (s *searchContext) log(format string, args ...interface{}) {
	s.client.log(format, args...)
}

func (s *searchContext) warn(format string, args ...interface{}) {
	s.client.warn(format, args...)
}

func (s *searchContext) err(format string, args ...interface{}) {
	s.client.err(format, args...)
}

type portalPage struct {
	Number int `json:"number"`
}

type portalPagination struct {
	CurrentPage int          `json:"current_page"`
	Pages       []portalPage `json:"pages"`
	PerPage     int          `json:"per_page,omitempty"`
}

// portalRecord is one search result: the url-escaped subject plus the
// configured metadata fields from its first entry.
type portalRecord struct {
	Subject string                 `json:"subject"`
	Fields  map[string]interface{} `json:"fields"`
}

// portalSearchData is the payload of a successful (or degraded) search.
// a failed upstream search still produces a payload, with Error set and
// empty results, so portal pages render rather than breaking outright.
type portalSearchData struct {
	Query      string           `json:"query"`
	Facets     []portalFacet    `json:"facets"`
	Results    []portalRecord   `json:"search_results"`
	Pagination portalPagination `json:"pagination"`
	Filters    []searchFilter   `json:"filters"`
	Total      int              `json:"total"`
	Offset     int              `json:"offset"`
	Count      int              `json:"count"`
	Error      string           `json:"error,omitempty"`

	// raw facet results, included when the client requests debug info
	RawFacets []map[string]interface{} `json:"raw_facets,omitempty"`
}

func emptySearchData() portalSearchData {
	return portalSearchData{
		Facets:  []portalFacet{},
		Results: []portalRecord{},
		Filters: []searchFilter{},
	}
}

func (s *searchContext) filterMatch() string {
	if s.index.FilterMatch != "" {
		return s.index.FilterMatch
	}

	return s.svc.config.DefaultFilterMatch
}

// performSearch runs the full search pipeline: parse filters from the
// query string, prepare facet definitions, post to the search service,
// and shape the results.  an empty q short-circuits to an empty payload.
func (s *searchContext) performSearch(q string, query url.Values, page int) searchResponse {
	if q == "" {
		return searchResponse{status: http.StatusOK, data: emptySearchData()}
	}

	filters := parseQueryFilters(query, s.filterMatch())

	facetDefs, facetErr := prepareSearchFacets(s.index.Facets)
	if facetErr != nil {
		s.err("invalid facet configuration: %s", facetErr.Error())
		return searchResponse{status: http.StatusInternalServerError, err: facetErr}
	}

	perPage := s.svc.config.Search.ResultsPerPage
	maxPages := s.svc.config.Search.MaxPages

	page = restrictValue("page", page, 1, 1)
	if page > maxPages {
		page = maxPages
	}

	req := searchAPIRequest{
		Q:       q,
		Offset:  (page - 1) * perPage,
		Limit:   perPage,
		Facets:  facetDefs,
		Filters: filters,
	}

	res, resErr := s.searchServicePost(req)
	if resErr != nil {
		// authorization failures surface so the frontend can prompt a
		// fresh login; only remote search faults degrade
		var apiErr *searchAPIError
		if errors.As(resErr, &apiErr) == false {
			return searchResponse{status: statusForError(resErr), err: resErr}
		}

		// degraded payload so portal pages still render
		data := emptySearchData()
		data.Query = q
		data.Error = resErr.Error()

		return searchResponse{status: http.StatusOK, data: data}
	}

	facetResults, decodeErr := decodeFacetResults(res.FacetResults)
	if decodeErr != nil {
		s.warn("ignoring facet results: %s", decodeErr.Error())
		facetResults = nil
	}

	data := portalSearchData{
		Query:      q,
		Facets:     s.shapeFacets(facetResults, filters),
		Results:    s.processSearchData(res.GMeta),
		Pagination: s.getPagination(res.Total, res.Offset),
		Filters:    filters,
		Total:      res.Total,
		Offset:     res.Offset,
		Count:      res.Count,
	}

	if data.Facets == nil {
		data.Facets = []portalFacet{}
	}

	s.client.localizedFacetNames(s.index.Facets, data.Facets)

	if s.client.opts.debug == true {
		data.RawFacets = res.FacetResults
	}

	return searchResponse{status: http.StatusOK, data: data}
}

// getPagination derives the page list from the result total.  the page
// count is capped so deep paging cannot be requested past what the
// service will serve.
func (s *searchContext) getPagination(total int, offset int) portalPagination {
	perPage := s.svc.config.Search.ResultsPerPage
	maxPages := s.svc.config.Search.MaxPages

	pageCount := 1

	if total > perPage*maxPages {
		pageCount = maxPages
	} else if total > 0 {
		pageCount = (total + perPage - 1) / perPage
	}

	pagination := portalPagination{
		CurrentPage: (offset / perPage) + 1,
		PerPage:     perPage,
	}

	for i := 1; i <= pageCount; i++ {
		pagination.Pages = append(pagination.Pages, portalPage{Number: i})
	}

	return pagination
}

// processSearchData converts raw result entries into portal records.
// subjects are url-escaped for direct use in detail page links.  field
// selection and mapping follow the index configuration; an index with no
// configured fields exposes the entry content as-is.
func (s *searchContext) processSearchData(gmeta []searchAPIGMeta) []portalRecord {
	records := []portalRecord{}

	for _, meta := range gmeta {
		record := portalRecord{
			Subject: url.QueryEscape(meta.Subject),
			Fields:  make(map[string]interface{}),
		}

		if len(meta.Entries) == 0 {
			records = append(records, record)
			continue
		}

		content := meta.Entries[0].Content

		if len(s.index.Fields) == 0 {
			for name, value := range content {
				record.Fields[name] = value
			}
		} else {
			for _, field := range s.index.Fields {
				value, exists := content[field.Name]
				if exists == false {
					continue
				}

				record.Fields[field.Name] = s.applyFieldMapper(field, value)
			}
		}

		records = append(records, record)
	}

	return records
}

func (s *searchContext) applyFieldMapper(field portalConfigField, value interface{}) (mapped interface{}) {
	mapped = value

	if field.Mapper == "" {
		return
	}

	mapper := s.svc.maps.fieldMappers[field.Mapper]
	if mapper == nil {
		s.warn("unregistered field mapper: [%s]", field.Mapper)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.warn("field mapper [%s] panicked on field [%s]: %v", field.Mapper, field.Name, r)
			mapped = value
		}
	}()

	return mapper(value)
}

// getSubject fetches and processes a single record by its subject.
func (s *searchContext) getSubject(subject string) searchResponse {
	meta, metaErr := s.searchServiceSubject(subject)
	if metaErr != nil {
		var apiErr *searchAPIError
		if errors.As(metaErr, &apiErr) == true && apiErr.status == http.StatusNotFound {
			return searchResponse{status: http.StatusNotFound, err: metaErr}
		}

		return searchResponse{status: statusForError(metaErr), err: metaErr}
	}

	records := s.processSearchData([]searchAPIGMeta{*meta})

	return searchResponse{status: http.StatusOK, data: records[0]}
}
