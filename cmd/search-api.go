package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mitchellh/mapstructure"
)

type searchAPIHistogramRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// searchAPIFacet is one facet definition in an outgoing search request.
type searchAPIFacet struct {
	Name           string                   `json:"name"`
	FieldName      string                   `json:"field_name"`
	Type           string                   `json:"type"`
	Size           int                      `json:"size,omitempty"`
	HistogramRange *searchAPIHistogramRange `json:"histogram_range,omitempty"`
	DateInterval   string                   `json:"date_interval,omitempty"`
}

type searchAPIRequest struct {
	Q       string           `json:"q"`
	Offset  int              `json:"offset"`
	Limit   int              `json:"limit"`
	Facets  []searchAPIFacet `json:"facets,omitempty"`
	Filters []searchFilter   `json:"filters,omitempty"`
}

type searchAPIBucket struct {
	Value interface{} `json:"value" mapstructure:"value"`
	Count int         `json:"count" mapstructure:"count"`
}

// searchAPIFacetResult is one facet's results.  bucket facets populate
// Buckets; stat facets populate Value.  the wire shape is polymorphic so
// results are decoded leniently from raw maps.
type searchAPIFacetResult struct {
	Name    string            `json:"name" mapstructure:"name"`
	Value   interface{}       `json:"value,omitempty" mapstructure:"value"`
	Buckets []searchAPIBucket `json:"buckets,omitempty" mapstructure:"buckets"`
}

type searchAPIGMetaEntry struct {
	EntryID string                 `json:"entry_id,omitempty"`
	Content map[string]interface{} `json:"content"`
}

type searchAPIGMeta struct {
	Subject string                `json:"subject"`
	Entries []searchAPIGMetaEntry `json:"entries"`
}

type searchAPIResponse struct {
	GMeta        []searchAPIGMeta         `json:"gmeta"`
	FacetResults []map[string]interface{} `json:"facet_results,omitempty"`
	Total        int                      `json:"total"`
	Offset       int                      `json:"offset"`
	Count        int                      `json:"count"`
}

type searchAPIErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeFacetResults converts the raw polymorphic facet results into
// typed records.  weak typing tolerates the numeric representation
// differences that come with generic JSON decoding.
func decodeFacetResults(raw []map[string]interface{}) ([]searchAPIFacetResult, error) {
	var results []searchAPIFacetResult

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &results,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create facet result decoder: %s", err.Error())
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode facet results: %s", err.Error())
	}

	return results, nil
}

func (s *searchContext) searchServiceURL(format string, args ...interface{}) string {
	return s.svc.config.Search.Host + fmt.Sprintf(format, args...)
}

// searchServiceDo performs one request against the search service,
// decoding a successful response into out and classifying failures as
// typed search API errors.
func (s *searchContext) searchServiceDo(method string, url string, body interface{}, out interface{}) error {
	// an authenticated identity whose search token cannot be resolved must
	// see the authorization error, never an anonymous search in its place
	token, tokenErr := s.client.searchAccessToken()
	if tokenErr != nil {
		return tokenErr
	}

	var reqBody *bytes.Buffer

	if body != nil {
		jsonBytes, jsonErr := json.Marshal(body)
		if jsonErr != nil {
			s.err("search service: failed to marshal request: %s", jsonErr.Error())
			return fmt.Errorf("failed to marshal search service request")
		}

		if s.client.opts.verbose == true {
			s.log("search service: request: %s", jsonBytes)
		}

		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, reqErr := http.NewRequest(method, url, reqBody)
	if reqErr != nil {
		s.err("search service: failed to create request: %s", reqErr.Error())
		return fmt.Errorf("failed to create search service request")
	}

	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	start := time.Now()
	res, resErr := s.svc.search.client.Do(req)
	elapsedMS := int64(time.Since(start) / time.Millisecond)

	if resErr != nil {
		s.err("search service: request failed after %d ms: %s", elapsedMS, resErr.Error())
		return &searchAPIError{status: http.StatusServiceUnavailable, message: resErr.Error()}
	}

	defer res.Body.Close()

	s.log("search service: %s %s (%d) in %d ms", method, url, res.StatusCode, elapsedMS)

	decoder := json.NewDecoder(res.Body)

	if res.StatusCode != http.StatusOK {
		apiErr := searchAPIError{status: res.StatusCode}

		var errRes searchAPIErrorResponse
		if decErr := decoder.Decode(&errRes); decErr == nil {
			apiErr.code = errRes.Code
			apiErr.message = errRes.Message
		}

		s.warn("search service: error response: %s", apiErr.Error())
		return &apiErr
	}

	if decErr := decoder.Decode(out); decErr != nil {
		s.err("search service: failed to decode response: %s", decErr.Error())
		return fmt.Errorf("failed to decode search service response")
	}

	return nil
}

// searchServicePost runs a search against the index and returns the raw
// response.
func (s *searchContext) searchServicePost(req searchAPIRequest) (*searchAPIResponse, error) {
	searchURL := s.searchServiceURL("/v1/index/%s/search", s.index.UUID)

	var res searchAPIResponse
	if err := s.searchServiceDo("POST", searchURL, req, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

// searchServiceSubject fetches the single entry identified by subject.
func (s *searchContext) searchServiceSubject(subject string) (*searchAPIGMeta, error) {
	subjectURL := s.searchServiceURL("/v1/index/%s/subject?subject=%s", s.index.UUID, url.QueryEscape(subject))

	var res searchAPIGMeta
	if err := s.searchServiceDo("GET", subjectURL, nil, &res); err != nil {
		return nil, err
	}

	return &res, nil
}
