package main

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"sort"
	"strings"
)

type portalConfigService struct {
	Port   string `json:"port,omitempty"`
	JWTKey string `json:"jwt_key,omitempty"`
}

type portalConfigSearch struct {
	Host           string `json:"host,omitempty"`
	ConnTimeout    string `json:"conn_timeout,omitempty"`
	ReadTimeout    string `json:"read_timeout,omitempty"`
	ResultsPerPage int    `json:"results_per_page,omitempty"`
	MaxPages       int    `json:"max_pages,omitempty"`
}

type portalConfigAuth struct {
	Host        string `json:"host,omitempty"`
	ConnTimeout string `json:"conn_timeout,omitempty"`
	ReadTimeout string `json:"read_timeout,omitempty"`
}

type portalConfigTransfer struct {
	Host        string `json:"host,omitempty"`
	ConnTimeout string `json:"conn_timeout,omitempty"`
	ReadTimeout string `json:"read_timeout,omitempty"`
	HelperURL   string `json:"helper_url,omitempty"` // browse-endpoint helper page
	TaskURL     string `json:"task_url,omitempty"`   // task status page url template
}

type portalConfigPreview struct {
	DataSize int `json:"data_size,omitempty"` // bytes fetched per preview
}

type portalConfigHistogramRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

type portalConfigFacet struct {
	Name           string                      `json:"name,omitempty"`       // display name; defaults to field name
	NameXID        string                      `json:"name_xid,omitempty"`   // translation ID for display name
	FieldName      string                      `json:"field_name,omitempty"` // required
	Type           string                      `json:"type,omitempty"`       // terms, numeric_histogram, date_histogram, avg, sum
	Size           int                         `json:"size,omitempty"`
	HistogramRange *portalConfigHistogramRange `json:"histogram_range,omitempty"`
	DateInterval   string                      `json:"date_interval,omitempty"` // day, month, year
	FilterType     string                      `json:"filter_type,omitempty"`   // override for terms facets: match-all or match-any
}

type portalConfigField struct {
	Name   string `json:"name,omitempty"`   // metadata field to surface in results
	Mapper string `json:"mapper,omitempty"` // optional named mapper from the field mapper registry
}

type portalConfigIndex struct {
	Name                string              `json:"name,omitempty"` // short name used in URLs
	UUID                string              `json:"uuid,omitempty"`
	NameXID             string              `json:"name_xid,omitempty"` // translation ID for display name
	Fields              []portalConfigField `json:"fields,omitempty"`
	Facets              []portalConfigFacet `json:"facets,omitempty"`
	FilterMatch         string              `json:"filter_match,omitempty"`          // default filter type for this index
	FacetModifiers      []string            `json:"facet_modifiers,omitempty"`       // per-index modifier pipeline override
	TemplateOverrideDir string              `json:"template_override_dir,omitempty"` // passed through to the portal frontend
}

type portalConfig struct {
	Service            portalConfigService  `json:"service,omitempty"`
	Search             portalConfigSearch   `json:"search,omitempty"`
	Auth               portalConfigAuth     `json:"auth,omitempty"`
	Transfer           portalConfigTransfer `json:"transfer,omitempty"`
	Preview            portalConfigPreview  `json:"preview,omitempty"`
	Indexes            []portalConfigIndex  `json:"indexes,omitempty"`
	DefaultFilterMatch string               `json:"default_filter_match,omitempty"`
	FacetModifiers     []string             `json:"facet_modifiers,omitempty"` // nil means built-in default (drop_empty); empty list means none
}

func getSortedJSONEnvVars() []string {
	var keys []string

	for _, keyval := range os.Environ() {
		key := strings.Split(keyval, "=")[0]
		if strings.HasPrefix(key, "PORTAL_SEARCH_WS_JSON_") {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	return keys
}

func loadConfig() *portalConfig {
	cfg := portalConfig{}

	// json configs

	envs := getSortedJSONEnvVars()

	valid := true

	for _, env := range envs {
		log.Printf("[CONFIG] loading %s ...", env)
		if val := os.Getenv(env); val != "" {
			dec := json.NewDecoder(bytes.NewReader([]byte(val)))
			dec.DisallowUnknownFields()

			if err := dec.Decode(&cfg); err != nil {
				log.Printf("error decoding %s: %s", env, err.Error())
				valid = false
			}
		}
	}

	if valid == false {
		log.Printf("exiting due to json decode error(s) above")
		os.Exit(1)
	}

	// optional convenience overrides to simplify deployment config
	if host := os.Getenv("PORTAL_SEARCH_WS_SEARCH_HOST"); host != "" {
		cfg.Search.Host = host
	}

	if key := os.Getenv("PORTAL_SEARCH_WS_JWT_KEY"); key != "" {
		cfg.Service.JWTKey = key
	}

	bytes, err := json.Marshal(cfg)
	if err != nil {
		log.Printf("error encoding portal config json: %s", err.Error())
		os.Exit(1)
	}

	log.Printf("[CONFIG] composite json:")
	log.Printf("\n%s", string(bytes))

	return &cfg
}
