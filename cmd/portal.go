package main

import (
	"fmt"
	"log"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-resty/resty/v2"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// git commit used for this build; supplied at compile time
var gitCommit string

type portalVersion struct {
	BuildVersion string `json:"build,omitempty"`
	GoVersion    string `json:"go_version,omitempty"`
	GitCommit    string `json:"git_commit,omitempty"`
}

type portalSearch struct {
	client *http.Client
	url    string
}

type portalAuth struct {
	client *resty.Client
}

type portalTransfer struct {
	client *resty.Client
}

type portalPreview struct {
	client *resty.Client
}

type portalTranslations struct {
	bundle *i18n.Bundle
}

// fieldMapper transforms a raw metadata field value for display
type fieldMapper func(interface{}) interface{}

type portalMaps struct {
	indexes      map[string]*portalConfigIndex
	fieldMappers map[string]fieldMapper
}

type portalContext struct {
	randomSource *rand.Rand
	config       *portalConfig
	translations portalTranslations
	version      portalVersion
	search       portalSearch
	auth         portalAuth
	transfer     portalTransfer
	preview      portalPreview
	maps         portalMaps
}

type stringValidator struct {
	values  []string
	invalid bool
	prefix  string
	postfix string
}

func (v *stringValidator) addValue(value string) {
	if value != "" {
		v.values = append(v.values, value)
	}
}

func (v *stringValidator) setPrefix(prefix string) {
	v.prefix = prefix
}

func (v *stringValidator) setPostfix(postfix string) {
	v.postfix = postfix
}

func (v *stringValidator) requireValue(value string, label string) {
	if value == "" {
		log.Printf("[VALIDATE] %smissing %s%s", v.prefix, label, v.postfix)
		v.invalid = true
		return
	}

	v.addValue(value)
}

func (v *stringValidator) Values() []string {
	return v.values
}

func (v *stringValidator) Invalid() bool {
	return v.invalid
}

func (p *portalContext) initVersion() {
	buildVersion := "unknown"
	files, _ := filepath.Glob("buildtag.*")
	if len(files) == 1 {
		buildVersion = strings.Replace(files[0], "buildtag.", "", 1)
	}

	p.version = portalVersion{
		BuildVersion: buildVersion,
		GoVersion:    fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
		GitCommit:    gitCommit,
	}

	log.Printf("[PORTAL] version.BuildVersion = [%s]", p.version.BuildVersion)
	log.Printf("[PORTAL] version.GoVersion    = [%s]", p.version.GoVersion)
	log.Printf("[PORTAL] version.GitCommit    = [%s]", p.version.GitCommit)
}

func (p *portalContext) initSearch() {
	// client setup

	connTimeout := integerWithMinimum(p.config.Search.ConnTimeout, 5)
	readTimeout := integerWithMinimum(p.config.Search.ReadTimeout, 5)

	searchClient := &http.Client{
		Timeout: time.Duration(readTimeout) * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   time.Duration(connTimeout) * time.Second,
				KeepAlive: 60 * time.Second,
			}).DialContext,
			MaxIdleConns:        100, // we are hitting one search host, so
			MaxIdleConnsPerHost: 100, // these two values can be the same
			IdleConnTimeout:     90 * time.Second,
		},
	}

	p.search = portalSearch{
		client: searchClient,
		url:    p.config.Search.Host,
	}

	if p.config.Search.ResultsPerPage == 0 {
		p.config.Search.ResultsPerPage = 10
	}

	if p.config.Search.MaxPages == 0 {
		p.config.Search.MaxPages = 10
	}

	log.Printf("[PORTAL] search.url           = [%s]", p.search.url)
	log.Printf("[PORTAL] search.perPage       = [%d]", p.config.Search.ResultsPerPage)
	log.Printf("[PORTAL] search.maxPages      = [%d]", p.config.Search.MaxPages)
}

func restyClientWithTimeouts(connTimeout string, readTimeout string) *resty.Client {
	conn := integerWithMinimum(connTimeout, 5)
	read := integerWithMinimum(readTimeout, 5)

	return resty.New().
		SetTimeout(time.Duration(read) * time.Second).
		SetTransport(&http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   time.Duration(conn) * time.Second,
				KeepAlive: 60 * time.Second,
			}).DialContext,
			MaxIdleConns:    100,
			IdleConnTimeout: 90 * time.Second,
		})
}

func (p *portalContext) initAuth() {
	p.auth = portalAuth{
		client: restyClientWithTimeouts(p.config.Auth.ConnTimeout, p.config.Auth.ReadTimeout),
	}

	log.Printf("[PORTAL] auth.url             = [%s]", p.config.Auth.Host)
}

func (p *portalContext) initTransfer() {
	p.transfer = portalTransfer{
		client: restyClientWithTimeouts(p.config.Transfer.ConnTimeout, p.config.Transfer.ReadTimeout),
	}

	log.Printf("[PORTAL] transfer.url         = [%s]", p.config.Transfer.Host)
}

func (p *portalContext) initPreview() {
	p.preview = portalPreview{
		client: restyClientWithTimeouts(p.config.Search.ConnTimeout, p.config.Search.ReadTimeout),
	}

	if p.config.Preview.DataSize == 0 {
		p.config.Preview.DataSize = 2048
	}

	log.Printf("[PORTAL] preview.dataSize     = [%d]", p.config.Preview.DataSize)
}

func (p *portalContext) initIndexes() {
	p.maps.indexes = make(map[string]*portalConfigIndex)

	for i := range p.config.Indexes {
		index := &p.config.Indexes[i]
		p.maps.indexes[index.Name] = index

		log.Printf("[PORTAL] index [%s]           = [%s] (%d facets, %d fields)", index.Name, index.UUID, len(index.Facets), len(index.Fields))
	}

	if p.config.DefaultFilterMatch == "" {
		p.config.DefaultFilterMatch = filterMatchAll
	}
}

func (p *portalContext) initFieldMappers() {
	p.maps.fieldMappers = map[string]fieldMapper{
		"join_comma":   mapJoinComma,
		"first_value":  mapFirstValue,
		"date_display": mapDateDisplay,
	}
}

func mapJoinComma(value interface{}) interface{} {
	list, ok := value.([]interface{})
	if ok == false {
		return value
	}

	var parts []string
	for _, item := range list {
		parts = append(parts, fmt.Sprintf("%v", item))
	}

	return strings.Join(parts, ", ")
}

func mapFirstValue(value interface{}) interface{} {
	list, ok := value.([]interface{})
	if ok == false || len(list) == 0 {
		return value
	}

	return list[0]
}

func mapDateDisplay(value interface{}) interface{} {
	str, ok := value.(string)
	if ok == false {
		return value
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, str); err == nil {
			return t.Format("Jan 2, 2006")
		}
	}

	return value
}

func (p *portalContext) initTranslations() {
	defaultLang := language.English

	bundle := i18n.NewBundle(defaultLang)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	toml, _ := filepath.Glob("i18n/*.toml")
	for _, f := range toml {
		bundle.MustLoadMessageFile(f)
	}

	p.translations = portalTranslations{
		bundle: bundle,
	}
}

func (p *portalContext) validateConfig() {
	// ensure the existence and validity of required values before accepting traffic

	invalid := false

	var messageIDs stringValidator
	var miscValues stringValidator

	miscValues.requireValue(p.config.Service.Port, "service port")
	miscValues.requireValue(p.config.Service.JWTKey, "jwt key")
	miscValues.requireValue(p.config.Search.Host, "search host")
	miscValues.requireValue(p.config.Auth.Host, "auth host")

	if filterTypes[p.config.DefaultFilterMatch] == "" {
		log.Printf("[VALIDATE] default filter match not valid: [%s]", p.config.DefaultFilterMatch)
		invalid = true
	}

	if err := validateFacetModifierNames(p.config.FacetModifiers); err != nil {
		log.Printf("[VALIDATE] %s", err.Error())
		invalid = true
	}

	if len(p.config.Indexes) == 0 {
		log.Printf("[VALIDATE] no indexes configured")
		invalid = true
	}

	for i, index := range p.config.Indexes {
		prefix := fmt.Sprintf("index %d: ", i)

		miscValues.setPrefix(prefix)
		messageIDs.setPrefix(prefix)

		miscValues.requireValue(index.Name, "name")
		miscValues.requireValue(index.UUID, "uuid")

		messageIDs.addValue(index.NameXID)

		if index.FilterMatch != "" && filterTypes[index.FilterMatch] == "" {
			log.Printf("[VALIDATE] index %d: filter match not valid: [%s]", i, index.FilterMatch)
			invalid = true
		}

		if err := validateFacetModifierNames(index.FacetModifiers); err != nil {
			log.Printf("[VALIDATE] index %d: %s", i, err.Error())
			invalid = true
		}

		// a dry run catches missing field names and unknown facet types
		if _, err := prepareSearchFacets(index.Facets); err != nil {
			log.Printf("[VALIDATE] index %d: %s", i, err.Error())
			invalid = true
		}

		for j, facet := range index.Facets {
			messageIDs.addValue(facet.NameXID)

			if facet.Type == facetTypeDateHistogram && dateFilterTypes[facet.DateInterval] == false {
				log.Printf("[VALIDATE] index %d: facet %d: date interval not valid: [%s]", i, j, facet.DateInterval)
				invalid = true
			}

			if facet.FilterType != "" && facet.FilterType != filterMatchAll && facet.FilterType != filterMatchAny {
				log.Printf("[VALIDATE] index %d: facet %d: filter type not valid: [%s]", i, j, facet.FilterType)
				invalid = true
			}
		}

		for j, field := range index.Fields {
			miscValues.requireValue(field.Name, fmt.Sprintf("field %d name", j))

			if field.Mapper != "" && p.maps.fieldMappers[field.Mapper] == nil {
				log.Printf("[VALIDATE] index %d: field %d: unregistered field mapper: [%s]", i, j, field.Mapper)
				invalid = true
			}
		}
	}

	miscValues.setPrefix("")
	messageIDs.setPrefix("")

	// validate any translation IDs that were referenced

	langs := []string{}
	for _, tag := range p.translations.bundle.LanguageTags() {
		langs = append(langs, tag.String())
	}

	log.Printf("[VALIDATE] supported languages: %s", strings.Join(langs, ", "))

	for _, id := range messageIDs.Values() {
		for _, tag := range p.translations.bundle.LanguageTags() {
			localizer := i18n.NewLocalizer(p.translations.bundle, tag.String())
			if _, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: id}); err != nil {
				log.Printf("[VALIDATE] [%s] missing translation for message ID: [%s] (%s)", tag.String(), id, err.Error())
				invalid = true
			}
		}
	}

	if invalid || messageIDs.Invalid() || miscValues.Invalid() {
		log.Printf("[VALIDATE] exiting due to missing/incorrect value(s) above")
		os.Exit(1)
	}
}

func initializePortal(cfg *portalConfig) *portalContext {
	p := portalContext{}

	p.randomSource = rand.New(rand.NewSource(time.Now().UnixNano()))
	p.config = cfg

	p.initVersion()
	p.initTranslations()
	p.initFieldMappers()
	p.initIndexes()
	p.initSearch()
	p.initAuth()
	p.initTransfer()
	p.initPreview()

	p.validateConfig()

	return &p
}
