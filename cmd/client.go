package main

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

type clientOpts struct {
	debug   bool // controls whether debug info is added to results
	verbose bool // controls whether verbose search requests/responses are logged
}

type clientContext struct {
	reqID       string          // internally generated
	start       time.Time       // internally set
	opts        clientOpts      // options set by client
	claims      *identityClaims // information about this user, if authenticated
	localizer   *i18n.Localizer // per-request localization
	ginCtx      *gin.Context    // gin context
	acceptLang  string          // first language requested by client
	contentLang string          // actual language we are responding with
}

func boolOptionWithFallback(opt string, fallback bool) bool {
	var err error
	var val bool

	if val, err = strconv.ParseBool(opt); err != nil {
		val = fallback
	}

	return val
}

func (c *clientContext) init(p *portalContext, ctx *gin.Context) {
	c.ginCtx = ctx

	c.start = time.Now()
	c.reqID = fmt.Sprintf("%08x", p.randomSource.Uint32())

	// get claims, if any
	if val, ok := ctx.Get("claims"); ok == true {
		c.claims = val.(*identityClaims)
	}

	// determine client preferred language
	c.acceptLang = firstElementOf(strings.Split(ctx.GetHeader("Accept-Language"), ","))
	if c.acceptLang == "" {
		c.acceptLang = "en"
	}

	c.localizer = i18n.NewLocalizer(p.translations.bundle, c.acceptLang)
	c.contentLang = c.acceptLang

	ctx.Header("Content-Language", c.contentLang)

	c.opts.debug = boolOptionWithFallback(ctx.Query("debug"), false)
	c.opts.verbose = boolOptionWithFallback(ctx.Query("verbose"), false)
}

func (c *clientContext) logRequest() {
	query := ""
	if c.ginCtx.Request.URL.RawQuery != "" {
		query = fmt.Sprintf("?%s", c.ginCtx.Request.URL.RawQuery)
	}

	claimsStr := ""
	if c.claims != nil {
		claimsStr = fmt.Sprintf("  [%s; %d token(s)]", c.claims.Subject, len(c.claims.allTokens()))
	}

	c.log("[REQUEST] %s %s%s  (%s)%s", c.ginCtx.Request.Method, c.ginCtx.Request.URL.Path, query, c.acceptLang, claimsStr)
}

func (c *clientContext) logResponse(resp searchResponse) {
	msg := fmt.Sprintf("[RESPONSE] status: %d (%d ms)", resp.status, int64(time.Since(c.start)/time.Millisecond))

	if resp.err != nil {
		msg = msg + fmt.Sprintf(", error: %s", resp.err.Error())
	}

	c.log("%s", msg)
}

func (c *clientContext) printf(prefix, format string, args ...interface{}) {
	str := fmt.Sprintf(format, args...)

	if prefix != "" {
		str = strings.Join([]string{prefix, str}, " ")
	}

	if c.reqID != "" {
		log.Printf("[%s] %s", c.reqID, str)
		return
	}

	log.Printf("%s", str)
}

func (c *clientContext) log(format string, args ...interface{}) {
	c.printf("", format, args...)
}

func (c *clientContext) warn(format string, args ...interface{}) {
	c.printf("WARNING:", format, args...)
}

func (c *clientContext) err(format string, args ...interface{}) {
	c.printf("ERROR:", format, args...)
}

// localize resolves a message ID for the client's language, falling back
// to the ID itself when no translation exists.  display strings must
// never fail a request.
func (c *clientContext) localize(id string) string {
	if c.localizer == nil || id == "" {
		return id
	}

	str, err := c.localizer.Localize(&i18n.LocalizeConfig{MessageID: id})
	if err != nil {
		return id
	}

	return str
}

// indexSummary is the client-facing description of one configured index
type indexSummary struct {
	Name                string `json:"name"`
	DisplayName         string `json:"display_name"`
	UUID                string `json:"uuid"`
	TemplateOverrideDir string `json:"template_override_dir,omitempty"`
}

func (c *clientContext) localizedIndexes(p *portalContext) []indexSummary {
	summaries := []indexSummary{}

	for i := range p.config.Indexes {
		index := &p.config.Indexes[i]

		displayName := index.Name
		if index.NameXID != "" {
			displayName = c.localize(index.NameXID)
		}

		summaries = append(summaries, indexSummary{
			Name:                index.Name,
			DisplayName:         displayName,
			UUID:                index.UUID,
			TemplateOverrideDir: index.TemplateOverrideDir,
		})
	}

	return summaries
}

// localizedFacetNames swaps configured translation IDs into each shaped
// facet's display name.
func (c *clientContext) localizedFacetNames(facets []portalConfigFacet, shaped []portalFacet) {
	byField := make(map[string]string)

	for _, facet := range facets {
		if facet.NameXID != "" {
			byField[facet.FieldName] = facet.NameXID
		}
	}

	for i := range shaped {
		if xid := byField[shaped[i].FieldName]; xid != "" {
			shaped[i].Name = c.localize(xid)
		}
	}
}
