package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// statusForError maps a typed error to the http status a client should
// see.  token problems come back as 401 so the frontend can start a
// fresh login; consent problems as 403 so it can request more scopes.
func statusForError(err error) int {
	var indexErr *indexNotFoundError
	var rangeErr *invalidRangeFilterError
	var urlErr *globusURLError
	var expiredErr *expiredTokenError
	var scopesErr *scopesRequiredError
	var lookupErr *tokenLookupError
	var authErr *authRequiredError
	var previewErr *previewError
	var transferErr *transferAPIError

	switch {
	case errors.As(err, &indexErr):
		return http.StatusNotFound
	case errors.As(err, &rangeErr), errors.As(err, &urlErr):
		return http.StatusBadRequest
	case errors.As(err, &expiredErr), errors.As(err, &authErr), errors.As(err, &lookupErr):
		return http.StatusUnauthorized
	case errors.As(err, &scopesErr):
		return http.StatusForbidden
	case errors.As(err, &previewErr):
		switch previewErr.code {
		case "PermissionDenied":
			return http.StatusForbidden
		case "NotFound":
			return http.StatusNotFound
		case "BinaryData":
			return http.StatusUnprocessableEntity
		default:
			return http.StatusInternalServerError
		}
	case errors.As(err, &transferErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(ctx *gin.Context, err error) {
	ctx.JSON(statusForError(err), gin.H{"error": err.Error()})
}

func (p *portalContext) searchHandler(c *gin.Context) {
	cl := clientContext{}
	cl.init(p, c)

	cl.logRequest()

	s, sErr := p.newSearchContext(&cl, c.Param("index"))
	if sErr != nil {
		cl.logResponse(searchResponse{status: statusForError(sErr), err: sErr})
		errorResponse(c, sErr)
		return
	}

	page := integerWithMinimum(c.Query("page"), 1)

	resp := s.performSearch(c.Query("q"), c.Request.URL.Query(), page)
	cl.logResponse(resp)

	if resp.err != nil {
		errorResponse(c, resp.err)
		return
	}

	c.JSON(resp.status, resp.data)
}

func (p *portalContext) subjectHandler(c *gin.Context) {
	cl := clientContext{}
	cl.init(p, c)

	cl.logRequest()

	s, sErr := p.newSearchContext(&cl, c.Param("index"))
	if sErr != nil {
		cl.logResponse(searchResponse{status: statusForError(sErr), err: sErr})
		errorResponse(c, sErr)
		return
	}

	subject := strings.TrimPrefix(c.Param("subject"), "/")
	if unescaped, err := url.QueryUnescape(subject); err == nil {
		subject = unescaped
	}

	resp := s.getSubject(subject)
	cl.logResponse(resp)

	if resp.err != nil {
		errorResponse(c, resp.err)
		return
	}

	c.JSON(resp.status, resp.data)
}

func (p *portalContext) indexesHandler(c *gin.Context) {
	cl := clientContext{}
	cl.init(p, c)

	c.JSON(http.StatusOK, cl.localizedIndexes(p))
}

type transferRequestBody struct {
	Source     string `json:"source" binding:"required"`      // globus url of the file to transfer
	EndpointID string `json:"endpoint_id" binding:"required"` // destination endpoint
	Path       string `json:"path" binding:"required"`        // destination folder
	Label      string `json:"label"`
}

func (p *portalContext) transferHandler(c *gin.Context) {
	cl := clientContext{}
	cl.init(p, c)

	cl.logRequest()

	var body transferRequestBody
	if bindErr := c.ShouldBindJSON(&body); bindErr != nil {
		cl.logResponse(searchResponse{status: http.StatusBadRequest, err: bindErr})
		c.JSON(http.StatusBadRequest, gin.H{"error": bindErr.Error()})
		return
	}

	sourceEndpoint, sourcePath, parseErr := parseGlobusURL(body.Source)
	if parseErr != nil {
		cl.logResponse(searchResponse{status: statusForError(parseErr), err: parseErr})
		errorResponse(c, parseErr)
		return
	}

	t, tErr := p.newTransferRequest(&cl)
	if tErr != nil {
		cl.logResponse(searchResponse{status: statusForError(tErr), err: tErr})
		errorResponse(c, tErr)
		return
	}

	exists, existsErr := t.checkExists(sourceEndpoint, sourcePath)
	if existsErr != nil {
		cl.logResponse(searchResponse{status: statusForError(existsErr), err: existsErr})
		errorResponse(c, existsErr)
		return
	}

	if exists == false {
		err := fmt.Errorf("source file does not exist: [%s]", body.Source)
		cl.logResponse(searchResponse{status: http.StatusNotFound, err: err})
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	destPath := path.Join(body.Path, path.Base(sourcePath))

	taskID, taskErr := t.transferFile(sourceEndpoint, sourcePath, body.EndpointID, destPath, body.Label)
	if taskErr != nil {
		cl.logResponse(searchResponse{status: statusForError(taskErr), err: taskErr})
		errorResponse(c, taskErr)
		return
	}

	cl.logResponse(searchResponse{status: http.StatusOK})

	c.JSON(http.StatusOK, gin.H{
		"task_id":  taskID,
		"task_url": p.taskStatusURL(taskID),
	})
}

func (p *portalContext) transferHelperHandler(c *gin.Context) {
	cl := clientContext{}
	cl.init(p, c)

	folderLimit := integerWithMinimum(c.Query("folderlimit"), 1)
	fileLimit := integerWithMinimum(c.Query("filelimit"), 0)

	helperURL, err := p.helperPageURL(c.Query("callback"), folderLimit, fileLimit, c.Query("label"))
	if err != nil {
		errorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": helperURL})
}

func (p *portalContext) previewHandler(c *gin.Context) {
	cl := clientContext{}
	cl.init(p, c)

	cl.logRequest()

	scope := c.Query("scope")
	if scope == "" {
		err := fmt.Errorf("missing required parameter: scope")
		cl.logResponse(searchResponse{status: http.StatusBadRequest, err: err})
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := p.previewData(&cl, c.Query("url"), scope)
	if err != nil {
		cl.logResponse(searchResponse{status: statusForError(err), err: err})
		errorResponse(c, err)
		return
	}

	cl.logResponse(searchResponse{status: http.StatusOK})

	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (p *portalContext) logoutHandler(c *gin.Context) {
	cl := clientContext{}
	cl.init(p, c)

	cl.logRequest()

	revoked := p.revokeTokens(&cl)

	cl.logResponse(searchResponse{status: http.StatusOK})

	c.JSON(http.StatusOK, gin.H{
		"revoked":  revoked,
		"redirect": p.logoutRedirectURL(c.Query("redirect")),
	})
}

func (p *portalContext) ignoreHandler(c *gin.Context) {
}

func (p *portalContext) versionHandler(c *gin.Context) {
	cl := clientContext{}
	cl.init(p, c)

	c.JSON(http.StatusOK, p.version)
}

func (p *portalContext) identifyHandler(c *gin.Context) {
	cl := clientContext{}
	cl.init(p, c)

	c.JSON(http.StatusOK, cl.identitySummary())
}

func (p *portalContext) healthCheckHandler(c *gin.Context) {
	cl := clientContext{}
	cl.init(p, c)

	type hcResp struct {
		Healthy bool   `json:"healthy"`
		Message string `json:"message,omitempty"`
	}

	hcSearch := hcResp{Healthy: true}

	if pingErr := p.searchPing(); pingErr != nil {
		hcSearch = hcResp{Healthy: false, Message: pingErr.Error()}
	}

	hcMap := make(map[string]hcResp)
	hcMap["search"] = hcSearch

	hcStatus := http.StatusOK
	if hcSearch.Healthy == false {
		hcStatus = http.StatusInternalServerError
	}

	c.JSON(hcStatus, hcMap)
}

// searchPing verifies the search service is reachable by fetching the
// first configured index's public description.
func (p *portalContext) searchPing() error {
	if len(p.config.Indexes) == 0 {
		return fmt.Errorf("no indexes configured")
	}

	res, err := p.search.client.Get(fmt.Sprintf("%s/v1/index/%s", p.search.url, p.config.Indexes[0].UUID))
	if err != nil {
		return err
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("search service returned status %d", res.StatusCode)
	}

	return nil
}

func getBearerToken(authorization string) (string, error) {
	components := strings.Split(strings.Join(strings.Fields(authorization), " "), " ")

	// must have two components, the first of which is "Bearer", and the second a non-empty token
	if len(components) != 2 || components[0] != "Bearer" || components[1] == "" {
		return "", fmt.Errorf("invalid Authorization header: [%s]", authorization)
	}

	token := components[1]

	if token == "undefined" {
		return "", errors.New("bearer token is undefined")
	}

	return token, nil
}

func (p *portalContext) parseClaims(token string) (*identityClaims, error) {
	claims := identityClaims{}

	parsed, parseErr := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); ok == false {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return []byte(p.config.Service.JWTKey), nil
	})

	if parseErr != nil {
		return nil, parseErr
	}

	if parsed.Valid == false {
		return nil, errors.New("invalid token")
	}

	return &claims, nil
}

// authenticateHandler requires a valid identity token
func (p *portalContext) authenticateHandler(c *gin.Context) {
	token, err := getBearerToken(c.GetHeader("Authorization"))
	if err != nil {
		log.Printf("authentication failed: [%s]", err.Error())
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	claims, err := p.parseClaims(token)
	if err != nil {
		log.Printf("JWT signature is invalid: %s", err.Error())
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	c.Set("token", token)
	c.Set("claims", claims)
}

// optionalAuthHandler accepts a valid identity token but lets anonymous
// requests through; a bad token is still rejected rather than silently
// downgraded to anonymous.
func (p *portalContext) optionalAuthHandler(c *gin.Context) {
	if c.GetHeader("Authorization") == "" {
		return
	}

	p.authenticateHandler(c)
}
