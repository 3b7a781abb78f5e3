package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// resource servers tokens are issued against
const (
	resourceServerAuth     = "auth.globus.org"
	resourceServerSearch   = "search.api.globus.org"
	resourceServerTransfer = "transfer.api.globus.org"
	resourceServerGroups   = "groups.api.globus.org"
)

// tokenRecord is one downstream-service token carried in the identity
// claims.  ExpiresIn is seconds relative to the login time, matching how
// the authorization service reports token lifetimes.
type tokenRecord struct {
	ResourceServer string `json:"resource_server"`
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	ExpiresIn      int64  `json:"expires_in,omitempty"`
	Scope          string `json:"scope,omitempty"`
}

// identityClaims is the JWT payload minted by the portal frontend at
// login.  the primary token fields belong to the authorization service
// itself; OtherTokens holds tokens for downstream services.
type identityClaims struct {
	Name         string        `json:"name,omitempty"`
	Email        string        `json:"email,omitempty"`
	LastLogin    int64         `json:"last_login,omitempty"`
	AccessToken  string        `json:"access_token,omitempty"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	ExpiresIn    int64         `json:"expires_in,omitempty"`
	Scope        string        `json:"scope,omitempty"`
	OtherTokens  []tokenRecord `json:"other_tokens,omitempty"`

	jwt.RegisteredClaims
}

// allTokens flattens the primary token and the downstream tokens into one
// list for lookup and revocation.
func (claims *identityClaims) allTokens() []tokenRecord {
	var tokens []tokenRecord

	if claims.AccessToken != "" {
		tokens = append(tokens, tokenRecord{
			ResourceServer: resourceServerAuth,
			AccessToken:    claims.AccessToken,
			RefreshToken:   claims.RefreshToken,
			ExpiresIn:      claims.ExpiresIn,
			Scope:          claims.Scope,
		})
	}

	tokens = append(tokens, claims.OtherTokens...)

	return tokens
}

// tokenExpired reports whether the token's lifetime has elapsed since
// login.  a zero lifetime means the lifetime was not reported and the
// token is taken at face value.
func (claims *identityClaims) tokenExpired(token tokenRecord) bool {
	if token.ExpiresIn == 0 {
		return false
	}

	return time.Now().Unix() > claims.LastLogin+token.ExpiresIn
}

// tokenFor finds the token for the given resource server, or any token
// whose scopes cover requiredScopes.  an expired match fails with an
// expired token error naming the token so the caller can prompt for a
// fresh login.
func (claims *identityClaims) tokenFor(resourceServer string, requiredScopes []string) (*tokenRecord, error) {
	tokens := claims.allTokens()

	for i := range tokens {
		token := &tokens[i]

		if tokenMatches(token, resourceServer, requiredScopes) == false {
			continue
		}

		if claims.tokenExpired(*token) == true {
			return nil, &expiredTokenError{tokenName: token.ResourceServer}
		}

		return token, nil
	}

	if len(requiredScopes) > 0 {
		return nil, &scopesRequiredError{scopes: requiredScopes}
	}

	var available []string
	for _, token := range tokens {
		available = append(available, token.ResourceServer)
	}

	return nil, &tokenLookupError{tokenName: resourceServer, available: available}
}

func tokenMatches(token *tokenRecord, resourceServer string, requiredScopes []string) bool {
	if resourceServer != "" && token.ResourceServer == resourceServer {
		return true
	}

	if len(requiredScopes) == 0 {
		return false
	}

	granted := strings.Fields(token.Scope)

	for _, required := range requiredScopes {
		if sliceContainsString(granted, required, false) == false {
			return false
		}
	}

	return true
}

// accessToken resolves a token for the client's identity.  anonymous
// clients get an empty token unless the operation requires authorization.
func (c *clientContext) accessToken(resourceServer string, requiredScopes []string, required bool) (string, error) {
	if c.isAuthenticated() == false {
		if required == true {
			return "", &authRequiredError{operation: resourceServer}
		}

		return "", nil
	}

	token, err := c.claims.tokenFor(resourceServer, requiredScopes)
	if err != nil {
		return "", err
	}

	return token.AccessToken, nil
}

func (c *clientContext) searchAccessToken() (string, error) {
	return c.accessToken(resourceServerSearch, nil, false)
}

func (c *clientContext) transferAccessToken() (string, error) {
	return c.accessToken(resourceServerTransfer, nil, true)
}

func (c *clientContext) scopedAccessToken(scope string) (string, error) {
	return c.accessToken("", []string{scope}, true)
}

// revokeTokens revokes every token the identity carries, best effort.  a
// failed revocation is logged and the remaining tokens are still tried.
// returns the number of tokens successfully revoked.
func (p *portalContext) revokeTokens(c *clientContext) int {
	if c.isAuthenticated() == false {
		return 0
	}

	revoked := 0

	for _, token := range c.claims.allTokens() {
		// access token first, then its refresh token
		pairs := []struct {
			kind  string
			value string
		}{
			{kind: "access", value: token.AccessToken},
			{kind: "refresh", value: token.RefreshToken},
		}

		for _, pair := range pairs {
			kind, value := pair.kind, pair.value
			if value == "" {
				continue
			}

			res, resErr := p.auth.client.R().
				SetFormData(map[string]string{"token": value}).
				Post(fmt.Sprintf("%s/v2/oauth2/token/revoke", p.config.Auth.Host))

			if resErr != nil {
				c.warn("failed to revoke %s %s token: %s", token.ResourceServer, kind, resErr.Error())
				continue
			}

			if res.IsError() == true {
				c.warn("failed to revoke %s %s token: status %d", token.ResourceServer, kind, res.StatusCode())
				continue
			}

			revoked++
		}
	}

	c.log("revoked %d token(s)", revoked)

	return revoked
}

func (c *clientContext) isAuthenticated() bool {
	return c.claims != nil
}

// identityResponse is the client-facing summary of an identity, shown by
// the identify endpoint.  tokens themselves are never echoed back.
type identityResponse struct {
	Subject       string   `json:"subject"`
	Name          string   `json:"name,omitempty"`
	Email         string   `json:"email,omitempty"`
	LastLogin     string   `json:"last_login,omitempty"`
	Authenticated bool     `json:"authenticated"`
	Tokens        []string `json:"tokens,omitempty"`
}

func (c *clientContext) identitySummary() identityResponse {
	res := identityResponse{Authenticated: c.isAuthenticated()}

	if res.Authenticated == false {
		return res
	}

	res.Subject = c.claims.Subject
	res.Name = c.claims.Name
	res.Email = c.claims.Email

	if c.claims.LastLogin != 0 {
		res.LastLogin = time.Unix(c.claims.LastLogin, 0).UTC().Format(time.RFC3339)
	}

	for _, token := range c.claims.allTokens() {
		res.Tokens = append(res.Tokens, token.ResourceServer)
	}

	return res
}

// logoutRedirectURL builds the authorization service's logout page url,
// sending the user back to the given location afterwards.
func (p *portalContext) logoutRedirectURL(redirect string) string {
	logoutURL := fmt.Sprintf("%s/v2/web/logout", p.config.Auth.Host)

	if redirect != "" {
		logoutURL = fmt.Sprintf("%s?redirect_uri=%s", logoutURL, url.QueryEscape(redirect))
	}

	return logoutURL
}
