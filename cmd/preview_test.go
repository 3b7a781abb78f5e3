package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const previewScope = "https://auth.globus.org/scopes/preview.example.org/all"

func testPreviewPortal(dataSize int) *portalContext {
	return &portalContext{
		config:  &portalConfig{Preview: portalConfigPreview{DataSize: dataSize}},
		preview: portalPreview{client: resty.New()},
	}
}

func testPreviewClient() *clientContext {
	return &clientContext{
		claims: &identityClaims{
			OtherTokens: []tokenRecord{
				{ResourceServer: "preview.example.org", AccessToken: "preview-access", Scope: previewScope},
			},
		},
	}
}

func TestPreviewTruncatesPartialLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer preview-access", r.Header.Get("Authorization"))
		w.Write([]byte("line one\nline two\nline three is much longer than the chunk"))
	}))
	defer srv.Close()

	p := testPreviewPortal(24)

	data, err := p.previewData(testPreviewClient(), srv.URL, previewScope)

	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", data)
}

func TestPreviewShortFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("just one line"))
	}))
	defer srv.Close()

	p := testPreviewPortal(1024)

	data, err := p.previewData(testPreviewClient(), srv.URL, previewScope)

	require.NoError(t, err)
	assert.Equal(t, "just one line", data)
}

func TestPreviewBinaryData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xff, 0xfe, 0x00, 0x01, 0x80, 0x81})
	}))
	defer srv.Close()

	p := testPreviewPortal(1024)

	_, err := p.previewData(testPreviewClient(), srv.URL, previewScope)

	var previewErr *previewError
	require.ErrorAs(t, err, &previewErr)
	assert.Equal(t, "BinaryData", previewErr.code)
}

func TestPreviewStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{name: "forbidden", status: http.StatusForbidden, body: "denied", code: "PermissionDenied"},
		{name: "unauthorized", status: http.StatusUnauthorized, body: "denied", code: "PermissionDenied"},
		{name: "not found", status: http.StatusNotFound, body: "gone", code: "NotFound"},
		{name: "server error", status: http.StatusBadGateway, body: "oops", code: "ServerError"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
				w.Write([]byte(test.body))
			}))
			defer srv.Close()

			p := testPreviewPortal(1024)

			_, err := p.previewData(testPreviewClient(), srv.URL, previewScope)

			var previewErr *previewError
			require.ErrorAs(t, err, &previewErr)
			assert.Equal(t, test.code, previewErr.code)
		})
	}
}

func TestPreviewInactiveToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail": "Token is not active"}`))
	}))
	defer srv.Close()

	p := testPreviewPortal(1024)

	_, err := p.previewData(testPreviewClient(), srv.URL, previewScope)

	var expiredErr *expiredTokenError
	require.ErrorAs(t, err, &expiredErr)
}

func TestPreviewMissingScope(t *testing.T) {
	p := testPreviewPortal(1024)

	_, err := p.previewData(testPreviewClient(), "https://preview.example.org/file.txt", "https://auth.globus.org/scopes/other/all")

	var scopesErr *scopesRequiredError
	require.ErrorAs(t, err, &scopesErr)
}

func TestPreviewAnonymous(t *testing.T) {
	p := testPreviewPortal(1024)

	_, err := p.previewData(&clientContext{}, "https://preview.example.org/file.txt", previewScope)

	var authErr *authRequiredError
	require.ErrorAs(t, err, &authErr)
}

func TestPreviewInvalidURL(t *testing.T) {
	p := testPreviewPortal(1024)

	_, err := p.previewData(testPreviewClient(), "not a url", previewScope)

	var urlErr *globusURLError
	require.ErrorAs(t, err, &urlErr)
}
