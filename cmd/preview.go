package main

import (
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// previewData fetches the first chunk of a remote file for inline
// display.  the file is read through an https endpoint that accepts the
// same bearer tokens the rest of the portal uses; which token applies is
// named by scope, since preview servers vary per deployment.
func (p *portalContext) previewData(c *clientContext, fileURL string, scope string) (string, error) {
	if isValidURL(fileURL) == false {
		return "", &globusURLError{url: fileURL, reason: "preview target is not a valid url"}
	}

	token, tokenErr := c.scopedAccessToken(scope)
	if tokenErr != nil {
		return "", tokenErr
	}

	res, resErr := p.preview.client.R().
		SetAuthToken(token).
		SetDoNotParseResponse(true).
		Get(fileURL)

	if resErr != nil {
		c.err("preview: request failed: %s", resErr.Error())
		return "", newPreviewUnexpected()
	}

	body := res.RawBody()
	defer body.Close()

	chunk := make([]byte, p.config.Preview.DataSize)
	n, readErr := io.ReadFull(body, chunk)
	if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
		c.err("preview: read failed: %s", readErr.Error())
		return "", newPreviewUnexpected()
	}
	chunk = chunk[:n]

	switch status := res.StatusCode(); {
	case status == http.StatusUnauthorized:
		if strings.Contains(string(chunk), "Token is not active") == true {
			return "", &expiredTokenError{tokenName: scope}
		}
		return "", newPreviewPermissionDenied()

	case status == http.StatusForbidden:
		return "", newPreviewPermissionDenied()

	case status == http.StatusNotFound:
		return "", newPreviewNotFound()

	case status >= 500:
		return "", newPreviewServerError(status, string(chunk))

	case status != http.StatusOK:
		c.warn("preview: unexpected status %d", status)
		return "", newPreviewUnexpected()
	}

	if utf8.Valid(chunk) == false {
		return "", newPreviewBinaryData()
	}

	return trimPartialLine(string(chunk)), nil
}

// trimPartialLine drops the trailing partial line from a truncated chunk
// so the preview never ends mid-line.  a chunk with no newline at all is
// returned whole.
func trimPartialLine(chunk string) string {
	idx := strings.LastIndex(chunk, "\n")
	if idx <= 0 {
		return chunk
	}

	return chunk[:idx]
}
