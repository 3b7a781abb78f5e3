package main

import (
	"fmt"
)

// error taxonomy for the portal.  each category carries enough structured
// data for a handler to build a precise response (re-consent redirect,
// degraded page message, etc.) without string matching.

// configuration errors

type indexNotFoundError struct {
	index string
}

func (e *indexNotFoundError) Error() string {
	return fmt.Sprintf("index not found: [%s]", e.index)
}

// input errors

type invalidRangeFilterError struct {
	value  string
	reason string
}

func (e *invalidRangeFilterError) Error() string {
	return fmt.Sprintf("invalid range filter [%s]: %s", e.value, e.reason)
}

type globusURLError struct {
	url    string
	reason string
}

func (e *globusURLError) Error() string {
	return fmt.Sprintf("invalid globus url [%s]: %s", e.url, e.reason)
}

// authorization errors

type expiredTokenError struct {
	tokenName string
}

func (e *expiredTokenError) Error() string {
	if e.tokenName == "" {
		return "token has expired"
	}

	return fmt.Sprintf("token has expired: [%s]", e.tokenName)
}

type scopesRequiredError struct {
	scopes []string
}

func (e *scopesRequiredError) Error() string {
	return fmt.Sprintf("additional scopes required: %v", e.scopes)
}

type tokenLookupError struct {
	tokenName string
	available []string
}

func (e *tokenLookupError) Error() string {
	return fmt.Sprintf("no token stored for [%s]; have %v", e.tokenName, e.available)
}

type authRequiredError struct {
	operation string
}

func (e *authRequiredError) Error() string {
	return fmt.Sprintf("authentication required for %s", e.operation)
}

// remote-service errors

type searchAPIError struct {
	status  int
	code    string
	message string
}

func (e *searchAPIError) Error() string {
	return fmt.Sprintf("search api error %d (%s): %s", e.status, e.code, e.message)
}

type transferAPIError struct {
	status  int
	code    string
	message string
}

func (e *transferAPIError) Error() string {
	return fmt.Sprintf("transfer api error %d (%s): %s", e.status, e.code, e.message)
}

// preview errors carry a short code the frontend keys user messages from

type previewError struct {
	code    string
	message string
}

func (e *previewError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func newPreviewPermissionDenied() *previewError {
	return &previewError{code: "PermissionDenied", message: "You do not have access to view this data"}
}

func newPreviewNotFound() *previewError {
	return &previewError{code: "NotFound", message: "Could not find file on the preview server"}
}

func newPreviewServerError(status int, body string) *previewError {
	return &previewError{code: "ServerError", message: fmt.Sprintf("preview server returned %d: %s", status, body)}
}

func newPreviewBinaryData() *previewError {
	return &previewError{code: "BinaryData", message: "Preview is unable to display binary data"}
}

func newPreviewUnexpected() *previewError {
	return &previewError{code: "UnexpectedError", message: "There was an unexpected error when fetching preview data"}
}
