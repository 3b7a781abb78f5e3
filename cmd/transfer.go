package main

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const globusURLScheme = "globus://"

const transferSyncLevel = "checksum"

// parseGlobusURL splits a "globus://<endpoint>:<path>" url into its
// endpoint and path.  the path may itself contain colons; only the first
// colon separates the two.
func parseGlobusURL(globusURL string) (string, string, error) {
	if strings.HasPrefix(globusURL, globusURLScheme) == false {
		return "", "", &globusURLError{url: globusURL, reason: `missing "globus://" scheme`}
	}

	rest := strings.TrimPrefix(globusURL, globusURLScheme)

	chunks := strings.SplitN(rest, ":", 2)
	if len(chunks) < 2 {
		return "", "", &globusURLError{url: globusURL, reason: `missing ":" between endpoint and path`}
	}

	endpoint, filePath := chunks[0], chunks[1]

	if len(endpoint) != 36 {
		return "", "", &globusURLError{url: globusURL, reason: "malformed endpoint UUID"}
	}

	if _, err := uuid.Parse(endpoint); err != nil {
		return "", "", &globusURLError{url: globusURL, reason: "malformed endpoint UUID"}
	}

	return endpoint, filePath, nil
}

// transferRequest scopes transfer service operations to one
// authenticated client.
type transferRequest struct {
	svc    *portalContext
	client *clientContext
	token  string
}

func (p *portalContext) newTransferRequest(c *clientContext) (*transferRequest, error) {
	token, tokenErr := c.transferAccessToken()
	if tokenErr != nil {
		return nil, tokenErr
	}

	return &transferRequest{svc: p, client: c, token: token}, nil
}

type transferOpResponse struct {
	Code    string                   `json:"code,omitempty"`
	Message string                   `json:"message,omitempty"`
	Value   string                   `json:"value,omitempty"`
	TaskID  string                   `json:"task_id,omitempty"`
	Data    []map[string]interface{} `json:"DATA,omitempty"`
}

// transferDo performs one transfer service call, translating error
// responses into typed errors.  an authentication failure over an
// inactive token becomes an expired token error so callers can prompt
// for a fresh login instead of reporting a server fault.
func (t *transferRequest) transferDo(method string, opPath string, query map[string]string, body interface{}, out *transferOpResponse) error {
	var errRes transferOpResponse

	req := t.svc.transfer.client.R().
		SetAuthToken(t.token).
		SetResult(out).
		SetError(&errRes)

	if query != nil {
		req.SetQueryParams(query)
	}

	if body != nil {
		req.SetBody(body)
	}

	res, resErr := req.Execute(method, t.svc.config.Transfer.Host+opPath)

	if resErr != nil {
		t.client.err("transfer service: request failed: %s", resErr.Error())
		return fmt.Errorf("transfer service request failed")
	}

	if res.IsError() == true {
		if errRes.Code == "AuthenticationFailed" && strings.Contains(errRes.Message, "Token is not active") == true {
			return &expiredTokenError{tokenName: resourceServerTransfer}
		}

		return &transferAPIError{status: res.StatusCode(), code: errRes.Code, message: errRes.Message}
	}

	return nil
}

func (t *transferRequest) endpointList(endpoint string, dirPath string) (*transferOpResponse, error) {
	var res transferOpResponse

	err := t.transferDo("GET",
		fmt.Sprintf("/operation/endpoint/%s/ls", endpoint),
		map[string]string{"path": dirPath},
		nil, &res)

	if err != nil {
		return nil, err
	}

	return &res, nil
}

// checkExists reports whether the named file exists on the endpoint, by
// listing its parent directory.  a permission-denied listing is treated
// as existing, since the transfer itself may still be authorized.
func (t *transferRequest) checkExists(endpoint string, filePath string) (bool, error) {
	dirPath, fileName := path.Split(filePath)

	res, resErr := t.endpointList(endpoint, dirPath)
	if resErr != nil {
		var apiErr *transferAPIError
		if errors.As(resErr, &apiErr) == true {
			switch {
			case apiErr.code == "EndpointPermissionDenied":
				return true, nil
			case strings.HasPrefix(apiErr.code, "ClientError.NotFound"):
				t.client.log("transfer service: path not found: [%s]", dirPath)
				return false, nil
			}
		}

		return false, resErr
	}

	for _, entry := range res.Data {
		if name, ok := entry["name"].(string); ok == true && name == fileName {
			return true, nil
		}
	}

	return false, nil
}

// isFile reports whether the path names a file rather than a directory.
// listing a file fails with a distinctive not-a-directory code.
func (t *transferRequest) isFile(endpoint string, filePath string) (bool, error) {
	_, resErr := t.endpointList(endpoint, filePath)
	if resErr != nil {
		var apiErr *transferAPIError
		if errors.As(resErr, &apiErr) == true {
			if strings.Contains(apiErr.code, "NotDirectory") == true {
				return true, nil
			}
		}

		return false, resErr
	}

	return false, nil
}

func (t *transferRequest) submissionID() (string, error) {
	var res transferOpResponse

	if err := t.transferDo("GET", "/submission_id", nil, nil, &res); err != nil {
		return "", err
	}

	return res.Value, nil
}

// transferFile submits a checksum-synced transfer of a single file and
// returns the task id.
func (t *transferRequest) transferFile(sourceEndpoint string, sourcePath string, destEndpoint string, destPath string, label string) (string, error) {
	submissionID, subErr := t.submissionID()
	if subErr != nil {
		return "", subErr
	}

	body := map[string]interface{}{
		"DATA_TYPE":            "transfer",
		"submission_id":        submissionID,
		"source_endpoint":      sourceEndpoint,
		"destination_endpoint": destEndpoint,
		"sync_level":           transferSyncLevel,
		"label":                label,
		"DATA": []map[string]interface{}{{
			"DATA_TYPE":        "transfer_item",
			"source_path":      sourcePath,
			"destination_path": destPath,
			"recursive":        false,
		}},
	}

	var res transferOpResponse

	if err := t.transferDo("POST", "/transfer", nil, body, &res); err != nil {
		return "", err
	}

	t.client.log("transfer service: submitted task %s", res.TaskID)

	return res.TaskID, nil
}

// taskStatusURL points at the transfer service's own status page for a
// submitted task.
func (p *portalContext) taskStatusURL(taskID string) string {
	return fmt.Sprintf(p.config.Transfer.TaskURL, taskID)
}

// helperPageURL builds the browse-endpoint helper page url, which lets a
// user pick a destination and have the choice posted back to the portal.
func (p *portalContext) helperPageURL(callbackURL string, folderLimit int, fileLimit int, label string) (string, error) {
	if isValidURL(callbackURL) == false {
		return "", &globusURLError{url: callbackURL, reason: "callback is not a valid url"}
	}

	params := url.Values{}
	params.Set("method", "POST")
	params.Set("action", callbackURL)
	params.Set("folderlimit", strconv.Itoa(folderLimit))
	params.Set("filelimit", strconv.Itoa(fileLimit))

	if label != "" {
		params.Set("label", label)
	}

	return fmt.Sprintf("%s/file-manager?%s", p.config.Transfer.HelperURL, params.Encode()), nil
}
