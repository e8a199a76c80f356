package modelcache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// HTTPRegistry implements Registry against an HTTP service returning a
// JSON body of the form {"model_url": "..."} for GET <baseURL>/models/<ref>.
type HTTPRegistry struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPRegistry builds an HTTPRegistry. httpClient may be nil to use
// http.DefaultClient.
func NewHTTPRegistry(baseURL string, httpClient *http.Client) *HTTPRegistry {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPRegistry{BaseURL: baseURL, HTTPClient: httpClient}
}

type modelURLResponse struct {
	ModelURL string `json:"model_url"`
}

// ModelURL fetches the signed download URL for modelRef.
func (r *HTTPRegistry) ModelURL(ctx context.Context, modelRef string, bearer string) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s", r.BaseURL, url.PathEscape(modelRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %s", ErrTransient, err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var body modelURLResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("%w: decode response: %s", ErrTransient, err)
		}
		if body.ModelURL == "" {
			return "", fmt.Errorf("%w: empty model_url for %s", ErrPermanent, modelRef)
		}
		return body.ModelURL, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: %s returned %d for %s", ErrPermanent, r.BaseURL, resp.StatusCode, modelRef)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: %s returned %d for %s", ErrTransient, r.BaseURL, resp.StatusCode, modelRef)
	default:
		return "", fmt.Errorf("%w: %s returned unexpected status %d for %s", ErrPermanent, r.BaseURL, resp.StatusCode, modelRef)
	}
}
