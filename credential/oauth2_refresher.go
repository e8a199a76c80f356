package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// OAuth2Config names the identity provider endpoint and client
// credentials consumed from the environment (IDP_URL, IDP_CLIENT_ID,
// IDP_CLIENT_SECRET; spec §6).
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// OAuth2Refresher implements Refresher against a standard OAuth2
// refresh_token grant, using golang.org/x/oauth2's TokenSource to
// perform the exchange and classifying the response per spec §4.3.
type OAuth2Refresher struct {
	cfg        oauth2.Config
	httpClient *http.Client
}

// NewOAuth2Refresher builds a Refresher bound to the given identity
// provider configuration. httpClient may be nil to use
// http.DefaultClient.
func NewOAuth2Refresher(cfg OAuth2Config, httpClient *http.Client) *OAuth2Refresher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuth2Refresher{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: cfg.TokenURL,
			},
		},
		httpClient: httpClient,
	}
}

// Refresh exchanges refreshToken for a new access token.
func (r *OAuth2Refresher) Refresh(ctx context.Context, ownerID string, refreshToken string) (*RefreshedToken, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	ts := r.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, classifyOAuthErr(err)
	}
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	return &RefreshedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    tok.Expiry,
	}, nil
}

func classifyOAuthErr(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500 {
			return fmt.Errorf("%w: %s", ErrTransient, err)
		}
		return fmt.Errorf("%w: %s", ErrPermanent, err)
	}
	// Network-level failures (timeouts, connection refused, DNS) with
	// no HTTP response at all are treated as transient.
	return fmt.Errorf("%w: %s", ErrTransient, err)
}
