// Package auth holds the single cached client-credentials access token used
// by the authenticated API strategies. The token lives in process memory
// only, is replaced wholesale on refresh, and is never persisted.
package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/xeptore/soundgate/config"
	"github.com/xeptore/soundgate/httputil"
)

// Tokens are treated as expired this long before their actual expiry so a
// request never goes out with a token that dies mid-flight.
const expirySafetyMargin = 5 * time.Minute

type Credentials struct {
	Token     string
	ExpiresAt time.Time
}

func (c *Credentials) valid() bool {
	return c != nil && c.Token != "" && time.Now().Before(c.ExpiresAt)
}

type Auth struct {
	clientID     string
	clientSecret string
	tokenURL     string
	timeout      time.Duration
	sf           singleflight.Group
	credentials  atomic.Pointer[Credentials]
}

func New(conf config.SoundCloud) *Auth {
	return &Auth{
		clientID:     conf.ClientID,
		clientSecret: conf.ClientSecret,
		tokenURL:     conf.TokenURL,
		timeout:      time.Duration(conf.Timeouts.TokenExchange) * time.Second,
		sf:           singleflight.Group{},
		credentials:  atomic.Pointer[Credentials]{},
	}
}

// Token returns the cached access token while it is valid, exchanging the
// configured app credentials for a fresh one otherwise. A false return means
// the caller must operate anonymously; exchange failures are logged, never
// propagated. Concurrent cold-path callers coalesce into a single exchange.
func (a *Auth) Token(ctx context.Context, logger zerolog.Logger) (string, bool) {
	if creds := a.credentials.Load(); creds.valid() {
		return creds.Token, true
	}

	if a.clientID == "" || a.clientSecret == "" {
		logger.Debug().Msg("No app credentials configured, operating anonymously")
		return "", false
	}

	token, err, _ := a.sf.Do("exchange", func() (any, error) {
		if creds := a.credentials.Load(); creds.valid() {
			return creds.Token, nil
		}

		creds, err := a.exchange(ctx, logger)
		if nil != err {
			return "", fmt.Errorf("exchange credentials: %w", err)
		}
		a.credentials.Store(creds)

		return creds.Token, nil
	})
	if nil != err {
		logger.Warn().Err(err).Msg("Credential exchange failed, operating anonymously")
		return "", false
	}

	return token.(string), true
}

// Invalidate drops the cached token. The next Token call performs a fresh
// exchange. Useful when an upstream 401 proves the token dead early.
func (a *Auth) Invalidate() {
	a.credentials.Store(nil)
}

func (a *Auth) exchange(ctx context.Context, logger zerolog.Logger) (creds *Credentials, err error) {
	reqParams := make(url.Values, 3)
	reqParams.Add("grant_type", "client_credentials")
	reqParams.Add("client_id", a.clientID)
	reqParams.Add("client_secret", a.clientSecret)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		a.tokenURL,
		bytes.NewBufferString(reqParams.Encode()),
	)
	if nil != err {
		logger.Error().Err(err).Msg("Failed to create token exchange request")
		return nil, fmt.Errorf("create token exchange request: %w", err)
	}

	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Add("Accept", "application/json; charset=utf-8")

	client := http.Client{Timeout: a.timeout} //nolint:exhaustruct
	resp, err := client.Do(req)
	if nil != err {
		logger.Error().Err(err).Msg("Failed to send token exchange request")
		return nil, fmt.Errorf("send token exchange request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			logger.Error().Err(closeErr).Msg("Failed to close token exchange response body")
			err = errors.Join(err, fmt.Errorf("close token exchange response body: %v", closeErr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		respBytes, err := httputil.ReadOptionalResponseBody(resp)
		if nil != err {
			logger.Error().Err(err).Int("status_code", resp.StatusCode).Msg("Failed to read token exchange response body")
			return nil, fmt.Errorf("read token exchange %d response body: %w", resp.StatusCode, err)
		}

		logger.
			Error().
			Int("status_code", resp.StatusCode).
			Bytes("response_body", respBytes).
			Msg("Token exchange rejected")

		return nil, fmt.Errorf("unexpected token exchange response code %d with body: %s", resp.StatusCode, string(respBytes))
	}

	respBytes, err := httputil.ReadResponseBody(resp)
	if nil != err {
		logger.Error().Err(err).Msg("Failed to read token exchange 200 response body")
		return nil, fmt.Errorf("read token exchange 200 response body: %w", err)
	}

	var respBody struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(respBytes, &respBody); nil != err {
		logger.Error().Err(err).Bytes("response_body", respBytes).Msg("Failed to decode token exchange 200 response body")
		return nil, fmt.Errorf("decode token exchange 200 response body: %v", err)
	}

	if respBody.AccessToken == "" {
		return nil, fmt.Errorf("token exchange 200 response carries no access token: %s", string(respBytes))
	}

	expiresIn := respBody.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}

	logger.Debug().Msg("Access token acquired")

	return &Credentials{
		Token:     respBody.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(expiresIn)*time.Second - expirySafetyMargin),
	}, nil
}
