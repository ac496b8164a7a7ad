package soundcloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/xeptore/soundgate/httputil"
	"github.com/xeptore/soundgate/soundcloud/scrape"
)

// browserHeaders marks a request as coming from the platform's own web
// client. The edge silently rejects requests missing the Referer/Origin
// pair regardless of otherwise-correct credentials.
func (c *Client) browserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", scrape.BrowserUserAgent)
	req.Header.Set("Referer", c.webOrigin+"/")
	req.Header.Set("Origin", c.webOrigin)
}

// get performs a single GET with browser headers and an optional OAuth
// token. Non-2xx responses come back as errors with the body attached so
// fallback chains can log and advance.
func (c *Client) get(
	ctx context.Context,
	logger zerolog.Logger,
	reqURL string,
	oauthToken string,
	timeout time.Duration,
) (b []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if nil != err {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.browserHeaders(req)
	if oauthToken != "" {
		req.Header.Set("Authorization", "OAuth "+oauthToken)
	}

	client := http.Client{Timeout: timeout} //nolint:exhaustruct
	resp, err := client.Do(req)
	if nil != err {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			logger.Error().Err(closeErr).Msg("Failed to close response body")
			err = errors.Join(err, fmt.Errorf("close response body: %v", closeErr))
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBytes, readErr := httputil.ReadOptionalResponseBody(resp)
		if nil != readErr {
			return nil, fmt.Errorf("read %d response body: %w", resp.StatusCode, readErr)
		}

		return nil, fmt.Errorf("unexpected response code %d with body: %s", resp.StatusCode, string(respBytes))
	}

	respBytes, err := httputil.ReadResponseBody(resp)
	if nil != err {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return respBytes, nil
}

func (c *Client) apiURL(path string, params url.Values) string {
	u := *c.apiBase
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = params.Encode()

	return u.String()
}

// fetchMediaURL calls a transcoding endpoint and extracts the signed media
// URL from its payload. The URL expires within the playback session and must
// never be cached.
func (c *Client) fetchMediaURL(
	ctx context.Context,
	logger zerolog.Logger,
	endpoint string,
	oauthToken string,
) (string, error) {
	respBytes, err := c.get(ctx, logger, endpoint, oauthToken, c.timeouts.resolveStream)
	if nil != err {
		return "", fmt.Errorf("call transcoding endpoint: %w", err)
	}

	var respBody struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(respBytes, &respBody); nil != err {
		return "", fmt.Errorf("decode transcoding endpoint response: %v", err)
	}

	if respBody.URL == "" {
		return "", fmt.Errorf("transcoding endpoint response carries no media URL: %s", string(respBytes))
	}

	return respBody.URL, nil
}

const trackAuthorizationParam = "track_authorization"

func withClientID(rawURL, clientID string) string {
	u, err := url.Parse(rawURL)
	if nil != err {
		return rawURL
	}

	q := u.Query()
	q.Set("client_id", clientID)
	u.RawQuery = q.Encode()

	return u.String()
}

func withTrackAuthorization(rawURL, authorization string) string {
	u, err := url.Parse(rawURL)
	if nil != err {
		return rawURL
	}

	q := u.Query()
	q.Set(trackAuthorizationParam, authorization)
	u.RawQuery = q.Encode()

	return u.String()
}

func withoutTrackAuthorization(rawURL string) string {
	u, err := url.Parse(rawURL)
	if nil != err {
		return rawURL
	}

	q := u.Query()
	q.Del(trackAuthorizationParam)
	u.RawQuery = q.Encode()

	return u.String()
}

func hasTrackAuthorization(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if nil != err {
		return false
	}

	return u.Query().Has(trackAuthorizationParam)
}
