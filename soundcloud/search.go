package soundcloud

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/xeptore/soundgate/soundcloud/types"
)

const listingLimit = 50

// Search queries the track search endpoint, recovering once from a rotated
// anonymous client id. Results come back ordered by descending play count.
// An empty slice is the only failure signal.
func (c *Client) Search(ctx context.Context, logger zerolog.Logger, query string) []types.Track {
	logger = logger.With().Str("query", query).Logger()

	buildURL := func(clientID string) string {
		params := make(url.Values, 3)
		params.Set("q", query)
		params.Set("limit", strconv.Itoa(listingLimit))
		if clientID != "" {
			params.Set("client_id", clientID)
		}

		return c.apiURL("/search/tracks", params)
	}

	respBytes, _, err := c.getWithRotationRetry(ctx, logger, buildURL, c.timeouts.search)
	if nil != err {
		logger.Warn().Err(err).Msg("Track search failed")
		return nil
	}

	tracks, err := decodeCollection(respBytes)
	if nil != err {
		logger.Warn().Err(err).Msg("Failed to decode track search response")
		return nil
	}

	types.SortByPlays(tracks)

	return tracks
}

// ArtistTracks lists an artist's uploads: fuzzy user lookup first, then the
// user's track listing. Failure at either phase yields an empty slice.
func (c *Client) ArtistTracks(ctx context.Context, logger zerolog.Logger, artistName string) []types.Track {
	logger = logger.With().Str("artist", artistName).Logger()

	buildUserURL := func(clientID string) string {
		params := make(url.Values, 3)
		params.Set("q", artistName)
		params.Set("limit", "1")
		if clientID != "" {
			params.Set("client_id", clientID)
		}

		return c.apiURL("/search/users", params)
	}

	respBytes, goodID, err := c.getWithRotationRetry(ctx, logger, buildUserURL, c.timeouts.userLookup)
	if nil != err {
		logger.Warn().Err(err).Msg("User search failed")
		return nil
	}

	var userBody struct {
		Collection []types.User `json:"collection"`
	}
	if err := json.Unmarshal(respBytes, &userBody); nil != err {
		logger.Warn().Err(err).Msg("Failed to decode user search response")
		return nil
	}

	if len(userBody.Collection) == 0 {
		logger.Debug().Msg("No matching user found")
		return nil
	}
	user := userBody.Collection[0]

	buildTracksURL := func(clientID string) string {
		params := make(url.Values, 2)
		params.Set("limit", strconv.Itoa(listingLimit))
		if clientID != "" {
			params.Set("client_id", clientID)
		}

		return c.apiURL("/users/"+strconv.FormatInt(user.ID, 10)+"/tracks", params)
	}

	token, authed := c.auth.Token(ctx, logger)

	var oauthToken, clientID string
	if authed {
		oauthToken = token
	} else {
		// Carry forward whichever id the lookup phase succeeded with.
		clientID = goodID
	}

	respBytes, err = c.get(ctx, logger, buildTracksURL(clientID), oauthToken, c.timeouts.userTracks)
	if nil != err && !authed {
		// The id can rotate between the two calls. One scraped retry only.
		if fresh, ok := c.scraper.FreshClientID(ctx, logger); ok && fresh != clientID {
			respBytes, err = c.get(ctx, logger, buildTracksURL(fresh), "", c.timeouts.userTracks)
		}
	}
	if nil != err {
		logger.Warn().Err(err).Int64("user_id", user.ID).Msg("User tracks listing failed")
		return nil
	}

	tracks, err := decodeCollection(respBytes)
	if nil != err {
		logger.Warn().Err(err).Msg("Failed to decode user tracks response")
		return nil
	}

	types.SortByPlays(tracks)

	return tracks
}

// getWithRotationRetry performs an API GET, authenticated when a token is
// available. Anonymous non-success triggers the rotation recovery chain:
// once with a freshly scraped id when it differs from the one just rejected,
// then once with the configured fallback id. Never more than that. Returns
// the id the successful anonymous call used so follow-up calls can reuse it.
func (c *Client) getWithRotationRetry(
	ctx context.Context,
	logger zerolog.Logger,
	buildURL func(clientID string) string,
	timeout time.Duration,
) ([]byte, string, error) {
	if token, ok := c.auth.Token(ctx, logger); ok {
		respBytes, err := c.get(ctx, logger, buildURL(""), token, timeout)
		if nil != err {
			return nil, "", fmt.Errorf("authenticated request failed: %w", err)
		}

		return respBytes, "", nil
	}

	clientID := c.anonClientID()
	respBytes, err := c.get(ctx, logger, buildURL(clientID), "", timeout)
	if nil == err {
		return respBytes, clientID, nil
	}

	logger.Debug().Err(err).Msg("Anonymous request rejected, trying a freshly scraped client id")

	errs := []error{err}
	if fresh, ok := c.scraper.FreshClientID(ctx, logger); ok && fresh != clientID {
		respBytes, err := c.get(ctx, logger, buildURL(fresh), "", timeout)
		if nil == err {
			return respBytes, fresh, nil
		}
		errs = append(errs, err)
		clientID = fresh
	}

	if fallback := c.conf.FallbackClientID; fallback != clientID {
		respBytes, err := c.get(ctx, logger, buildURL(fallback), "", timeout)
		if nil == err {
			return respBytes, fallback, nil
		}
		errs = append(errs, err)
	}

	return nil, "", fmt.Errorf("anonymous request failed after client id rotation retries: %w", errors.Join(errs...))
}

func decodeCollection(respBytes []byte) ([]types.Track, error) {
	var respBody struct {
		Collection []types.Track `json:"collection"`
	}
	if err := json.Unmarshal(respBytes, &respBody); nil != err {
		return nil, fmt.Errorf("decode collection response: %v", err)
	}

	return respBody.Collection, nil
}
