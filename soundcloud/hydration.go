package soundcloud

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/xeptore/soundgate/soundcloud/types"
)

// The platform server-renders a bootstrap snapshot into every public page
// for its own web client. That makes it the most churn-resistant surface we
// have: the formal API can reject a request for reasons unrelated to actual
// availability, but this blob has to be served correctly.
var hydrationRe = regexp.MustCompile(`window\.__sc_hydration\s*=\s*(\[.*?\]);`)

// resolveViaHydration reconstructs track and transcoding metadata from a
// track's public permalink page and resolves a media URL from it. Terminal
// fallback of the stream resolution chain.
func (c *Client) resolveViaHydration(
	ctx context.Context,
	logger zerolog.Logger,
	permalinkURL string,
) (string, error) {
	logger = logger.With().Str("permalink_url", permalinkURL).Logger()
	logger.Debug().Msg("Attempting hydration fallback")

	page, err := c.get(ctx, logger, permalinkURL, "", c.timeouts.hydrationPage)
	if nil != err {
		return "", fmt.Errorf("fetch permalink page: %w", err)
	}

	clientID, track := parseHydration(page)

	if track == nil || !track.HasTranscodings() {
		logger.Debug().Msg("Hydration blob lacks usable track data, falling back to the API")

		if clientID == "" {
			clientID = c.scrapedOrFallbackID(ctx, logger)
		}

		track = c.resolveOrSearchTrack(ctx, logger, permalinkURL, &clientID)
	}

	if track == nil || !track.HasTranscodings() {
		return "", errors.New("no usable transcoding metadata from hydration, resolve, or search")
	}

	if clientID == "" {
		clientID = c.scrapedOrFallbackID(ctx, logger)
	}

	for _, tc := range types.RankTranscodings(track.Media.Transcodings) {
		endpoint := withClientID(tc.URL, clientID)
		if track.TrackAuthorization != "" {
			endpoint = withTrackAuthorization(endpoint, track.TrackAuthorization)
		}

		logger.
			Debug().
			Str("protocol", tc.Format.Protocol).
			Str("mime_type", tc.Format.MimeType).
			Msg("Testing transcoding")

		mediaURL, err := c.fetchMediaURL(ctx, logger, endpoint, "")
		if nil == err {
			return mediaURL, nil
		}
		logger.Debug().Err(err).Msg("Transcoding call failed")

		// A stale or over-scoped authorization can poison an otherwise
		// working endpoint. Retry bare before moving down the ranking.
		if hasTrackAuthorization(endpoint) {
			mediaURL, err := c.fetchMediaURL(ctx, logger, withoutTrackAuthorization(endpoint), "")
			if nil == err {
				return mediaURL, nil
			}
			logger.Debug().Err(err).Msg("Transcoding call without track authorization failed")
		}
	}

	return "", errors.New("no transcoding yielded a media URL")
}

// parseHydration extracts the embedded bootstrap array and pulls out the
// api-client entry (anonymous client id) and the sound entry (track record).
// Either may be absent; extraction failures degrade to zero values.
func parseHydration(page []byte) (clientID string, track *types.Track) {
	m := hydrationRe.FindSubmatch(page)
	if m == nil {
		return "", nil
	}

	parsed := gjson.ParseBytes(m[1])
	if !parsed.IsArray() {
		return "", nil
	}

	for _, item := range parsed.Array() {
		switch item.Get("hydratable").Str {
		case "apiClient":
			if id := item.Get("data.client_id").Str; id != "" {
				clientID = id
			} else if id := item.Get("data.id").Str; id != "" {
				clientID = id
			}
		case "sound":
			data := item.Get("data")
			if !data.Exists() {
				continue
			}
			var t types.Track
			if err := json.Unmarshal([]byte(data.Raw), &t); nil == err && t.ID != 0 {
				track = &t
			}
		default:
		}
	}

	return clientID, track
}

// resolveOrSearchTrack is the secondary recovery path for pages whose
// hydration blob is incomplete (common for geo- or auth-restricted tracks):
// the formal resolve endpoint first, once more with a freshly scraped client
// id, and as a last resort a track search derived from the permalink path.
// The client id that ends up working is written back through clientID.
func (c *Client) resolveOrSearchTrack(
	ctx context.Context,
	logger zerolog.Logger,
	permalinkURL string,
	clientID *string,
) *types.Track {
	buildResolveURL := func(id string) string {
		params := make(url.Values, 2)
		params.Set("url", permalinkURL)
		params.Set("client_id", id)

		return c.apiURL("/resolve", params)
	}

	respBytes, err := c.get(ctx, logger, buildResolveURL(*clientID), "", c.timeouts.resolveStream)
	if nil != err {
		logger.Debug().Err(err).Msg("API resolve failed, trying a freshly scraped client id")

		if fresh, ok := c.scraper.FreshClientID(ctx, logger); ok && fresh != *clientID {
			*clientID = fresh
			respBytes, err = c.get(ctx, logger, buildResolveURL(fresh), "", c.timeouts.resolveStream)
		}
	}

	if nil == err {
		var t types.Track
		if err := json.Unmarshal(respBytes, &t); nil == err && t.ID != 0 {
			return &t
		}
		logger.Debug().Msg("API resolve returned no decodable track")
	}

	query := queryFromPermalink(permalinkURL)
	if query == "" {
		return nil
	}
	logger.Debug().Str("query", query).Msg("API resolve failed, trying search fallback")

	params := make(url.Values, 3)
	params.Set("q", query)
	params.Set("client_id", *clientID)
	params.Set("limit", "5")

	respBytes, err = c.get(ctx, logger, c.apiURL("/search/tracks", params), "", c.timeouts.search)
	if nil != err {
		logger.Debug().Err(err).Msg("Search fallback failed")
		return nil
	}

	tracks, err := decodeCollection(respBytes)
	if nil != err || len(tracks) == 0 {
		return nil
	}

	if exact, ok := lo.Find(tracks, func(t types.Track) bool { return t.PermalinkURL == permalinkURL }); ok {
		return &exact
	}

	logger.Debug().Msg("No exact permalink match, using first search result")

	return &tracks[0]
}

// scrapedOrFallbackID covers the client id tiers below the page-discovered
// one: a scraped value, else the configured known-good fallback.
func (c *Client) scrapedOrFallbackID(ctx context.Context, logger zerolog.Logger) string {
	if id, ok := c.scraper.ClientID(ctx, logger); ok {
		return id
	}

	return c.conf.FallbackClientID
}

// queryFromPermalink derives a search query from the permalink's last two
// path segments, hyphens replaced with spaces.
func queryFromPermalink(permalinkURL string) string {
	u, err := url.Parse(permalinkURL)
	if nil != err {
		return ""
	}

	segments := lo.Filter(strings.Split(u.Path, "/"), func(s string, _ int) bool { return s != "" })
	if len(segments) > 2 {
		segments = segments[len(segments)-2:]
	}

	return strings.ReplaceAll(strings.Join(segments, " "), "-", " ")
}
