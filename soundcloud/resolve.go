package soundcloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xeptore/soundgate/result"
	"github.com/xeptore/soundgate/soundcloud/types"
)

var (
	errNoAccessToken        = errors.New("no valid access token available")
	errNoTrackAuthorization = errors.New("endpoint carries no track authorization to strip")
	errNoPermalink          = errors.New("no permalink available for hydration fallback")
)

type strategy struct {
	name string
	run  func(ctx context.Context, logger zerolog.Logger) result.Of[string]
}

// ResolveStreamURL turns a transcoding endpoint into a short-lived playable
// media URL by walking a fixed strategy chain, strictly sequentially,
// stopping at the first success. A false return means the track is currently
// unplayable; it is an expected outcome, not a fault. The resolved URL must
// be used for this playback session only and re-resolved for the next.
func (c *Client) ResolveStreamURL(
	ctx context.Context,
	logger zerolog.Logger,
	transcodingURL string,
	permalinkURL string,
) (string, bool) {
	token, authed := c.auth.Token(ctx, logger)

	strategies := []strategy{
		{
			name: "authenticated",
			run: func(ctx context.Context, logger zerolog.Logger) result.Of[string] {
				if !authed {
					return result.Err[string](errNoAccessToken)
				}

				mediaURL, err := c.fetchMediaURL(ctx, logger, transcodingURL, token)
				if nil != err {
					return result.Err[string](err)
				}

				return result.Ok(&mediaURL)
			},
		},
		{
			name: "public-client-id",
			run: func(ctx context.Context, logger zerolog.Logger) result.Of[string] {
				endpoint := withClientID(transcodingURL, c.conf.FallbackClientID)
				mediaURL, err := c.fetchMediaURL(ctx, logger, endpoint, "")
				if nil != err {
					return result.Err[string](err)
				}

				return result.Ok(&mediaURL)
			},
		},
		{
			name: "strip-authorization",
			run: func(ctx context.Context, logger zerolog.Logger) result.Of[string] {
				if !hasTrackAuthorization(transcodingURL) {
					return result.Err[string](errNoTrackAuthorization)
				}

				endpoint := withoutTrackAuthorization(withClientID(transcodingURL, c.conf.FallbackClientID))
				mediaURL, err := c.fetchMediaURL(ctx, logger, endpoint, "")
				if nil != err {
					return result.Err[string](err)
				}

				return result.Ok(&mediaURL)
			},
		},
		{
			name: "hydration",
			run: func(ctx context.Context, logger zerolog.Logger) result.Of[string] {
				if permalinkURL == "" {
					return result.Err[string](errNoPermalink)
				}

				mediaURL, err := c.resolveViaHydration(ctx, logger, permalinkURL)
				if nil != err {
					return result.Err[string](fmt.Errorf("hydration fallback: %w", err))
				}

				return result.Ok(&mediaURL)
			},
		},
	}

	return c.tryStrategies(ctx, logger, strategies)
}

// ResolveTrackStream resolves a stream for a track descriptor: best ranked
// transcoding, authorization attached when the track carries one, permalink
// synthesized from artist and title slugs when the platform omitted it.
func (c *Client) ResolveTrackStream(
	ctx context.Context,
	logger zerolog.Logger,
	track types.Track,
) (string, bool) {
	endpoint, ok := track.BestTranscodingURL()
	if !ok {
		logger.Warn().Dict("track", track.ToDict()).Msg("Track carries no transcodings")
		return "", false
	}

	return c.ResolveStreamURL(ctx, logger, endpoint, track.Permalink(c.webOrigin))
}

// tryStrategies is the single fallback driver: attempt each strategy once,
// in order, never speculatively in parallel, and stop at the first success.
func (c *Client) tryStrategies(
	ctx context.Context,
	logger zerolog.Logger,
	strategies []strategy,
) (string, bool) {
	for _, s := range strategies {
		if err := ctx.Err(); nil != err {
			logger.Warn().Err(err).Msg("Stream resolution canceled")
			return "", false
		}

		r := s.run(ctx, logger)
		if !r.Ok() {
			logger.Warn().Err(r.Err()).Str("strategy", s.name).Msg("Stream resolution strategy failed")
			continue
		}

		mediaURL := *r.Unwrap()
		logger.Debug().Str("strategy", s.name).Msg("Stream resolved")

		return mediaURL, true
	}

	logger.Warn().Msg("All stream resolution strategies failed")

	return "", false
}
