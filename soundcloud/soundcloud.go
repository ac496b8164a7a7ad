// Package soundcloud resolves tracks hosted on the platform into short-lived
// directly playable media URLs. The platform's public API surface is
// undocumented and rotates its anonymous credential without notice, so every
// operation is built as a fallback chain and no failure ever crosses the
// package boundary as an error: callers get usable data, or an empty result.
package soundcloud

import (
	"net/url"
	"strings"
	"time"

	"github.com/xeptore/soundgate/config"
	"github.com/xeptore/soundgate/must"
	"github.com/xeptore/soundgate/soundcloud/auth"
	"github.com/xeptore/soundgate/soundcloud/scrape"
)

type timeouts struct {
	search        time.Duration
	userLookup    time.Duration
	userTracks    time.Duration
	resolveStream time.Duration
	hydrationPage time.Duration
}

type Client struct {
	conf      config.SoundCloud
	auth      *auth.Auth
	scraper   *scrape.Scraper
	apiBase   *url.URL
	webOrigin string
	timeouts  timeouts
}

func NewClient(conf config.SoundCloud) *Client {
	apiBase, err := url.Parse(conf.APIBase)
	must.NilErr(err) // validated at config load

	return &Client{
		conf:      conf,
		auth:      auth.New(conf),
		scraper:   scrape.New(conf),
		apiBase:   apiBase,
		webOrigin: strings.TrimSuffix(conf.WebOrigin, "/"),
		timeouts: timeouts{
			search:        time.Duration(conf.Timeouts.Search) * time.Second,
			userLookup:    time.Duration(conf.Timeouts.UserLookup) * time.Second,
			userTracks:    time.Duration(conf.Timeouts.UserTracks) * time.Second,
			resolveStream: time.Duration(conf.Timeouts.ResolveStream) * time.Second,
			hydrationPage: time.Duration(conf.Timeouts.HydrationPage) * time.Second,
		},
	}
}

// anonClientID is the first tier of the anonymous client id chain: the
// explicitly configured value when present, else the known-good fallback.
func (c *Client) anonClientID() string {
	if c.conf.ClientID != "" {
		return c.conf.ClientID
	}

	return c.conf.FallbackClientID
}
