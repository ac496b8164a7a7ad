// Package scrape recovers the platform's rotating anonymous client id from
// its public web assets. The id is embedded as a literal in one of the
// homepage's bundled scripts; nothing about the page structure is versioned
// or documented, so every extraction degrades to "not found" rather than
// erroring past the package boundary.
package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/net/html"

	"github.com/xeptore/soundgate/config"
	"github.com/xeptore/soundgate/httputil"
	"github.com/xeptore/soundgate/must"
	"github.com/xeptore/soundgate/ratelimit"
)

// BrowserUserAgent is sent on every page and asset fetch. The platform's
// edge rejects default Go and script-like user agents outright.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const cacheKey = "client_id"

// The platform has shipped both literal forms over time.
var (
	clientIDColonRe = regexp.MustCompile(`client_id:"([a-zA-Z0-9]{32})"`)
	clientIDEqualRe = regexp.MustCompile(`client_id=([a-zA-Z0-9]{32})`)
)

type Scraper struct {
	homepage      *url.URL
	origin        string
	assetHosts    []string
	pageTimeout   time.Duration
	scriptTimeout time.Duration
	cacheTTL      time.Duration
	limiter       *ratelimit.Limiter
	cache         *ccache.Cache[string]
	mux           sync.Mutex
}

func New(conf config.SoundCloud) *Scraper {
	homepage, err := url.Parse(conf.WebOrigin + "/")
	must.NilErr(err) // validated at config load

	return &Scraper{
		homepage:      homepage,
		origin:        homepage.Scheme + "://" + homepage.Host,
		assetHosts:    conf.Scrape.AssetHosts,
		pageTimeout:   time.Duration(conf.Timeouts.ScrapePage) * time.Second,
		scriptTimeout: time.Duration(conf.Timeouts.ScrapeScript) * time.Second,
		cacheTTL:      time.Duration(conf.Scrape.CacheTTL) * time.Second,
		limiter:       ratelimit.NewPerSecond(conf.Scrape.RatePerSecond),
		cache: ccache.New(
			ccache.Configure[string]().
				MaxSize(4).
				GetsPerPromote(3).
				ItemsToPrune(1),
		),
		mux: sync.Mutex{},
	}
}

// ClientID returns a scraped anonymous client id, memoized for a short TTL
// so hot call chains do not re-crawl the homepage. A false return pushes the
// caller to its next fallback tier.
func (s *Scraper) ClientID(ctx context.Context, logger zerolog.Logger) (string, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()

	item, err := s.cache.Fetch(cacheKey, s.cacheTTL, func() (string, error) {
		return s.scrape(ctx, logger)
	})
	if nil != err {
		logger.Warn().Err(err).Msg("Client id scrape failed")
		return "", false
	}

	return item.Value(), true
}

// FreshClientID bypasses the memoized value and re-crawls. Used when an id
// that worked moments ago starts returning 401s, which is how the platform
// signals rotation.
func (s *Scraper) FreshClientID(ctx context.Context, logger zerolog.Logger) (string, bool) {
	id, err := s.scrape(ctx, logger)
	if nil != err {
		logger.Warn().Err(err).Msg("Fresh client id scrape failed")
		return "", false
	}

	s.mux.Lock()
	s.cache.Set(cacheKey, id, s.cacheTTL)
	s.mux.Unlock()

	return id, true
}

func (s *Scraper) scrape(ctx context.Context, logger zerolog.Logger) (string, error) {
	page, err := s.fetch(ctx, s.homepage.String(), s.pageTimeout)
	if nil != err {
		return "", fmt.Errorf("fetch homepage: %w", err)
	}

	candidates := lo.Filter(ExtractScriptSrcs(page), func(src string, _ int) bool {
		return s.isAssetScript(src)
	})
	if len(candidates) == 0 {
		return "", errors.New("homepage references no candidate asset scripts")
	}

	for _, src := range candidates {
		abs, err := s.absoluteURL(src)
		if nil != err {
			logger.Debug().Err(err).Str("src", src).Msg("Skipping unparsable script src")
			continue
		}

		script, err := s.fetch(ctx, abs, s.scriptTimeout)
		if nil != err {
			logger.Debug().Err(err).Str("src", abs).Msg("Skipping unfetchable script")
			continue
		}

		if id, ok := ExtractClientID(script); ok {
			logger.Debug().Str("src", abs).Msg("Scraped client id from asset script")
			return id, nil
		}
	}

	return "", errors.New("no candidate script yielded a client id")
}

func (s *Scraper) fetch(ctx context.Context, reqURL string, timeout time.Duration) (b []byte, err error) {
	if err := s.limiter.Wait(ctx); nil != err {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if nil != err {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Referer", s.origin+"/")
	req.Header.Set("Origin", s.origin)

	client := http.Client{Timeout: timeout} //nolint:exhaustruct
	resp, err := client.Do(req)
	if nil != err {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("close response body: %v", closeErr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected response code %d", resp.StatusCode)
	}

	respBytes, err := httputil.ReadResponseBody(resp)
	if nil != err {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return respBytes, nil
}

func (s *Scraper) isAssetScript(src string) bool {
	return lo.SomeBy(s.assetHosts, func(h string) bool {
		return strings.Contains(src, h)
	})
}

func (s *Scraper) absoluteURL(src string) (string, error) {
	u, err := url.Parse(src)
	if nil != err {
		return "", fmt.Errorf("parse script src: %v", err)
	}

	return s.homepage.ResolveReference(u).String(), nil
}

// ExtractScriptSrcs collects the src attribute of every script tag in the
// document. Tolerates the tag soup a real homepage serves.
func ExtractScriptSrcs(page []byte) []string {
	var srcs []string
	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return srcs
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "script" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "src" && len(val) > 0 {
					srcs = append(srcs, string(val))
				}
				if !more {
					break
				}
			}
		default:
		}
	}
}

// ExtractClientID matches the embedded client id literal in a bundled
// script, in either form the platform has used.
func ExtractClientID(script []byte) (string, bool) {
	if m := clientIDColonRe.FindSubmatch(script); m != nil {
		return string(m[1]), true
	}

	if m := clientIDEqualRe.FindSubmatch(script); m != nil {
		return string(m[1]), true
	}

	return "", false
}
