package scrape_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/soundgate/config"
	"github.com/xeptore/soundgate/soundcloud/scrape"
)

const testClientID = "AbCdEfGhIjKlMnOpQrStUvWxYz012345"

func TestExtractClientID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		script string
		want   string
		ok     bool
	}{
		{
			name:   "colon form",
			script: `var x=1;n.exports={client_id:"` + testClientID + `",env:"production"}`,
			want:   testClientID,
			ok:     true,
		},
		{
			name:   "equal form",
			script: `u="/tracks?client_id=` + testClientID + `&limit=10"`,
			want:   testClientID,
			ok:     true,
		},
		{
			name:   "too short",
			script: `client_id:"abc123"`,
			want:   "",
			ok:     false,
		},
		{
			name:   "absent",
			script: `console.log("nothing to see")`,
			want:   "",
			ok:     false,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			got, ok := scrape.ExtractClientID([]byte(test.script))
			assert.Exactly(t, test.ok, ok)
			assert.Exactly(t, test.want, got)
		})
	}
}

func TestExtractScriptSrcs(t *testing.T) {
	t.Parallel()

	page := `<!doctype html>
<html>
<head>
<script src="https://a-v2.sndcdn.com/assets/0-first.js"></script>
<script>inline();</script>
<script crossorigin src="/assets/1-second.js"></script>
</head>
<body><p>hello</p></body>
</html>`

	srcs := scrape.ExtractScriptSrcs([]byte(page))
	assert.Exactly(t, []string{"https://a-v2.sndcdn.com/assets/0-first.js", "/assets/1-second.js"}, srcs)
}

func newScrapeServer(t *testing.T, pageFetches, scriptFetches *atomic.Int64, id string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		pageFetches.Add(1)
		require.NotContains(t, r.Header.Get("User-Agent"), "Go-http-client")
		fmt.Fprintf(w, `<html><head>
<script src="/unrelated/vendor.js"></script>
<script src="%s/assets/2-app.js"></script>
</head></html>`, srv.URL)
	})
	mux.HandleFunc("/unrelated/vendor.js", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("non-asset script must not be fetched")
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/assets/2-app.js", func(w http.ResponseWriter, _ *http.Request) {
		scriptFetches.Add(1)
		fmt.Fprintf(w, `!function(){var e={client_id:"%s"}}();`, id)
	})

	return srv
}

func scraperConf(origin string, cacheTTL int) config.SoundCloud {
	//nolint:exhaustruct
	return config.SoundCloud{
		WebOrigin: origin,
		Scrape: config.Scrape{
			AssetHosts:    []string{"/assets/"},
			CacheTTL:      cacheTTL,
			RatePerSecond: 100,
		},
		Timeouts: config.SCTimeouts{ScrapePage: 5, ScrapeScript: 5}, //nolint:exhaustruct
	}
}

func TestClientIDScrapeAndMemoize(t *testing.T) {
	t.Parallel()

	var pageFetches, scriptFetches atomic.Int64
	srv := newScrapeServer(t, &pageFetches, &scriptFetches, testClientID)

	s := scrape.New(scraperConf(srv.URL, 600))
	logger := zerolog.Nop()

	id, ok := s.ClientID(t.Context(), logger)
	require.True(t, ok)
	assert.Exactly(t, testClientID, id)

	again, ok := s.ClientID(t.Context(), logger)
	require.True(t, ok)
	assert.Exactly(t, id, again)

	// Second lookup comes from the cache.
	assert.Exactly(t, int64(1), pageFetches.Load())
	assert.Exactly(t, int64(1), scriptFetches.Load())
}

func TestFreshClientIDBypassesCache(t *testing.T) {
	t.Parallel()

	var pageFetches, scriptFetches atomic.Int64
	srv := newScrapeServer(t, &pageFetches, &scriptFetches, testClientID)

	s := scrape.New(scraperConf(srv.URL, 600))
	logger := zerolog.Nop()

	_, ok := s.ClientID(t.Context(), logger)
	require.True(t, ok)

	_, ok = s.FreshClientID(t.Context(), logger)
	require.True(t, ok)

	assert.Exactly(t, int64(2), pageFetches.Load())
}

func TestClientIDScrapeFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	s := scrape.New(scraperConf(srv.URL, 600))

	id, ok := s.ClientID(t.Context(), zerolog.Nop())
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestClientIDNoCandidateScripts(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><script src="/unrelated/vendor.js"></script></head></html>`)
	}))
	t.Cleanup(srv.Close)

	s := scrape.New(scraperConf(srv.URL, 600))

	_, ok := s.ClientID(t.Context(), zerolog.Nop())
	assert.False(t, ok)
}
