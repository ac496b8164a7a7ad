package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/xeptore/soundgate/redact"
)

// FallbackPublicClientID is a public web client id known to work as of 2025.
// It is the last tier of the client id fallback chain and is intentionally
// overridable via the fallback_client_id config key.
const FallbackPublicClientID = "CkCiIyf14rHi27fhk7HxhPOzc85okfSJ"

type Config struct {
	Log        Log        `yaml:"log"`
	SoundCloud SoundCloud `yaml:"soundcloud"`
}

func (c *Config) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Dict("log", c.Log.ToDict()).
		Dict("soundcloud", c.SoundCloud.ToDict())
}

func (c *Config) setDefaults() {
	c.Log.setDefaults()
	c.SoundCloud.setDefaults()
}

func (c *Config) validate() error {
	if err := c.Log.validate(); nil != err {
		return fmt.Errorf("log config validation failed: %v", err)
	}

	if err := c.SoundCloud.validate(); nil != err {
		return fmt.Errorf("soundcloud config validation failed: %v", err)
	}

	return nil
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Log) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("level", c.Level).
		Str("format", c.Format)
}

func (c *Log) setDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}

	if c.Format == "" {
		c.Format = "pretty"
	}
}

func (c *Log) validate() error {
	if !slices.Contains([]string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}, c.Level) {
		return fmt.Errorf(
			"level must be one of: trace, debug, info, warn, error, fatal, panic, got: %s",
			c.Level,
		)
	}

	if !slices.Contains([]string{"json", "pretty"}, c.Format) {
		return fmt.Errorf("format must be 'json' or 'pretty', got: %s", c.Format)
	}

	return nil
}

type SoundCloud struct {
	ClientID         string     `yaml:"client_id"`
	ClientSecret     string     `yaml:"-"`
	FallbackClientID string     `yaml:"fallback_client_id"`
	TokenURL         string     `yaml:"token_url"`
	APIBase          string     `yaml:"api_base"`
	WebOrigin        string     `yaml:"web_origin"`
	Scrape           Scrape     `yaml:"scrape"`
	Timeouts         SCTimeouts `yaml:"timeouts"`
}

func (c *SoundCloud) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("client_id", c.ClientID).
		Str("client_secret", redact.String(c.ClientSecret)).
		Str("fallback_client_id", redact.String(c.FallbackClientID)).
		Str("token_url", c.TokenURL).
		Str("api_base", c.APIBase).
		Str("web_origin", c.WebOrigin).
		Dict("scrape", c.Scrape.ToDict()).
		Dict("timeouts", c.Timeouts.ToDict())
}

func (c *SoundCloud) setDefaults() {
	if c.FallbackClientID == "" {
		c.FallbackClientID = FallbackPublicClientID
	}

	if c.TokenURL == "" {
		c.TokenURL = "https://secure.soundcloud.com/oauth/token"
	}

	if c.APIBase == "" {
		c.APIBase = "https://api-v2.soundcloud.com"
	}

	if c.WebOrigin == "" {
		c.WebOrigin = "https://soundcloud.com"
	}

	c.Scrape.setDefaults()
	c.Timeouts.setDefaults()
}

func (c *SoundCloud) validate() error {
	for k, v := range map[string]string{
		"token_url":  c.TokenURL,
		"api_base":   c.APIBase,
		"web_origin": c.WebOrigin,
	} {
		if u, err := url.Parse(v); nil != err {
			return fmt.Errorf("%s is not a valid URL: %v", k, err)
		} else if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got: %s", k, v)
		}
	}

	if err := c.Scrape.validate(); nil != err {
		return fmt.Errorf("scrape config validation failed: %v", err)
	}

	if err := c.Timeouts.validate(); nil != err {
		return fmt.Errorf("timeouts config validation failed: %v", err)
	}

	return nil
}

type Scrape struct {
	AssetHosts    []string `yaml:"asset_hosts"`
	CacheTTL      int      `yaml:"cache_ttl"`
	RatePerSecond int      `yaml:"rate_per_second"`
}

func (c *Scrape) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Strs("asset_hosts", c.AssetHosts).
		Int("cache_ttl", c.CacheTTL).
		Int("rate_per_second", c.RatePerSecond)
}

func (c *Scrape) setDefaults() {
	if len(c.AssetHosts) == 0 {
		c.AssetHosts = []string{"sndcdn.com/assets/", "sndcdn.com/app"}
	}

	if c.CacheTTL == 0 {
		c.CacheTTL = 600
	}

	if c.RatePerSecond == 0 {
		c.RatePerSecond = 4
	}
}

func (c *Scrape) validate() error {
	if c.CacheTTL < 0 {
		return errors.New("cache_ttl must be greater than 0")
	}

	if c.RatePerSecond < 0 {
		return errors.New("rate_per_second must be greater than 0")
	}

	return nil
}

type SCTimeouts struct {
	TokenExchange int `yaml:"token_exchange"`
	Search        int `yaml:"search"`
	UserLookup    int `yaml:"user_lookup"`
	UserTracks    int `yaml:"user_tracks"`
	ResolveStream int `yaml:"resolve_stream"`
	ScrapePage    int `yaml:"scrape_page"`
	ScrapeScript  int `yaml:"scrape_script"`
	HydrationPage int `yaml:"hydration_page"`
}

func (c *SCTimeouts) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Int("token_exchange", c.TokenExchange).
		Int("search", c.Search).
		Int("user_lookup", c.UserLookup).
		Int("user_tracks", c.UserTracks).
		Int("resolve_stream", c.ResolveStream).
		Int("scrape_page", c.ScrapePage).
		Int("scrape_script", c.ScrapeScript).
		Int("hydration_page", c.HydrationPage)
}

func (c *SCTimeouts) setDefaults() {
	if c.TokenExchange == 0 {
		c.TokenExchange = 10
	}

	if c.Search == 0 {
		c.Search = 15
	}

	if c.UserLookup == 0 {
		c.UserLookup = 10
	}

	if c.UserTracks == 0 {
		c.UserTracks = 15
	}

	if c.ResolveStream == 0 {
		c.ResolveStream = 10
	}

	if c.ScrapePage == 0 {
		c.ScrapePage = 10
	}

	if c.ScrapeScript == 0 {
		c.ScrapeScript = 10
	}

	if c.HydrationPage == 0 {
		c.HydrationPage = 15
	}
}

func (c *SCTimeouts) validate() error {
	if c.TokenExchange < 0 {
		return errors.New("token_exchange must be greater than 0")
	}

	if c.Search < 0 {
		return errors.New("search must be greater than 0")
	}

	if c.UserLookup < 0 {
		return errors.New("user_lookup must be greater than 0")
	}

	if c.UserTracks < 0 {
		return errors.New("user_tracks must be greater than 0")
	}

	if c.ResolveStream < 0 {
		return errors.New("resolve_stream must be greater than 0")
	}

	if c.ScrapePage < 0 {
		return errors.New("scrape_page must be greater than 0")
	}

	if c.ScrapeScript < 0 {
		return errors.New("scrape_script must be greater than 0")
	}

	if c.HydrationPage < 0 {
		return errors.New("hydration_page must be greater than 0")
	}

	return nil
}

func Load(filename string) (*Config, error) {
	var conf Config

	data, err := os.ReadFile(lo.Ternary(len(filename) > 0, filename, "config.yaml"))
	switch {
	case nil == err:
		if err := yaml.Unmarshal(data, &conf); nil != err {
			return nil, fmt.Errorf("failed to parse config file %s: %v", filename, err)
		}
	case errors.Is(err, os.ErrNotExist) && filename == "":
		// Running without a config file is fine. Defaults cover everything
		// except the optional registered-app credentials.
	default:
		return nil, fmt.Errorf("failed to read config file %s: %v", filename, err)
	}

	conf.SoundCloud.ClientSecret = os.Getenv("SOUNDCLOUD_CLIENT_SECRET")
	conf.setDefaults()

	if err := conf.validate(); nil != err {
		return nil, fmt.Errorf("configuration validation failed: %v", err)
	}

	return &conf, nil
}
