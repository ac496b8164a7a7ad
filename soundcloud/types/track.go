package types

import (
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

const (
	ProtocolHLS         = "hls"
	ProtocolProgressive = "progressive"
)

type TranscodingFormat struct {
	Protocol string `json:"protocol"`
	MimeType string `json:"mime_type"`
}

// Transcoding is one delivery variant of a track. Its URL is an API endpoint,
// not media: it still needs a client id (and possibly a track authorization)
// appended, and a call to it yields the short-lived signed media URL.
type Transcoding struct {
	URL    string            `json:"url"`
	Preset string            `json:"preset"`
	Format TranscodingFormat `json:"format"`
}

// score ranks delivery variants: HLS MP3 is the most compatible and seeks
// best, HLS Opus is higher quality, progressive is the least reliable.
func (t Transcoding) score() int {
	switch {
	case t.Format.Protocol == ProtocolHLS && strings.Contains(t.Format.MimeType, "mpeg"):
		return 3
	case t.Format.Protocol == ProtocolHLS && strings.Contains(t.Format.MimeType, "opus"):
		return 2
	case t.Format.Protocol == ProtocolProgressive:
		return 1
	default:
		return 0
	}
}

// RankTranscodings returns a copy sorted by descending preference.
func RankTranscodings(ts []Transcoding) []Transcoding {
	ranked := slices.Clone(ts)
	slices.SortStableFunc(ranked, func(a, b Transcoding) int { return b.score() - a.score() })

	return ranked
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

type Media struct {
	Transcodings []Transcoding `json:"transcodings"`
}

// Track mirrors the platform's track record. It is constructed fresh per
// response and never mutated afterwards.
type Track struct {
	ID                 int64  `json:"id"`
	Title              string `json:"title"`
	User               User   `json:"user"`
	Duration           int64  `json:"duration"` // milliseconds
	ArtworkURL         string `json:"artwork_url"`
	PermalinkURL       string `json:"permalink_url"`
	PlaybackCount      int64  `json:"playback_count"`
	TrackAuthorization string `json:"track_authorization"`
	Policy             string `json:"policy"`
	Media              Media  `json:"media"`
}

func (t Track) ToDict() *zerolog.Event {
	return zerolog.
		Dict().
		Int64("id", t.ID).
		Str("title", t.Title).
		Str("artist", t.User.Username).
		Str("permalink_url", t.PermalinkURL).
		Int64("playback_count", t.PlaybackCount).
		Int("transcodings", len(t.Media.Transcodings))
}

func (t Track) DurationSeconds() int64 {
	return t.Duration / 1000
}

// HasTranscodings reports whether the track carries enough media metadata to
// attempt stream resolution.
func (t Track) HasTranscodings() bool {
	return len(t.Media.Transcodings) > 0
}

// BestTranscodingURL picks the highest ranked transcoding endpoint and
// appends the track authorization when the track carries one. The returned
// URL is not playable until resolved to a media URL.
func (t Track) BestTranscodingURL() (string, bool) {
	if !t.HasTranscodings() {
		return "", false
	}

	u := RankTranscodings(t.Media.Transcodings)[0].URL
	if t.TrackAuthorization != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "track_authorization=" + t.TrackAuthorization
	}

	return u, true
}

// Permalink returns the track's public page URL, synthesizing one from
// artist and title slugs when the platform did not provide it.
func (t Track) Permalink(webOrigin string) string {
	if t.PermalinkURL != "" {
		return t.PermalinkURL
	}

	artist := Slugify(t.User.Username)
	title := Slugify(t.Title)
	if artist == "" || title == "" {
		return ""
	}

	return strings.TrimSuffix(webOrigin, "/") + "/" + artist + "/" + title
}

// SortByPlays orders tracks by descending playback count in place. Display
// quality only; callers must not rely on it for correctness.
func SortByPlays(tracks []Track) {
	slices.SortStableFunc(tracks, func(a, b Track) int {
		switch {
		case a.PlaybackCount > b.PlaybackCount:
			return -1
		case a.PlaybackCount < b.PlaybackCount:
			return 1
		default:
			return 0
		}
	})
}

// Slugify reduces a display string to the lowercase hyphenated form the
// platform uses in permalink path segments.
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	return strings.Trim(b.String(), "-")
}
