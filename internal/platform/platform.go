// Package platform implements the per-source adapters that turn a submitted
// URL into canonical artwork records, tags, a caption, and downloaded files.
// The adapter set is closed: a URL classifies to exactly one Kind, with
// KindGeneric as the fallback.
package platform

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/NahidaBot/Nahida-Picbot/internal/artwork"
	"github.com/NahidaBot/Nahida-Picbot/internal/config"
)

// ErrExtraction marks a source-side failure: unreachable host, malformed
// response, or a non-zero extractor exit. Callers convert it into a failed
// result with fixed user-facing text and never surface it raw.
var ErrExtraction = errors.New("extraction failed")

// Kind identifies one platform adapter variant.
type Kind int

const (
	KindGeneric Kind = iota
	KindPixiv
	KindTwitter
	KindMiyoushe
	KindBilibili
)

// String returns the persisted platform name for a Kind.
func (k Kind) String() string {
	switch k {
	case KindPixiv:
		return "pixiv"
	case KindTwitter:
		return "twitter"
	case KindMiyoushe:
		return "miyoushe"
	case KindBilibili:
		return "bilibili"
	default:
		return "generic"
	}
}

var pixivBareID = regexp.MustCompile(`^[1-9]\d*$`)

// Classify maps a submission string onto an adapter Kind. A bare numeric
// token is treated as a pixiv illustration id.
func Classify(url string) Kind {
	switch {
	case strings.Contains(url, "pixiv.net") || pixivBareID.MatchString(url):
		return KindPixiv
	case strings.Contains(url, "twitter.com") || strings.Contains(url, "x.com"):
		return KindTwitter
	case strings.Contains(url, "miyoushe.com"),
		strings.Contains(url, "bbs.mihoyo"),
		strings.Contains(url, "hoyolab"):
		return KindMiyoushe
	case strings.Contains(url, "bilibili.com"):
		return KindBilibili
	default:
		return KindGeneric
	}
}

// RawPage is one normalized page of extracted metadata.
type RawPage struct {
	URL       string
	ThumbURL  string
	Extension string
	Width     int
	Height    int
	Size      int64

	// Info keeps the source-specific page blob for the raw_info column.
	Info map[string]any
}

// RawInfo is the normalized extraction result for one work.
type RawInfo struct {
	WorkID    string
	URL       string
	Title     string
	Author    string
	AuthorID  string
	AuthorURL string
	// Description is longer source text (tweet body, post content); shown in
	// the expandable caption block when present.
	Description string
	CreatedAt   time.Time
	// Explicit is the platform-native explicit-content flag.
	Explicit bool
	// AIGenerated is the platform-native AI flag, where the source exposes one.
	AIGenerated bool
	Tags        []string
	Pages       []RawPage

	Meta map[string]any
}

// TagSet is the derived classification for one submission.
type TagSet struct {
	Curated []string
	Raw     []string
	AIGC    bool
	NSFW    bool
}

// Store is the dedup/cache lookup surface adapters delegate to.
type Store interface {
	FindCanonical(platform, workID string) (*artwork.Artwork, error)
	GetPages(platform, workID string) ([]*artwork.Artwork, error)
}

// Adapter is the capability set shared by all platform variants.
type Adapter interface {
	Kind() Kind

	// Extract fetches raw metadata and the page list for a URL.
	Extract(ctx context.Context, url string) (*RawInfo, error)

	// BuildRecords maps extracted metadata onto canonical page records,
	// honoring an optional page subset from the request parameters.
	BuildRecords(raw *RawInfo, contrib artwork.Contributor, canonical bool, param artwork.Param) ([]*artwork.Artwork, error)

	// DeriveTags normalizes curated and platform tags and derives the
	// AI/NSFW flags.
	DeriveTags(raw *RawInfo, curated []string) *TagSet

	// BuildCaption composes the HTML caption for a publish.
	BuildCaption(records []*artwork.Artwork, raw *RawInfo, tags *TagSet, param artwork.Param) string

	// Download fetches one page's original file. Idempotent: an existing
	// local file is kept. A failed page is logged, not propagated.
	Download(ctx context.Context, rec *artwork.Artwork) error

	// CheckDuplicate and CheckCache delegate to the store; shared across
	// variants, never overridden.
	CheckDuplicate(workID string) (*artwork.Artwork, error)
	CheckCache(workID string) ([]*artwork.Artwork, error)
}

// NewAdapters builds the closed adapter set.
func NewAdapters(cfg *config.Config, store Store) map[Kind]Adapter {
	generic := newGeneric(cfg, store)
	return map[Kind]Adapter{
		KindGeneric:  generic,
		KindPixiv:    newPixiv(cfg, store),
		KindTwitter:  newTwitter(cfg, store, generic),
		KindMiyoushe: newMiyoushe(cfg, store),
		KindBilibili: newBilibili(cfg, store),
	}
}

func extractionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExtraction, fmt.Sprintf(format, args...))
}
