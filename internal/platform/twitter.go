package platform

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/NahidaBot/Nahida-Picbot/internal/artwork"
	"github.com/NahidaBot/Nahida-Picbot/internal/config"
)

// twitterAdapter is the microblog variant. Extraction rides on the generic
// gallery-dl adapter; what differs is the record and caption shape, where the
// tweet text stands in for a title.
type twitterAdapter struct {
	base
	generic *genericAdapter
}

func newTwitter(cfg *config.Config, store Store, generic *genericAdapter) *twitterAdapter {
	return &twitterAdapter{
		base:    newBase(KindTwitter, cfg, store),
		generic: generic,
	}
}

var tweetStatusID = regexp.MustCompile(`status(?:es)?/(\d+)`)

func (t *twitterAdapter) Extract(ctx context.Context, url string) (*RawInfo, error) {
	url = strings.ReplaceAll(url, "x.com", "twitter.com")

	raw, err := t.generic.Extract(ctx, url)
	if err != nil {
		return nil, err
	}

	if m := tweetStatusID.FindStringSubmatch(url); m != nil {
		raw.WorkID = m[1]
	}
	if raw.WorkID == "" {
		return nil, extractionError("twitter: no status id in %q", url)
	}

	if author := nestedString(raw.Meta, "user", "name"); author != "" {
		raw.Author = author
	}
	if raw.AuthorID == "" {
		raw.AuthorID = nestedString(raw.Meta, "user", "id")
	}

	// The tweet body doubles as the title; keep the full text for the
	// expandable block when it is long.
	text := stringAlias(raw.Meta, "content", "tweet_content")
	if text != "" {
		raw.Title = text
	}
	if raw.Author != "" {
		raw.URL = fmt.Sprintf("https://twitter.com/%s/status/%s", raw.Author, raw.WorkID)
		raw.AuthorURL = "https://twitter.com/" + raw.Author
	} else {
		raw.URL = url
	}

	return raw, nil
}

// BuildCaption renders the microblog layout: quoted tweet text instead of a
// bold title line.
func (t *twitterAdapter) BuildCaption(records []*artwork.Artwork, raw *RawInfo, tags *TagSet, param artwork.Param) string {
	var sb strings.Builder

	if raw.Title != "" {
		fmt.Fprintf(&sb, "<blockquote>%s</blockquote>\n", EscapeHTML(raw.Title))
	}
	fmt.Fprintf(&sb, `<a href="%s">Source</a>`, raw.URL)
	if raw.Author != "" && raw.AuthorURL != "" {
		fmt.Fprintf(&sb, ` by <a href="%s">%s @%s</a>`, raw.AuthorURL, t.kind, EscapeHTML(raw.Author))
	}
	sb.WriteString("\n")

	if line := attributionLine(param); line != "" {
		sb.WriteString(line)
	}
	if len(tags.Curated) > 0 {
		fmt.Fprintf(&sb, "Tags: %s\n", strings.Join(tags.Curated, " "))
	}
	if len(tags.Raw) > 0 {
		fmt.Fprintf(&sb, "<blockquote expandable>Raw Tags: %s</blockquote>\n", strings.Join(tags.Raw, " "))
	}
	if t.tail != "" {
		sb.WriteString(t.tail + "\n")
	}

	return sb.String()
}
