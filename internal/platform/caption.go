package platform

import (
	"fmt"
	"strings"
	"time"

	"github.com/NahidaBot/Nahida-Picbot/internal/artwork"
)

// BuildCaption is the shared caption layout: optional bold title, source and
// author anchors, optional attribution line, curated tags, then an expandable
// block with the raw tag list and timestamp. All interpolated text is
// HTML-escaped before embedding.
func (b *base) BuildCaption(records []*artwork.Artwork, raw *RawInfo, tags *TagSet, param artwork.Param) string {
	var sb strings.Builder

	// Skip the title when it already appears as a tag; no point saying it twice.
	if raw.Title != "" && !tags.Contains("#"+EscapeHTML(raw.Title)) {
		fmt.Fprintf(&sb, "<b>%s</b>\n", EscapeHTML(raw.Title))
	}

	if raw.URL != "" {
		fmt.Fprintf(&sb, `<a href="%s">Source</a>`, raw.URL)
		if raw.Author != "" {
			if raw.AuthorURL != "" {
				fmt.Fprintf(&sb, ` by <a href="%s">%s @%s</a>`, raw.AuthorURL, b.kind, EscapeHTML(raw.Author))
			} else {
				fmt.Fprintf(&sb, " by %s @%s", b.kind, EscapeHTML(raw.Author))
			}
		}
		sb.WriteString("\n")
	}

	if line := attributionLine(param); line != "" {
		sb.WriteString(line)
	}

	if len(tags.Curated) > 0 {
		fmt.Fprintf(&sb, "Tags: %s\n", strings.Join(tags.Curated, " "))
	}

	var block []string
	if raw.Description != "" {
		block = append(block, EscapeHTML(raw.Description))
	}
	if len(tags.Raw) > 0 {
		block = append(block, "Raw Tags: "+strings.Join(tags.Raw, " "))
	}
	created := raw.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	block = append(block, created.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "<blockquote expandable>%s</blockquote>\n", strings.Join(block, "\n"))

	// Configured channel signature, already HTML on purpose.
	if b.tail != "" {
		sb.WriteString(b.tail + "\n")
	}

	return sb.String()
}

func attributionLine(param artwork.Param) string {
	switch {
	case param.FromChannel != "" && param.FromUser != "":
		return fmt.Sprintf("from %s via %s\n", EscapeHTML(param.FromChannel), EscapeHTML(param.FromUser))
	case param.FromChannel != "":
		return fmt.Sprintf("from %s\n", EscapeHTML(param.FromChannel))
	case param.FromUser != "":
		return fmt.Sprintf("via %s\n", EscapeHTML(param.FromUser))
	}
	return ""
}
