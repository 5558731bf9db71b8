package platform

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// EscapeHTML escapes the entities Telegram requires inside HTML captions.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// shortTagLen is the length at or below which tags are upper-cased, so that
// acronym tags like ai/r18/nsfw compare case-insensitively.
const shortTagLen = 4

// NormalizeCuratedTag normalizes one submitter-supplied tag: short tokens are
// upper-cased, the leading # is re-applied after escaping.
func NormalizeCuratedTag(tag string) string {
	tag = strings.TrimPrefix(tag, "#")
	if utf8.RuneCountInString(tag) <= shortTagLen {
		tag = strings.ToUpper(tag)
	}
	return "#" + EscapeHTML(tag)
}

// NormalizeRawTag normalizes one platform-sourced tag: spaces and hyphens
// become underscores so the result survives as a single hashtag token.
func NormalizeRawTag(tag string) string {
	tag = strings.TrimPrefix(tag, "#")
	tag = strings.ReplaceAll(tag, " ", "_")
	tag = strings.ReplaceAll(tag, "-", "_")
	if utf8.RuneCountInString(tag) <= shortTagLen {
		tag = strings.ToUpper(tag)
	}
	return "#" + EscapeHTML(tag)
}

// DeriveTags is the shared tag derivation: normalize both tag sets, then
// classify from their intersection. A platform-native explicit flag forces
// NSFW regardless of tags.
func (b *base) DeriveTags(raw *RawInfo, curated []string) *TagSet {
	curSet := make(map[string]struct{})
	for _, tag := range curated {
		if tag = strings.TrimSpace(tag); tag == "" || tag == "#" {
			continue
		}
		curSet[NormalizeCuratedTag(tag)] = struct{}{}
	}

	rawSet := make(map[string]struct{})
	for _, tag := range raw.Tags {
		if tag = strings.TrimSpace(tag); tag == "" || tag == "#" {
			continue
		}
		rawSet[NormalizeRawTag(tag)] = struct{}{}
	}

	both := make(map[string]struct{})
	for tag := range curSet {
		if _, ok := rawSet[tag]; ok {
			both[tag] = struct{}{}
		}
	}

	ts := &TagSet{
		Curated: sortedTags(curSet),
		Raw:     sortedTags(rawSet),
	}

	_, ts.AIGC = both["#AI"]
	ts.AIGC = ts.AIGC || raw.AIGenerated

	for _, marker := range []string{"#NSFW", "#R18", "#R-18"} {
		if _, ok := both[marker]; ok {
			ts.NSFW = true
			break
		}
	}
	ts.NSFW = ts.NSFW || raw.Explicit

	return ts
}

// Contains reports whether a normalized tag is in either tag set.
func (t *TagSet) Contains(tag string) bool {
	for _, have := range t.Curated {
		if have == tag {
			return true
		}
	}
	for _, have := range t.Raw {
		if have == tag {
			return true
		}
	}
	return false
}

func sortedTags(set map[string]struct{}) []string {
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func fieldsOf(s string) []string {
	return strings.Fields(s)
}
