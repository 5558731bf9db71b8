package artwork

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParsePageRanges parses a page subset like "1-3,5" into the sorted,
// deduplicated union of the referenced page numbers.
func ParsePageRanges(spec string) ([]int, error) {
	seen := make(map[int]struct{})
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, fmt.Errorf("empty page token in %q", spec)
		}

		if start, end, ok := strings.Cut(token, "-"); ok {
			lo, err := strconv.Atoi(start)
			if err != nil {
				return nil, fmt.Errorf("invalid page range %q", token)
			}
			hi, err := strconv.Atoi(end)
			if err != nil {
				return nil, fmt.Errorf("invalid page range %q", token)
			}
			if lo < 1 || hi < lo {
				return nil, fmt.Errorf("invalid page range %q", token)
			}
			for p := lo; p <= hi; p++ {
				seen[p] = struct{}{}
			}
			continue
		}

		p, err := strconv.Atoi(token)
		if err != nil || p < 1 {
			return nil, fmt.Errorf("invalid page number %q", token)
		}
		seen[p] = struct{}{}
	}

	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages, nil
}

// ParseParams parses the free tokens following the URL of a submission:
// hashtags plus key=value tokens for page subset, tag list, source
// attribution, silent/spoiler flags, and the explicit-content override.
func ParseParams(tokens []string) (Param, error) {
	var param Param
	for _, token := range tokens {
		if strings.HasPrefix(token, "#") {
			if tag := strings.TrimPrefix(token, "#"); tag != "" {
				param.Tags = append(param.Tags, tag)
			}
			continue
		}

		key, value, ok := strings.Cut(token, "=")
		if !ok {
			return param, fmt.Errorf("unrecognized token %q", token)
		}
		switch strings.ToLower(key) {
		case "p", "page", "pages":
			pages, err := ParsePageRanges(value)
			if err != nil {
				return param, err
			}
			param.Pages = pages
		case "tag", "tags":
			for _, tag := range strings.Split(value, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					param.Tags = append(param.Tags, tag)
				}
			}
		case "from":
			param.FromChannel = value
		case "via":
			param.FromUser = value
		case "silent":
			b, err := parseBool(value)
			if err != nil {
				return param, err
			}
			param.Silent = &b
		case "spoiler":
			b, err := parseBool(value)
			if err != nil {
				return param, err
			}
			param.Spoiler = &b
		case "nsfw":
			b, err := parseBool(value)
			if err != nil {
				return param, err
			}
			param.NSFW = &b
		case "sfw":
			b, err := parseBool(value)
			if err != nil {
				return param, err
			}
			b = !b
			param.NSFW = &b
		default:
			return param, fmt.Errorf("unknown parameter %q", key)
		}
	}
	return param, nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", value)
}
