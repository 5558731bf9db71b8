package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/NahidaBot/Nahida-Picbot/internal/config"
)

// genericAdapter handles every source without a dedicated variant by running
// the gallery-dl extractor as a subprocess and consuming its JSON dump.
type genericAdapter struct {
	base
	galleryDL string
}

func newGeneric(cfg *config.Config, store Store) *genericAdapter {
	return &genericAdapter{
		base:      newBase(KindGeneric, cfg, store),
		galleryDL: cfg.Sources.GalleryDL.Path,
	}
}

// galleryDLEntry is one element of the `gallery-dl -j` dump: a heterogeneous
// JSON array [code, ...]. Code 2 carries the work metadata as its last
// element; code 3 entries are [3, url, pageInfo].
type galleryDLEntry []json.RawMessage

const galleryDLPageCode = 3

func (g *genericAdapter) Extract(ctx context.Context, url string) (*RawInfo, error) {
	cmd := exec.CommandContext(ctx, g.galleryDL, url, "-j", "-q")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, extractionError("gallery-dl %s: %v: %s", url, err, stderr.String())
	}

	return parseGalleryDLDump(url, stdout.Bytes())
}

// parseGalleryDLDump normalizes a `gallery-dl -j` dump into a RawInfo.
func parseGalleryDLDump(url string, data []byte) (*RawInfo, error) {
	var entries []galleryDLEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, extractionError("gallery-dl %s: malformed dump: %v", url, err)
	}
	if len(entries) < 2 {
		return nil, extractionError("gallery-dl %s: no pages in dump", url)
	}

	meta := decodeObject(entries[0][len(entries[0])-1])
	if meta == nil {
		return nil, extractionError("gallery-dl %s: missing metadata entry", url)
	}

	raw := &RawInfo{
		WorkID:      stringAlias(meta, "id", "media_id", "tweet_id"),
		URL:         url,
		Title:       stringAlias(meta, "title", "tweet_content", "content", "id"),
		Author:      stringAlias(meta, "author", "artist", "uploader"),
		AuthorID:    authorIDAlias(meta),
		Tags:        stringList(meta, "tags", "characters", "artist", "type"),
		Explicit:    ratingIsExplicit(meta),
		AIGenerated: false,
		Meta:        meta,
	}
	if created := intAlias(meta, "created_at", "date"); created > 0 {
		raw.CreatedAt = time.Unix(int64(created), 0)
	}

	for _, entry := range entries[1:] {
		if len(entry) < 3 {
			continue
		}
		var code int
		if err := json.Unmarshal(entry[0], &code); err != nil || code != galleryDLPageCode {
			continue
		}
		var pageURL string
		if err := json.Unmarshal(entry[1], &pageURL); err != nil || pageURL == "" {
			continue
		}
		info := decodeObject(entry[2])

		page := RawPage{
			URL:  pageURL,
			Info: info,
		}
		if info != nil {
			page.ThumbURL = stringAlias(info, "jpeg_url", "sample_url")
			page.Extension = stringAlias(info, "extension", "file_ext")
			page.Width = intAlias(info, "width", "image_width")
			page.Height = intAlias(info, "height", "image_height")
			page.Size = int64(intAlias(info, "file_size"))
		}
		if page.Extension == "" {
			page.Extension = stringAlias(meta, "extension", "file_ext")
		}
		raw.Pages = append(raw.Pages, page)
	}

	if raw.WorkID == "" {
		return nil, extractionError("gallery-dl %s: no work id in metadata", url)
	}
	if len(raw.Pages) == 0 {
		return nil, extractionError("gallery-dl %s: no downloadable pages", url)
	}
	return raw, nil
}

func decodeObject(data json.RawMessage) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	return obj
}

func authorIDAlias(meta map[string]any) string {
	if id := stringAlias(meta, "pixiv_id", "uploader_id", "approver_id", "creator_id"); id != "" {
		return id
	}
	return nestedString(meta, "user", "id")
}

func ratingIsExplicit(meta map[string]any) bool {
	switch stringAlias(meta, "rating") {
	case "e", "explicit", "q", "questionable":
		return true
	}
	return false
}
