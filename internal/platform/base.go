package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/NahidaBot/Nahida-Picbot/internal/artwork"
	"github.com/NahidaBot/Nahida-Picbot/internal/config"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// base carries the shared default behavior: store delegation, record
// building, tag derivation, caption assembly, and the page downloader.
// Variants embed it and override what their source needs.
type base struct {
	kind    Kind
	store   Store
	client  *http.Client
	dir     string
	referer string
	tail    string
}

func newBase(kind Kind, cfg *config.Config, store Store) base {
	return base{
		kind:   kind,
		store:  store,
		client: &http.Client{Timeout: 60 * time.Second},
		dir:    cfg.DownloadDir(kind.String()),
		tail:   cfg.Bot.MessageTail,
	}
}

func (b *base) Kind() Kind { return b.kind }

func (b *base) CheckDuplicate(workID string) (*artwork.Artwork, error) {
	return b.store.FindCanonical(b.kind.String(), workID)
}

func (b *base) CheckCache(workID string) ([]*artwork.Artwork, error) {
	return b.store.GetPages(b.kind.String(), workID)
}

// BuildRecords is the default mapping from normalized pages onto canonical
// records. param.Pages selects a subset; out-of-range pages are skipped.
func (b *base) BuildRecords(raw *RawInfo, contrib artwork.Contributor, canonical bool, param artwork.Param) ([]*artwork.Artwork, error) {
	if len(raw.Pages) == 0 {
		return nil, extractionError("no pages for %s %s", b.kind, raw.WorkID)
	}

	pages := param.Pages
	if pages == nil {
		pages = make([]int, len(raw.Pages))
		for i := range raw.Pages {
			pages[i] = i + 1
		}
	}

	var records []*artwork.Artwork
	for _, n := range pages {
		if n < 1 || n > len(raw.Pages) {
			continue
		}
		page := raw.Pages[n-1]

		blob := page.Info
		if blob == nil && n == 1 {
			blob = raw.Meta
		}
		rawJSON, _ := json.Marshal(blob)

		ext := page.Extension
		if ext == "" {
			ext = "jpg"
		}
		rec := &artwork.Artwork{
			Platform:    b.kind.String(),
			WorkID:      raw.WorkID,
			Page:        n,
			UserID:      contrib.ID,
			Username:    contrib.Name,
			Title:       raw.Title,
			Author:      raw.Author,
			AuthorID:    raw.AuthorID,
			OriginalURL: page.URL,
			ThumbURL:    page.ThumbURL,
			Extension:   ext,
			FileName:    fmt.Sprintf("%s_%d.%s", raw.WorkID, n, ext),
			Size:        page.Size,
			Width:       page.Width,
			Height:      page.Height,
			Guest:       !canonical,
			RawInfo:     string(rawJSON),
		}
		if rec.ThumbURL == "" {
			rec.ThumbURL = page.URL
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, extractionError("page subset selected nothing for %s", raw.WorkID)
	}
	return records, nil
}

// Download fetches one page's original file into the platform download
// directory. An already-present file is reused as-is.
func (b *base) Download(ctx context.Context, rec *artwork.Artwork) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}

	path := filepath.Join(b.dir, rec.FileName)
	if info, err := os.Stat(path); err == nil {
		if rec.Size == 0 {
			rec.Size = info.Size()
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.OriginalURL, nil)
	if err != nil {
		log.Printf("download %s: %v", rec.FileName, err)
		return nil
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if b.referer != "" {
		req.Header.Set("Referer", b.referer)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		log.Printf("download %s: %v", rec.FileName, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("download %s: HTTP %d", rec.FileName, resp.StatusCode)
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		log.Printf("download %s: %v", rec.FileName, err)
		return nil
	}
	written, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		log.Printf("download %s: %v", rec.FileName, err)
		return nil
	}

	if rec.Size == 0 {
		rec.Size = written
	}
	return nil
}

// FilePath returns the local path of a downloaded page.
func (b *base) FilePath(rec *artwork.Artwork) string {
	return filepath.Join(b.dir, rec.FileName)
}

// --- metadata alias helpers ---
//
// gallery-dl and the per-source web APIs name the same fields differently;
// the first non-empty alias wins.

func stringAlias(meta map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := meta[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func intAlias(meta map[string]any, keys ...string) int {
	for _, key := range keys {
		if v, ok := meta[key].(float64); ok {
			return int(v)
		}
	}
	return 0
}

func nestedString(meta map[string]any, outer, inner string) string {
	if m, ok := meta[outer].(map[string]any); ok {
		return stringAlias(m, inner)
	}
	return ""
}

func stringList(meta map[string]any, keys ...string) []string {
	var out []string
	for _, key := range keys {
		switch v := meta[key].(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		case string:
			if v != "" {
				out = append(out, fieldsOf(v)...)
			}
		}
	}
	return out
}
