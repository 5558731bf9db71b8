package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/NahidaBot/Nahida-Picbot/internal/config"
)

// bilibiliAdapter handles bilibili dynamic-feed posts (opus). Only image
// dynamics are accepted; video and text dynamics fail extraction.
type bilibiliAdapter struct {
	base
}

func newBilibili(cfg *config.Config, store Store) *bilibiliAdapter {
	a := &bilibiliAdapter{base: newBase(KindBilibili, cfg, store)}
	a.referer = "https://t.bilibili.com/"
	return a
}

const bilibiliDetailURL = "https://api.bilibili.com/x/polymer/web-dynamic/v1/detail?timezone_offset=-480&platform=web&id=%s&features=itemOpusStyle"

func (b *bilibiliAdapter) Extract(ctx context.Context, url string) (*RawInfo, error) {
	workID := strings.TrimSuffix(url, "/")
	workID = workID[strings.LastIndex(workID, "/")+1:]
	if i := strings.IndexByte(workID, '?'); i >= 0 {
		workID = workID[:i]
	}
	if workID == "" {
		return nil, extractionError("bilibili: no dynamic id in %q", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(bilibiliDetailURL, workID), nil)
	if err != nil {
		return nil, extractionError("bilibili request: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://t.bilibili.com/")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, extractionError("bilibili: %v", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			Item struct {
				Type    string `json:"type"`
				Modules struct {
					Author struct {
						Name  string `json:"name"`
						Mid   int64  `json:"mid"`
						PubTs int64  `json:"pub_ts"`
					} `json:"module_author"`
					Dynamic struct {
						Major struct {
							Opus struct {
								Pics []struct {
									URL    string  `json:"url"`
									Width  int     `json:"width"`
									Height int     `json:"height"`
									Size   float64 `json:"size"`
								} `json:"pics"`
								Summary struct {
									Text string `json:"text"`
								} `json:"summary"`
							} `json:"opus"`
						} `json:"major"`
					} `json:"module_dynamic"`
				} `json:"modules"`
			} `json:"item"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, extractionError("bilibili %s: decoding: %v", workID, err)
	}
	if envelope.Code != 0 {
		return nil, extractionError("bilibili %s: code %d: %s", workID, envelope.Code, envelope.Message)
	}
	if envelope.Data.Item.Type != "DYNAMIC_TYPE_DRAW" {
		return nil, extractionError("bilibili %s: not an image dynamic (%s)", workID, envelope.Data.Item.Type)
	}

	modules := envelope.Data.Item.Modules
	opus := modules.Dynamic.Major.Opus
	if len(opus.Pics) == 0 {
		return nil, extractionError("bilibili %s: dynamic has no images", workID)
	}

	raw := &RawInfo{
		WorkID:    workID,
		URL:       fmt.Sprintf("https://www.bilibili.com/opus/%s", workID),
		Title:     opus.Summary.Text,
		Author:    modules.Author.Name,
		AuthorID:  fmt.Sprintf("%d", modules.Author.Mid),
		AuthorURL: fmt.Sprintf("https://space.bilibili.com/%d", modules.Author.Mid),
	}
	if modules.Author.PubTs > 0 {
		raw.CreatedAt = time.Unix(modules.Author.PubTs, 0)
	}

	for _, pic := range opus.Pics {
		ext := "jpg"
		if i := strings.LastIndexByte(pic.URL, '.'); i >= 0 {
			ext = pic.URL[i+1:]
		}
		raw.Pages = append(raw.Pages, RawPage{
			URL:       pic.URL,
			ThumbURL:  pic.URL,
			Extension: ext,
			Width:     pic.Width,
			Height:    pic.Height,
			// The API reports sizes in KiB.
			Size: int64(pic.Size * 1024),
		})
	}

	return raw, nil
}
