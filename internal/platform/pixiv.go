package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/NahidaBot/Nahida-Picbot/internal/config"
)

const pixivBaseURL = "https://www.pixiv.net"

// pixivAdapter talks to the pixiv ajax web API, authenticated with the
// PHPSESSID session cookie.
type pixivAdapter struct {
	base
	session string
}

func newPixiv(cfg *config.Config, store Store) *pixivAdapter {
	a := &pixivAdapter{
		base:    newBase(KindPixiv, cfg, store),
		session: cfg.PixivSession(),
	}
	// pixiv image servers reject requests without a pixiv referer.
	a.referer = pixivBaseURL + "/"
	return a
}

var pixivArtworkID = regexp.MustCompile(`artworks/(\d+)`)

type pixivIllust struct {
	ID         string `json:"illustId"`
	Title      string `json:"illustTitle"`
	Comment    string `json:"illustComment"`
	CreateDate string `json:"createDate"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	PageCount  int    `json:"pageCount"`
	XRestrict  int    `json:"xRestrict"`
	AIType     int    `json:"aiType"`
	Tags       struct {
		Tags []struct {
			Tag string `json:"tag"`
		} `json:"tags"`
	} `json:"tags"`
}

type pixivPage struct {
	URLs struct {
		Original string `json:"original"`
		Regular  string `json:"regular"`
	} `json:"urls"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (p *pixivAdapter) Extract(ctx context.Context, url string) (*RawInfo, error) {
	workID := url
	if m := pixivArtworkID.FindStringSubmatch(url); m != nil {
		workID = m[1]
	} else {
		workID = strings.TrimSuffix(workID, "/")
		workID = workID[strings.LastIndex(workID, "/")+1:]
		if i := strings.IndexByte(workID, '?'); i >= 0 {
			workID = workID[:i]
		}
	}
	if !pixivBareID.MatchString(workID) {
		return nil, extractionError("pixiv: no illustration id in %q", url)
	}

	var illust pixivIllust
	if err := p.getJSON(ctx, fmt.Sprintf("%s/ajax/illust/%s", pixivBaseURL, workID), &illust); err != nil {
		return nil, err
	}

	var pages []pixivPage
	if err := p.getJSON(ctx, fmt.Sprintf("%s/ajax/illust/%s/pages", pixivBaseURL, workID), &pages); err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, extractionError("pixiv %s: no pages", workID)
	}

	raw := &RawInfo{
		WorkID:      workID,
		URL:         fmt.Sprintf("%s/artworks/%s", pixivBaseURL, workID),
		Title:       illust.Title,
		Author:      illust.UserName,
		AuthorID:    illust.UserID,
		AuthorURL:   fmt.Sprintf("%s/users/%s", pixivBaseURL, illust.UserID),
		Description: illust.Comment,
		// xRestrict 1 is R-18, 2 is R-18G.
		Explicit: illust.XRestrict >= 1,
		// aiType 2 marks AI-generated work.
		AIGenerated: illust.AIType == 2,
	}
	if t, err := time.Parse(time.RFC3339, illust.CreateDate); err == nil {
		raw.CreatedAt = t
	}
	for _, tag := range illust.Tags.Tags {
		raw.Tags = append(raw.Tags, tag.Tag)
	}

	for _, page := range pages {
		original := page.URLs.Original
		ext := "jpg"
		if i := strings.LastIndexByte(original, '.'); i >= 0 {
			ext = original[i+1:]
		}
		raw.Pages = append(raw.Pages, RawPage{
			URL:       original,
			ThumbURL:  page.URLs.Regular,
			Extension: ext,
			Width:     page.Width,
			Height:    page.Height,
		})
	}

	return raw, nil
}

// getJSON performs an ajax GET and decodes the standard pixiv envelope.
func (p *pixivAdapter) getJSON(ctx context.Context, url string, body any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return extractionError("pixiv request: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", pixivBaseURL+"/")
	if p.session != "" {
		req.AddCookie(&http.Cookie{Name: "PHPSESSID", Value: p.session})
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return extractionError("pixiv: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return extractionError("pixiv: HTTP %d for %s", resp.StatusCode, url)
	}

	var envelope struct {
		Error   bool            `json:"error"`
		Message string          `json:"message"`
		Body    json.RawMessage `json:"body"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return extractionError("pixiv: decoding %s: %v", url, err)
	}
	if envelope.Error {
		return extractionError("pixiv: %s", envelope.Message)
	}
	if err := json.Unmarshal(envelope.Body, body); err != nil {
		return extractionError("pixiv: decoding body of %s: %v", url, err)
	}
	return nil
}
