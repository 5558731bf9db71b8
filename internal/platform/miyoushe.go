package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/NahidaBot/Nahida-Picbot/internal/config"
)

// miyousheAdapter handles miyoushe.com / bbs.mihoyo.com community posts and
// their international mirror hoyolab.com. Posts are nested (post-in-post
// envelope) and carry a game-section taxonomy that becomes a tag.
type miyousheAdapter struct {
	base
}

func newMiyoushe(cfg *config.Config, store Store) *miyousheAdapter {
	a := &miyousheAdapter{base: newBase(KindMiyoushe, cfg, store)}
	a.referer = "https://www.miyoushe.com/"
	return a
}

var miyousheArticleID = regexp.MustCompile(`article/(\d+)`)

// thumbParams asks the image CDN for a bounded, progressive JPEG preview.
const miyousheThumbParams = "?x-oss-process=image//resize,l_2560/quality,q_100/auto-orient,0/interlace,1/format,jpg"

type miyoushePost struct {
	Post struct {
		PostID    string `json:"post_id"`
		Subject   string `json:"subject"`
		Content   string `json:"content"`
		Desc      string `json:"desc"`
		CreatedAt int64  `json:"created_at"`
		GameID    int    `json:"game_id"`
	} `json:"post"`
	User struct {
		UID      string `json:"uid"`
		Nickname string `json:"nickname"`
	} `json:"user"`
	ImageList []struct {
		URL    string          `json:"url"`
		Width  int             `json:"width"`
		Height int             `json:"height"`
		Size   json.RawMessage `json:"size"`
		Format string          `json:"format"`
	} `json:"image_list"`
	Topics []struct {
		Name string `json:"name"`
	} `json:"topics"`
}

func (m *miyousheAdapter) Extract(ctx context.Context, url string) (*RawInfo, error) {
	match := miyousheArticleID.FindStringSubmatch(url)
	if match == nil {
		return nil, extractionError("miyoushe: no article id in %q", url)
	}
	postID := match[1]
	global := strings.Contains(url, "hoyolab")

	apiURL := fmt.Sprintf("https://bbs-api.miyoushe.com/post/wapi/getPostFull?post_id=%s", postID)
	referer := "https://www.miyoushe.com/"
	if global {
		apiURL = fmt.Sprintf("https://bbs-api-os.hoyolab.com/community/post/wapi/getPostFull?post_id=%s", postID)
		referer = "https://www.hoyolab.com/"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, extractionError("miyoushe request: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("X-Rpc-Language", "zh-cn")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, extractionError("miyoushe: %v", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Retcode int    `json:"retcode"`
		Message string `json:"message"`
		Data    struct {
			Post miyoushePost `json:"post"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, extractionError("miyoushe %s: decoding: %v", postID, err)
	}
	if envelope.Retcode != 0 {
		return nil, extractionError("miyoushe %s: retcode %d: %s", postID, envelope.Retcode, envelope.Message)
	}

	post := envelope.Data.Post
	if len(post.ImageList) == 0 {
		return nil, extractionError("miyoushe %s: post has no images", postID)
	}

	game, section := gameTaxonomy(post.Post.GameID)

	raw := &RawInfo{
		WorkID:      postID,
		Title:       post.Post.Subject,
		Author:      post.User.Nickname,
		AuthorID:    post.User.UID,
		Description: post.Post.Content,
		CreatedAt:   time.Unix(post.Post.CreatedAt, 0),
	}
	if global {
		raw.URL = fmt.Sprintf("https://www.hoyolab.com/article/%s", postID)
		raw.AuthorURL = fmt.Sprintf("https://www.hoyolab.com/accountCenter?id=%s", post.User.UID)
		raw.Description = post.Post.Desc
	} else {
		raw.URL = fmt.Sprintf("https://www.miyoushe.com/%s/article/%s", section, postID)
		raw.AuthorURL = fmt.Sprintf("https://www.miyoushe.com/%s/accountCenter/postList?id=%s", section, post.User.UID)
	}

	for _, topic := range post.Topics {
		raw.Tags = append(raw.Tags, topic.Name)
	}
	if game != "" {
		raw.Tags = append(raw.Tags, game)
	}

	for _, img := range post.ImageList {
		ext := normalizeImageFormat(img.Format)
		raw.Pages = append(raw.Pages, RawPage{
			URL:       img.URL,
			ThumbURL:  img.URL + miyousheThumbParams,
			Extension: ext,
			Width:     img.Width,
			Height:    img.Height,
			Size:      flexibleInt(img.Size),
		})
	}

	return raw, nil
}

// gameTaxonomy maps a community game id onto its tag and URL section.
func gameTaxonomy(gameID int) (tag, section string) {
	switch gameID {
	case 1:
		return "Honkai3rd", "bh3"
	case 2:
		return "GenshinImpact", "ys"
	case 3:
		return "Honkai2", "bh2"
	case 4:
		return "TearsOfThemis", "wd"
	case 5, 7:
		return "DaBieYe", "dby"
	case 6:
		return "StarRail", "sr"
	case 8:
		return "ZenlessZoneZero", "zzz"
	}
	return "", "dby"
}

// normalizeImageFormat maps hoyolab's upper-case format names onto extensions.
func normalizeImageFormat(format string) string {
	switch strings.ToUpper(format) {
	case "JPEG", "JPG":
		return "jpg"
	case "PNG":
		return "png"
	case "GIF":
		return "gif"
	case "WEBP":
		return "webp"
	}
	if format == "" {
		return "jpg"
	}
	return strings.ToLower(format)
}

// flexibleInt parses a size field that arrives as either a number or a
// quoted string depending on the API host.
func flexibleInt(data json.RawMessage) int64 {
	if len(data) == 0 {
		return 0
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
	}
	return 0
}
