// Package pipeline runs a submission through classification, extraction,
// dedup/cache checks, record building, tag derivation, page downloads, and
// caption assembly, producing a result for the command handler to publish
// and commit.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NahidaBot/Nahida-Picbot/internal/artwork"
	"github.com/NahidaBot/Nahida-Picbot/internal/config"
	"github.com/NahidaBot/Nahida-Picbot/internal/platform"
)

// User-facing feedback for any extraction or pipeline failure. Source-side
// detail goes to the log, never to chat.
const msgRetrieveFailed = "Could not retrieve the artwork. Check the link or try again later."

const timeLayout = "2006-01-02 15:04:05"

// Runner orchestrates one ingestion per call. Submissions of the same work
// are serialized on a per-(platform, work id) lock so two racing requests
// cannot both pass the dedup check.
type Runner struct {
	cfg      *config.Config
	adapters map[platform.Kind]platform.Adapter

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a Runner over the closed adapter set.
func New(cfg *config.Config, adapters map[platform.Kind]platform.Adapter) *Runner {
	return &Runner{
		cfg:      cfg,
		adapters: adapters,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockWork acquires the per-work lock and returns its release func.
func (r *Runner) lockWork(plat, workID string) func() {
	key := plat + "/" + workID

	r.mu.Lock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Ingest runs the full pipeline for one submitted URL. canonical marks a
// channel-bound submission: only those are dedup-checked and only those
// produce non-guest records. Records are staged in memory; the caller
// commits them after the publish settles.
//
// Any failure, including a panic in an adapter, is converted into a failed
// result with fixed feedback text.
func (r *Runner) Ingest(ctx context.Context, url string, param artwork.Param, contrib artwork.Contributor, canonical bool) (res *artwork.Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("pipeline: panic ingesting %s: %v", url, p)
			res = artwork.Failure(msgRetrieveFailed)
		}
	}()

	kind := platform.Classify(url)
	adapter := r.adapters[kind]

	raw, err := adapter.Extract(ctx, url)
	if err != nil {
		log.Printf("pipeline: extract %s: %v", url, err)
		return artwork.Failure(msgRetrieveFailed)
	}

	unlock := r.lockWork(kind.String(), raw.WorkID)
	defer unlock()

	if canonical && r.cfg.Bot.Deduplication {
		existing, err := adapter.CheckDuplicate(raw.WorkID)
		if err != nil {
			log.Printf("pipeline: dedup %s %s: %v", kind, raw.WorkID, err)
			return artwork.Failure(msgRetrieveFailed)
		}
		if existing != nil {
			return artwork.Failure(duplicateFeedback(existing))
		}
	}

	cached, err := adapter.CheckCache(raw.WorkID)
	if err != nil {
		log.Printf("pipeline: cache %s %s: %v", kind, raw.WorkID, err)
		return artwork.Failure(msgRetrieveFailed)
	}

	var records []*artwork.Artwork
	if len(cached) > 0 {
		records = touchCached(cached, contrib, canonical)
	} else {
		records, err = adapter.BuildRecords(raw, contrib, canonical, param)
		if err != nil {
			log.Printf("pipeline: build %s %s: %v", kind, raw.WorkID, err)
			return artwork.Failure(msgRetrieveFailed)
		}
	}

	tags := adapter.DeriveTags(raw, param.Tags)
	if param.NSFW != nil {
		tags.NSFW = *param.NSFW
	}
	for _, rec := range records {
		rec.NSFW = tags.NSFW
		rec.AI = tags.AIGC
	}

	if len(cached) == 0 {
		g, gctx := errgroup.WithContext(ctx)
		for _, rec := range records {
			rec := rec
			g.Go(func() error {
				return adapter.Download(gctx, rec)
			})
		}
		if err := g.Wait(); err != nil {
			log.Printf("pipeline: download %s %s: %v", kind, raw.WorkID, err)
			return artwork.Failure(msgRetrieveFailed)
		}
	}

	return &artwork.Result{
		Success:  true,
		Feedback: successFeedback(records, len(cached) > 0),
		Caption:  adapter.BuildCaption(records, raw, tags, param),
		Artworks: records,
		Tags:     tags.Curated,
		RawTags:  tags.Raw,
		NSFW:     tags.NSFW,
		AI:       tags.AIGC,
		Cached:   len(cached) > 0,
		Param:    param,
	}
}

// touchCached mutates cached records in place for a repost: the timestamp
// and repost counter always move; a canonical repost additionally promotes
// guest rows and takes over the contributor fields.
func touchCached(records []*artwork.Artwork, contrib artwork.Contributor, canonical bool) []*artwork.Artwork {
	now := time.Now()
	for _, rec := range records {
		rec.UpdatedAt = now
		rec.PostCount++
		if canonical {
			rec.Guest = false
			rec.UserID = contrib.ID
			rec.Username = contrib.Name
		}
	}
	return records
}

func duplicateFeedback(existing *artwork.Artwork) string {
	feedback := fmt.Sprintf(
		"Already posted by <a href=\"tg://user?id=%d\">%s</a> at %s.",
		existing.UserID,
		platform.EscapeHTML(existing.Username),
		existing.CreatedAt.Format(timeLayout),
	)
	if existing.MessageLink != "" {
		feedback += fmt.Sprintf("\n<a href=\"%s\">Original post</a>", existing.MessageLink)
	}
	return feedback
}

func successFeedback(records []*artwork.Artwork, cached bool) string {
	var b strings.Builder
	if cached {
		b.WriteString("Found in cache.\n")
	}
	for _, rec := range records {
		fmt.Fprintf(&b, "page %d: %dx%d\n", rec.Page, rec.Width, rec.Height)
	}
	return b.String()
}
