// Package publish delivers artwork batches to their destination chat:
// chunking into albums of at most ten, reusing known remote file handles,
// compressing oversized originals, pacing sends, and keeping the
// back-reference map that lets a forwarded channel post pull its originals.
package publish

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/NahidaBot/Nahida-Picbot/internal/artwork"
	"github.com/NahidaBot/Nahida-Picbot/internal/config"
	"github.com/NahidaBot/Nahida-Picbot/internal/imaging"
	"github.com/NahidaBot/Nahida-Picbot/internal/telegram"
)

const (
	maxGroupSize = 10

	// Photo uploads over this budget get a compressed substitute.
	compressTargetMB = 10

	// Back-references expire so the map stays bounded; a forward of a
	// week-old post simply does nothing.
	backRefTTL = 7 * 24 * time.Hour
)

// MediaSender is the delivery surface the publisher needs from the chat
// client.
type MediaSender interface {
	SendMediaGroup(ctx context.Context, chatID int64, items []telegram.MediaItem, caption string, silent bool, replyTo int64) ([]telegram.Message, error)
	SendDocumentGroup(ctx context.Context, chatID int64, items []telegram.MediaItem, replyTo int64) ([]telegram.Message, error)
}

// Publisher sends batches and remembers what landed where.
type Publisher struct {
	cfg    *config.Config
	sender MediaSender

	// Pacing between grouped sends, charged per item.
	limiter *rate.Limiter

	backRefs *cache.Cache

	mu          sync.Mutex
	lastPublish time.Time
}

// New creates a Publisher over a sender.
func New(cfg *config.Config, sender MediaSender) *Publisher {
	return &Publisher{
		cfg:      cfg,
		sender:   sender,
		limiter:  rate.NewLimiter(rate.Every(time.Second), maxGroupSize),
		backRefs: cache.New(backRefTTL, time.Hour),
	}
}

// Publish sends a successful result to chatID as one or more photo albums.
// A failure between chunks is returned as-is: chunks already sent stay
// published and are not retracted.
func (p *Publisher) Publish(ctx context.Context, res *artwork.Result, chatID int64) error {
	target := chatID
	if p.cfg.Bot.AIRedirect.Enabled && res.AI && chatID == p.cfg.Bot.ChannelID {
		target = p.cfg.Bot.AIRedirect.ChannelID
	}
	toChannel := target == p.cfg.Bot.ChannelID || target == p.cfg.Bot.AIRedirect.ChannelID

	silent := p.suppressNotification(res.Param)
	chunks := chunkRecords(res.Artworks)

	for i, chunk := range chunks {
		caption := res.Caption
		if len(chunks) > 1 {
			caption = fmt.Sprintf("(%d/%d)\n%s", i+1, len(chunks), caption)
		}

		items, err := p.photoItems(chunk, res)
		if err != nil {
			return err
		}

		if err := p.limiter.WaitN(ctx, len(chunk)); err != nil {
			return fmt.Errorf("pacing publish: %w", err)
		}
		messages, err := p.sender.SendMediaGroup(ctx, target, items, caption, silent, 0)
		if err != nil {
			return fmt.Errorf("sending chunk %d/%d: %w", i+1, len(chunks), err)
		}

		p.recordDelivery(chunk, messages, target, toChannel)
		if i == 0 && len(messages) > 0 {
			res.PublishedMessageID = messages[0].MessageID
			res.PublishedLink = chunk[0].MessageLink
		}
	}

	if toChannel {
		p.mu.Lock()
		p.lastPublish = time.Now()
		p.mu.Unlock()
	}
	return nil
}

// PublishOriginals re-sends the uncompressed files for records as document
// albums, optionally as a reply.
func (p *Publisher) PublishOriginals(ctx context.Context, records []*artwork.Artwork, chatID, replyTo int64) error {
	for i, chunk := range chunkRecords(records) {
		items := make([]telegram.MediaItem, len(chunk))
		for j, rec := range chunk {
			if rec.FileIDOriginal != "" {
				items[j] = telegram.MediaItem{FileID: rec.FileIDOriginal}
			} else {
				items[j] = telegram.MediaItem{Path: p.filePath(rec)}
			}
		}

		if err := p.limiter.WaitN(ctx, len(chunk)); err != nil {
			return fmt.Errorf("pacing originals: %w", err)
		}
		messages, err := p.sender.SendDocumentGroup(ctx, chatID, items, replyTo)
		if err != nil {
			return fmt.Errorf("sending originals chunk %d: %w", i+1, err)
		}

		for j, msg := range messages {
			if j < len(chunk) && msg.Document != nil {
				chunk[j].FileIDOriginal = msg.Document.FileID
			}
		}
	}
	return nil
}

// TakeBackRef resolves a published message id to its records and consumes
// the entry. A second lookup of the same id returns nil.
func (p *Publisher) TakeBackRef(messageID int64) []*artwork.Artwork {
	key := strconv.FormatInt(messageID, 10)
	v, ok := p.backRefs.Get(key)
	if !ok {
		return nil
	}
	p.backRefs.Delete(key)
	return v.([]*artwork.Artwork)
}

// suppressNotification applies the cooldown window unless the request
// settles the question itself.
func (p *Publisher) suppressNotification(param artwork.Param) bool {
	if param.Silent != nil {
		return *param.Silent
	}
	cooldown := time.Duration(p.cfg.Bot.CooldownSeconds) * time.Second

	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.lastPublish.IsZero() && time.Since(p.lastPublish) < cooldown
}

// photoItems maps one chunk onto media items, preferring known remote
// handles and substituting a compressed copy for oversized local files.
func (p *Publisher) photoItems(chunk []*artwork.Artwork, res *artwork.Result) ([]telegram.MediaItem, error) {
	spoiler := res.NSFW
	if res.Param.Spoiler != nil {
		spoiler = *res.Param.Spoiler
	}

	items := make([]telegram.MediaItem, len(chunk))
	for i, rec := range chunk {
		if rec.FileIDThumb != "" {
			items[i] = telegram.MediaItem{FileID: rec.FileIDThumb, Spoiler: spoiler}
			continue
		}

		path := p.filePath(rec)
		ok, err := imaging.WithinSizeLimit(path)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", rec.FileName, err)
		}
		if !ok {
			compressed := path + ".upload.jpg"
			if err := imaging.Compress(path, compressed, compressTargetMB); err != nil {
				return nil, fmt.Errorf("compressing %s: %w", rec.FileName, err)
			}
			path = compressed
		}
		items[i] = telegram.MediaItem{Path: path, Spoiler: spoiler}
	}
	return items, nil
}

// recordDelivery stores returned remote handles and the message link on
// the records, and registers the back-reference for channel posts.
func (p *Publisher) recordDelivery(chunk []*artwork.Artwork, messages []telegram.Message, target int64, toChannel bool) {
	if len(messages) == 0 {
		log.Printf("publish: empty send result for %d records", len(chunk))
		return
	}

	username := ""
	if target == p.cfg.Bot.ChannelID {
		username = p.cfg.Bot.ChannelUsername
	}
	link := telegram.MessageLink(username, target, messages[0].MessageID)

	for i, rec := range chunk {
		rec.MessageLink = link
		if i < len(messages) {
			if photos := messages[i].Photo; len(photos) > 0 {
				rec.FileIDThumb = photos[len(photos)-1].FileID
			}
		}
	}

	if toChannel {
		p.backRefs.Set(strconv.FormatInt(messages[0].MessageID, 10), chunk, cache.DefaultExpiration)
	}
}

func (p *Publisher) filePath(rec *artwork.Artwork) string {
	return filepath.Join(p.cfg.DownloadDir(rec.Platform), rec.FileName)
}

// chunkRecords splits records into albums of at most ten, preserving page
// order.
func chunkRecords(records []*artwork.Artwork) [][]*artwork.Artwork {
	var chunks [][]*artwork.Artwork
	for len(records) > 0 {
		n := maxGroupSize
		if len(records) < n {
			n = len(records)
		}
		chunks = append(chunks, records[:n])
		records = records[n:]
	}
	return chunks
}
