// Package bot dispatches chat updates onto the ingestion pipeline and the
// publisher: command handling, the admin gate, the forwarded-post originals
// replay, and restart continuation.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/NahidaBot/Nahida-Picbot/internal/artwork"
	"github.com/NahidaBot/Nahida-Picbot/internal/config"
	"github.com/NahidaBot/Nahida-Picbot/internal/database"
	"github.com/NahidaBot/Nahida-Picbot/internal/platform"
	"github.com/NahidaBot/Nahida-Picbot/internal/telegram"
)

// ErrRestart signals that /restart was requested; the process supervisor
// is expected to start a fresh instance, which picks up the pending
// confirmation on boot.
var ErrRestart = errors.New("restart requested")

const (
	msgDenied     = "You are not allowed to do that."
	msgProcessing = "Processing..."
	msgRestarting = "Restarting..."
	msgRestarted  = "Restarted."

	pollTimeout = 30
)

// Store is the persistence surface the dispatcher commits through.
type Store interface {
	SaveArtworks(records []*artwork.Artwork) error
	AppendTags(workID string, tags []string) error
	GetWorkPages(workID string, canonicalOnly bool) ([]*artwork.Artwork, error)
	Unmark(workID string) (int64, error)
	SavePendingConfirmation(chatID, messageID int64) error
	TakePendingConfirmation() (*database.PendingConfirmation, error)
}

// Client is the chat surface the dispatcher needs.
type Client interface {
	GetMe(ctx context.Context) (*telegram.User, error)
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	GetChatAdministrators(ctx context.Context, chatID int64) ([]telegram.ChatMember, error)
}

// Ingester runs one submission through the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, url string, param artwork.Param, contrib artwork.Contributor, canonical bool) *artwork.Result
}

// Publisher delivers results and resolves back-references.
type Publisher interface {
	Publish(ctx context.Context, res *artwork.Result, chatID int64) error
	PublishOriginals(ctx context.Context, records []*artwork.Artwork, chatID, replyTo int64) error
	TakeBackRef(messageID int64) []*artwork.Artwork
}

// Dispatcher polls for updates and routes them to handlers.
type Dispatcher struct {
	cfg    *config.Config
	store  Store
	client Client
	runner Ingester
	pub    Publisher

	me *telegram.User

	// admins holds ids gathered from the comment group on startup, in
	// addition to the configured ones.
	admins map[int64]bool
}

// New creates a Dispatcher.
func New(cfg *config.Config, store Store, client Client, runner Ingester, pub Publisher) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		store:  store,
		client: client,
		runner: runner,
		pub:    pub,
		admins: make(map[int64]bool),
	}
}

// Run polls until ctx is cancelled or a restart is requested.
func (d *Dispatcher) Run(ctx context.Context) error {
	me, err := d.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("identifying bot: %w", err)
	}
	d.me = me
	log.Printf("bot: running as @%s", me.Username)

	d.bootstrapAdmins(ctx)
	d.confirmRestart(ctx)

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := d.client.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("bot: polling: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			if update.Message == nil {
				continue
			}
			if err := d.handleMessage(ctx, update.Message); err != nil {
				if errors.Is(err, ErrRestart) {
					return ErrRestart
				}
				log.Printf("bot: handling message %d: %v", update.Message.MessageID, err)
			}
		}
	}
}

// bootstrapAdmins merges the comment group's administrators into the admin
// set so group moderation does not require a config edit.
func (d *Dispatcher) bootstrapAdmins(ctx context.Context) {
	if d.cfg.Bot.CommentGroupID == 0 {
		return
	}
	members, err := d.client.GetChatAdministrators(ctx, d.cfg.Bot.CommentGroupID)
	if err != nil {
		log.Printf("bot: listing group admins: %v", err)
		return
	}
	for _, m := range members {
		if !m.User.IsBot {
			d.admins[m.User.ID] = true
		}
	}
	log.Printf("bot: %d group admins registered", len(d.admins))
}

// confirmRestart edits the message left behind by /restart in the previous
// process, if any.
func (d *Dispatcher) confirmRestart(ctx context.Context) {
	pending, err := d.store.TakePendingConfirmation()
	if err != nil {
		log.Printf("bot: reading pending confirmation: %v", err)
		return
	}
	if pending == nil {
		return
	}
	if err := d.client.EditMessageText(ctx, pending.ChatID, pending.MessageID, msgRestarted); err != nil {
		log.Printf("bot: confirming restart: %v", err)
	}
}

func (d *Dispatcher) isAdmin(userID int64) bool {
	return d.cfg.IsAdmin(userID) || d.admins[userID]
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if d.handleForward(ctx, msg) {
		return nil
	}

	command, args := splitCommand(msg.Text, d.botName())
	switch command {
	case "":
		return nil
	case "start", "help":
		_, err := d.client.SendMessage(ctx, msg.Chat.ID, helpText, msg.MessageID)
		return err
	case "post":
		return d.handlePost(ctx, msg, args)
	case "echo":
		return d.handleEcho(ctx, msg, args)
	case "mark_dup":
		return d.handleMarkDup(ctx, msg, args)
	case "unmark_dup":
		return d.handleUnmarkDup(ctx, msg, args)
	case "repost_orig":
		return d.handleRepostOrig(ctx, msg)
	case "restart":
		return d.handleRestart(ctx, msg)
	default:
		return nil
	}
}

// handleForward replays originals for a forwarded channel post carrying a
// live back-reference. Unknown forwards are ignored silently.
func (d *Dispatcher) handleForward(ctx context.Context, msg *telegram.Message) bool {
	fwd := msg.Forward
	if fwd == nil || fwd.Type != "channel" || fwd.Chat == nil {
		return false
	}
	if fwd.Chat.ID != d.cfg.Bot.ChannelID && fwd.Chat.ID != d.cfg.Bot.AIRedirect.ChannelID {
		return false
	}

	records := d.pub.TakeBackRef(fwd.MessageID)
	if len(records) == 0 {
		return true
	}
	d.client.SendChatAction(ctx, msg.Chat.ID, "upload_document")
	if err := d.pub.PublishOriginals(ctx, records, msg.Chat.ID, msg.MessageID); err != nil {
		log.Printf("bot: replaying originals for %d: %v", fwd.MessageID, err)
	}
	return true
}

func (d *Dispatcher) handlePost(ctx context.Context, msg *telegram.Message, args []string) error {
	if !d.requireAdmin(ctx, msg) {
		return nil
	}
	if len(args) == 0 {
		_, err := d.client.SendMessage(ctx, msg.Chat.ID, "Usage: /post &lt;url&gt; [#tags] [p=1-3] [silent=yes]", msg.MessageID)
		return err
	}
	param, err := artwork.ParseParams(args[1:])
	if err != nil {
		_, sendErr := d.client.SendMessage(ctx, msg.Chat.ID, platform.EscapeHTML(err.Error()), msg.MessageID)
		return sendErr
	}

	d.client.SendChatAction(ctx, msg.Chat.ID, "upload_photo")
	hint, err := d.client.SendMessage(ctx, msg.Chat.ID, msgProcessing, msg.MessageID)
	if err != nil {
		return err
	}

	res := d.runner.Ingest(ctx, args[0], param, contributor(msg.From), true)
	if !res.Success {
		return d.client.EditMessageText(ctx, msg.Chat.ID, hint.MessageID, res.Feedback)
	}

	if err := d.pub.Publish(ctx, res, d.cfg.Bot.ChannelID); err != nil {
		log.Printf("bot: publishing %s: %v", args[0], err)
		return d.client.EditMessageText(ctx, msg.Chat.ID, hint.MessageID, "Publishing failed, nothing was committed.")
	}

	if err := d.commit(res); err != nil {
		log.Printf("bot: committing %s: %v", args[0], err)
	}

	text := fmt.Sprintf("Published: <a href=\"%s\">view post</a>\n%s", res.PublishedLink, res.Feedback)
	return d.client.EditMessageText(ctx, msg.Chat.ID, hint.MessageID, text)
}

// handleEcho previews a submission back to the requester: the caption as it
// would appear on the channel, plus the original files. Records are kept as
// guest rows so a later canonical post reuses the downloads.
func (d *Dispatcher) handleEcho(ctx context.Context, msg *telegram.Message, args []string) error {
	if len(args) == 0 {
		_, err := d.client.SendMessage(ctx, msg.Chat.ID, "Usage: /echo &lt;url&gt; [#tags] [p=1-3]", msg.MessageID)
		return err
	}
	param, err := artwork.ParseParams(args[1:])
	if err != nil {
		_, sendErr := d.client.SendMessage(ctx, msg.Chat.ID, platform.EscapeHTML(err.Error()), msg.MessageID)
		return sendErr
	}

	d.client.SendChatAction(ctx, msg.Chat.ID, "upload_photo")
	res := d.runner.Ingest(ctx, args[0], param, contributor(msg.From), false)
	if !res.Success {
		_, err := d.client.SendMessage(ctx, msg.Chat.ID, res.Feedback, msg.MessageID)
		return err
	}

	if err := d.pub.Publish(ctx, res, msg.Chat.ID); err != nil {
		log.Printf("bot: echoing %s: %v", args[0], err)
		_, sendErr := d.client.SendMessage(ctx, msg.Chat.ID, "Preview failed.", msg.MessageID)
		return sendErr
	}
	if err := d.pub.PublishOriginals(ctx, res.Artworks, msg.Chat.ID, msg.MessageID); err != nil {
		log.Printf("bot: echoing originals %s: %v", args[0], err)
	}

	if err := d.commit(res); err != nil {
		log.Printf("bot: committing echo %s: %v", args[0], err)
	}
	return nil
}

// handleMarkDup runs the pipeline without publishing, so the work counts as
// seen by future dedup checks.
func (d *Dispatcher) handleMarkDup(ctx context.Context, msg *telegram.Message, args []string) error {
	if !d.requireAdmin(ctx, msg) {
		return nil
	}
	if len(args) == 0 {
		_, err := d.client.SendMessage(ctx, msg.Chat.ID, "Usage: /mark_dup &lt;url&gt;", msg.MessageID)
		return err
	}

	res := d.runner.Ingest(ctx, args[0], artwork.Param{}, contributor(msg.From), true)
	if !res.Success {
		_, err := d.client.SendMessage(ctx, msg.Chat.ID, res.Feedback, msg.MessageID)
		return err
	}
	if err := d.commit(res); err != nil {
		return err
	}
	_, err := d.client.SendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("Marked %d pages as seen.", len(res.Artworks)), msg.MessageID)
	return err
}

func (d *Dispatcher) handleUnmarkDup(ctx context.Context, msg *telegram.Message, args []string) error {
	if !d.requireAdmin(ctx, msg) {
		return nil
	}
	if len(args) == 0 {
		_, err := d.client.SendMessage(ctx, msg.Chat.ID, "Usage: /unmark_dup &lt;work id or url&gt;", msg.MessageID)
		return err
	}

	workID := extractWorkID(args[0])
	if workID == "" {
		_, err := d.client.SendMessage(ctx, msg.Chat.ID, "No work id found in that.", msg.MessageID)
		return err
	}
	removed, err := d.store.Unmark(workID)
	if err != nil {
		return fmt.Errorf("unmarking %s: %w", workID, err)
	}
	_, err = d.client.SendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("Removed %d pages for work %s.", removed, workID), msg.MessageID)
	return err
}

// handleRepostOrig resends the stored originals for the work referenced by
// the replied-to message, then removes the invoking command.
func (d *Dispatcher) handleRepostOrig(ctx context.Context, msg *telegram.Message) error {
	if !d.requireAdmin(ctx, msg) {
		return nil
	}
	if msg.ReplyTo == nil {
		_, err := d.client.SendMessage(ctx, msg.Chat.ID, "Reply to a published post with /repost_orig.", msg.MessageID)
		return err
	}

	workID := extractWorkID(msg.ReplyTo.Text + " " + msg.ReplyTo.Caption)
	if workID == "" {
		_, err := d.client.SendMessage(ctx, msg.Chat.ID, "No work id found in the replied message.", msg.MessageID)
		return err
	}

	records, err := d.store.GetWorkPages(workID, true)
	if err != nil {
		return fmt.Errorf("loading pages for %s: %w", workID, err)
	}
	if len(records) == 0 {
		_, err := d.client.SendMessage(ctx, msg.Chat.ID, "No stored pages for that work.", msg.MessageID)
		return err
	}

	if err := d.pub.PublishOriginals(ctx, records, msg.Chat.ID, msg.ReplyTo.MessageID); err != nil {
		return fmt.Errorf("reposting originals for %s: %w", workID, err)
	}
	if err := d.client.DeleteMessage(ctx, msg.Chat.ID, msg.MessageID); err != nil {
		log.Printf("bot: deleting command message: %v", err)
	}
	return nil
}

// handleRestart persists a confirmation marker and stops the poll loop; the
// next process edits the marker message on boot.
func (d *Dispatcher) handleRestart(ctx context.Context, msg *telegram.Message) error {
	if !d.requireAdmin(ctx, msg) {
		return nil
	}
	hint, err := d.client.SendMessage(ctx, msg.Chat.ID, msgRestarting, msg.MessageID)
	if err != nil {
		return err
	}
	if err := d.store.SavePendingConfirmation(msg.Chat.ID, hint.MessageID); err != nil {
		return fmt.Errorf("saving restart confirmation: %w", err)
	}
	return ErrRestart
}

// requireAdmin denies non-admins before any side effect happens.
func (d *Dispatcher) requireAdmin(ctx context.Context, msg *telegram.Message) bool {
	if msg.From != nil && d.isAdmin(msg.From.ID) {
		return true
	}
	if _, err := d.client.SendMessage(ctx, msg.Chat.ID, msgDenied, msg.MessageID); err != nil {
		log.Printf("bot: sending denial: %v", err)
	}
	return false
}

// commit persists records and the tag audit rows after a successful
// publish or preview.
func (d *Dispatcher) commit(res *artwork.Result) error {
	if err := d.store.SaveArtworks(res.Artworks); err != nil {
		return err
	}
	if len(res.Artworks) > 0 && len(res.Tags) > 0 {
		return d.store.AppendTags(res.Artworks[0].WorkID, res.Tags)
	}
	return nil
}

func (d *Dispatcher) botName() string {
	if d.me == nil {
		return ""
	}
	return d.me.Username
}

func contributor(from *telegram.User) artwork.Contributor {
	if from == nil {
		return artwork.Contributor{}
	}
	return artwork.Contributor{ID: from.ID, Name: from.Name()}
}

// splitCommand parses "/cmd@bot arg arg" into the bare command and its
// arguments. Commands addressed to a different bot are dropped.
func splitCommand(text, botName string) (string, []string) {
	if !strings.HasPrefix(text, "/") {
		return "", nil
	}
	fields := strings.Fields(text)
	command := strings.TrimPrefix(fields[0], "/")
	if name, target, ok := strings.Cut(command, "@"); ok {
		if botName != "" && !strings.EqualFold(target, botName) {
			return "", nil
		}
		command = name
	}
	return command, fields[1:]
}

var workIDPattern = regexp.MustCompile(`\d{4,}`)

// extractWorkID pulls a numeric work id out of a bare id, a URL, or pasted
// message text.
func extractWorkID(s string) string {
	return workIDPattern.FindString(s)
}

const helpText = `<b>picbot</b>
/post &lt;url&gt; [#tags] [p=1-3] [silent=yes] [spoiler=yes] [nsfw=yes] — publish to the channel
/echo &lt;url&gt; — preview the post and receive the original files
/mark_dup &lt;url&gt; — record a work as seen without publishing
/unmark_dup &lt;work id&gt; — forget a work
/repost_orig — reply to a post to resend its original files
/restart — restart the bot

Forward a channel post here to receive its original files.`
