package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/NahidaBot/Nahida-Picbot/internal/artwork"
	"github.com/NahidaBot/Nahida-Picbot/internal/config"
	"github.com/NahidaBot/Nahida-Picbot/internal/database"
	"github.com/NahidaBot/Nahida-Picbot/internal/telegram"
)

type sentText struct {
	chatID  int64
	text    string
	replyTo int64
}

type fakeClient struct {
	updates [][]telegram.Update

	sent    []sentText
	edits   []sentText
	deleted []int64
	admins  []telegram.ChatMember
	nextID  int64
}

func (f *fakeClient) GetMe(ctx context.Context) (*telegram.User, error) {
	return &telegram.User{ID: 1, IsBot: true, Username: "picbot"}, nil
}

func (f *fakeClient) GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error) {
	if len(f.updates) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	batch := f.updates[0]
	f.updates = f.updates[1:]
	return batch, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) (*telegram.Message, error) {
	f.sent = append(f.sent, sentText{chatID, text, replyTo})
	f.nextID++
	return &telegram.Message{MessageID: f.nextID, Chat: telegram.Chat{ID: chatID}}, nil
}

func (f *fakeClient) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	f.edits = append(f.edits, sentText{chatID, text, messageID})
	return nil
}

func (f *fakeClient) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeClient) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return nil
}

func (f *fakeClient) GetChatAdministrators(ctx context.Context, chatID int64) ([]telegram.ChatMember, error) {
	return f.admins, nil
}

type fakeStore struct {
	saved     [][]*artwork.Artwork
	tags      map[string][]string
	workPages []*artwork.Artwork
	unmarked  []string
	pending   *database.PendingConfirmation
}

func (f *fakeStore) SaveArtworks(records []*artwork.Artwork) error {
	f.saved = append(f.saved, records)
	return nil
}

func (f *fakeStore) AppendTags(workID string, tags []string) error {
	if f.tags == nil {
		f.tags = make(map[string][]string)
	}
	f.tags[workID] = append(f.tags[workID], tags...)
	return nil
}

func (f *fakeStore) GetWorkPages(workID string, canonicalOnly bool) ([]*artwork.Artwork, error) {
	return f.workPages, nil
}

func (f *fakeStore) Unmark(workID string) (int64, error) {
	f.unmarked = append(f.unmarked, workID)
	return 3, nil
}

func (f *fakeStore) SavePendingConfirmation(chatID, messageID int64) error {
	f.pending = &database.PendingConfirmation{ChatID: chatID, MessageID: messageID}
	return nil
}

func (f *fakeStore) TakePendingConfirmation() (*database.PendingConfirmation, error) {
	p := f.pending
	f.pending = nil
	return p, nil
}

type fakeRunner struct {
	res       *artwork.Result
	calls     int
	canonical bool
	url       string
}

func (f *fakeRunner) Ingest(ctx context.Context, url string, param artwork.Param, contrib artwork.Contributor, canonical bool) *artwork.Result {
	f.calls++
	f.url = url
	f.canonical = canonical
	return f.res
}

type fakePub struct {
	published  []*artwork.Result
	publishTo  []int64
	publishErr error
	originals  [][]*artwork.Artwork
	backRefs   map[int64][]*artwork.Artwork
}

func (f *fakePub) Publish(ctx context.Context, res *artwork.Result, chatID int64) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, res)
	f.publishTo = append(f.publishTo, chatID)
	res.PublishedMessageID = 500
	res.PublishedLink = "https://t.me/gallery/500"
	return nil
}

func (f *fakePub) PublishOriginals(ctx context.Context, records []*artwork.Artwork, chatID, replyTo int64) error {
	f.originals = append(f.originals, records)
	return nil
}

func (f *fakePub) TakeBackRef(messageID int64) []*artwork.Artwork {
	records := f.backRefs[messageID]
	delete(f.backRefs, messageID)
	return records
}

func successResult() *artwork.Result {
	return &artwork.Result{
		Success:  true,
		Feedback: "page 1: 1200x800\n",
		Caption:  "<b>Dawn</b>",
		Artworks: []*artwork.Artwork{{Platform: "pixiv", WorkID: "9001", Page: 1}},
		Tags:     []string{"#Scenery"},
	}
}

func testDispatcher(runner *fakeRunner, pub *fakePub) (*Dispatcher, *fakeClient, *fakeStore) {
	cfg := &config.Config{}
	cfg.Bot.ChannelID = -100111
	cfg.Bot.AdminIDs = []int64{42}

	client := &fakeClient{}
	store := &fakeStore{}
	d := New(cfg, store, client, runner, pub)
	d.me = &telegram.User{Username: "picbot"}
	return d, client, store
}

func adminMessage(text string) *telegram.Message {
	return &telegram.Message{
		MessageID: 10,
		From:      &telegram.User{ID: 42, FirstName: "Ada"},
		Chat:      telegram.Chat{ID: 777},
		Text:      text,
	}
}

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		text    string
		command string
		args    int
	}{
		{"/post https://x.example #tag", "post", 2},
		{"/post@picbot https://x.example", "post", 1},
		{"/post@otherbot https://x.example", "", 0},
		{"plain text", "", 0},
		{"/restart", "restart", 0},
	}
	for _, tc := range cases {
		command, args := splitCommand(tc.text, "picbot")
		if command != tc.command || len(args) != tc.args {
			t.Errorf("splitCommand(%q) = %q, %d args", tc.text, command, len(args))
		}
	}
}

func TestExtractWorkID(t *testing.T) {
	cases := map[string]string{
		"9001234":                              "9001234",
		"https://www.pixiv.net/artworks/98765": "98765",
		"Source: see 12345 above":              "12345",
		"no id here":                           "",
		"123":                                  "",
	}
	for in, want := range cases {
		if got := extractWorkID(in); got != want {
			t.Errorf("extractWorkID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPostDeniedForNonAdmin(t *testing.T) {
	runner := &fakeRunner{res: successResult()}
	d, client, _ := testDispatcher(runner, &fakePub{})

	msg := adminMessage("/post https://x.example")
	msg.From.ID = 7

	if err := d.handleMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if runner.calls != 0 {
		t.Error("pipeline ran for a non-admin")
	}
	if len(client.sent) != 1 || client.sent[0].text != msgDenied {
		t.Errorf("no denial sent: %+v", client.sent)
	}
}

func TestPostPublishesAndCommits(t *testing.T) {
	runner := &fakeRunner{res: successResult()}
	pub := &fakePub{}
	d, client, store := testDispatcher(runner, pub)

	err := d.handleMessage(context.Background(), adminMessage("/post https://x.example/9001 #scenery"))
	if err != nil {
		t.Fatal(err)
	}

	if !runner.canonical || runner.url != "https://x.example/9001" {
		t.Errorf("pipeline call: url=%q canonical=%v", runner.url, runner.canonical)
	}
	if len(pub.published) != 1 || pub.publishTo[0] != -100111 {
		t.Fatalf("publish calls: %v", pub.publishTo)
	}
	if len(store.saved) != 1 {
		t.Fatal("records not committed")
	}
	if got := store.tags["9001"]; len(got) != 1 || got[0] != "#Scenery" {
		t.Errorf("tag audit rows = %v", got)
	}

	last := client.edits[len(client.edits)-1]
	if !strings.Contains(last.text, "https://t.me/gallery/500") {
		t.Errorf("hint not edited with link: %q", last.text)
	}
}

func TestPostPipelineFailureEditsHint(t *testing.T) {
	runner := &fakeRunner{res: artwork.Failure("Could not retrieve the artwork.")}
	pub := &fakePub{}
	d, client, store := testDispatcher(runner, pub)

	if err := d.handleMessage(context.Background(), adminMessage("/post https://x.example/9001")); err != nil {
		t.Fatal(err)
	}
	if len(pub.published) != 0 {
		t.Error("failed result was published")
	}
	if len(store.saved) != 0 {
		t.Error("failed result was committed")
	}
	last := client.edits[len(client.edits)-1]
	if !strings.Contains(last.text, "Could not retrieve") {
		t.Errorf("hint edit = %q", last.text)
	}
}

func TestPostPublishFailureSkipsCommit(t *testing.T) {
	runner := &fakeRunner{res: successResult()}
	pub := &fakePub{publishErr: errors.New("flood wait")}
	d, _, store := testDispatcher(runner, pub)

	if err := d.handleMessage(context.Background(), adminMessage("/post https://x.example/9001")); err != nil {
		t.Fatal(err)
	}
	if len(store.saved) != 0 {
		t.Error("records committed despite publish failure")
	}
}

func TestPostBadParams(t *testing.T) {
	runner := &fakeRunner{res: successResult()}
	d, client, _ := testDispatcher(runner, &fakePub{})

	if err := d.handleMessage(context.Background(), adminMessage("/post https://x.example p=3-1")); err != nil {
		t.Fatal(err)
	}
	if runner.calls != 0 {
		t.Error("pipeline ran with bad params")
	}
	if len(client.sent) == 0 {
		t.Error("no error reply sent")
	}
}

func TestEchoIsGuest(t *testing.T) {
	runner := &fakeRunner{res: successResult()}
	pub := &fakePub{}
	d, _, store := testDispatcher(runner, pub)

	msg := adminMessage("/echo https://x.example/9001")
	msg.From.ID = 7 // not an admin

	if err := d.handleMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if runner.canonical {
		t.Error("echo ran canonically")
	}
	if len(pub.publishTo) != 1 || pub.publishTo[0] != 777 {
		t.Errorf("preview sent to %v, want requester chat", pub.publishTo)
	}
	if len(pub.originals) != 1 {
		t.Error("originals not sent with preview")
	}
	if len(store.saved) != 1 {
		t.Error("guest rows not kept")
	}
}

func TestMarkDupCommitsWithoutPublish(t *testing.T) {
	runner := &fakeRunner{res: successResult()}
	pub := &fakePub{}
	d, client, store := testDispatcher(runner, pub)

	if err := d.handleMessage(context.Background(), adminMessage("/mark_dup https://x.example/9001")); err != nil {
		t.Fatal(err)
	}
	if len(pub.published) != 0 {
		t.Error("mark_dup published")
	}
	if len(store.saved) != 1 {
		t.Error("mark_dup did not commit")
	}
	if !strings.Contains(client.sent[len(client.sent)-1].text, "Marked 1 pages") {
		t.Errorf("reply = %q", client.sent[len(client.sent)-1].text)
	}
}

func TestUnmarkDup(t *testing.T) {
	d, client, store := testDispatcher(&fakeRunner{}, &fakePub{})

	if err := d.handleMessage(context.Background(), adminMessage("/unmark_dup https://www.pixiv.net/artworks/9001")); err != nil {
		t.Fatal(err)
	}
	if len(store.unmarked) != 1 || store.unmarked[0] != "9001" {
		t.Errorf("unmarked = %v", store.unmarked)
	}
	if !strings.Contains(client.sent[0].text, "Removed 3 pages") {
		t.Errorf("reply = %q", client.sent[0].text)
	}
}

func TestForwardReplaysOriginals(t *testing.T) {
	pub := &fakePub{backRefs: map[int64][]*artwork.Artwork{
		500: {{WorkID: "9001", Page: 1}},
	}}
	d, _, _ := testDispatcher(&fakeRunner{}, pub)

	msg := &telegram.Message{
		MessageID: 11,
		From:      &telegram.User{ID: 7},
		Chat:      telegram.Chat{ID: 777},
		Forward: &telegram.ForwardOrigin{
			Type:      "channel",
			Chat:      &telegram.Chat{ID: -100111},
			MessageID: 500,
		},
	}
	if err := d.handleMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(pub.originals) != 1 {
		t.Fatal("originals not replayed")
	}

	// Second forward of the same post is ignored.
	if err := d.handleMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(pub.originals) != 1 {
		t.Error("back-reference replayed twice")
	}
}

func TestForeignForwardIgnored(t *testing.T) {
	pub := &fakePub{backRefs: map[int64][]*artwork.Artwork{500: {{}}}}
	d, _, _ := testDispatcher(&fakeRunner{}, pub)

	msg := &telegram.Message{
		From: &telegram.User{ID: 7},
		Chat: telegram.Chat{ID: 777},
		Forward: &telegram.ForwardOrigin{
			Type:      "channel",
			Chat:      &telegram.Chat{ID: -100999222},
			MessageID: 500,
		},
	}
	if err := d.handleMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(pub.originals) != 0 {
		t.Error("foreign channel forward replayed")
	}
}

func TestRepostOrig(t *testing.T) {
	pub := &fakePub{}
	d, client, store := testDispatcher(&fakeRunner{}, pub)
	store.workPages = []*artwork.Artwork{{WorkID: "9001", Page: 1}}

	msg := adminMessage("/repost_orig")
	msg.ReplyTo = &telegram.Message{
		MessageID: 4,
		Caption:   "Dawn https://www.pixiv.net/artworks/9001",
	}
	if err := d.handleMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(pub.originals) != 1 {
		t.Error("originals not sent")
	}
	if len(client.deleted) != 1 || client.deleted[0] != 10 {
		t.Errorf("command message not deleted: %v", client.deleted)
	}
}

func TestRestartRoundTrip(t *testing.T) {
	d, client, store := testDispatcher(&fakeRunner{}, &fakePub{})

	err := d.handleMessage(context.Background(), adminMessage("/restart"))
	if !errors.Is(err, ErrRestart) {
		t.Fatalf("err = %v, want ErrRestart", err)
	}
	if store.pending == nil {
		t.Fatal("confirmation not persisted")
	}

	// A fresh dispatcher confirms on boot.
	d2 := New(d.cfg, store, client, &fakeRunner{}, &fakePub{})
	d2.confirmRestart(context.Background())
	if len(client.edits) == 0 || client.edits[len(client.edits)-1].text != msgRestarted {
		t.Errorf("restart not confirmed: %+v", client.edits)
	}
	if p, _ := store.TakePendingConfirmation(); p != nil {
		t.Error("confirmation not consumed")
	}
}

func TestRunStopsOnRestart(t *testing.T) {
	client := &fakeClient{
		updates: [][]telegram.Update{
			{{UpdateID: 1, Message: adminMessage("/restart")}},
		},
	}
	cfg := &config.Config{}
	cfg.Bot.AdminIDs = []int64{42}
	store := &fakeStore{}
	d := New(cfg, store, client, &fakeRunner{}, &fakePub{})

	err := d.Run(context.Background())
	if !errors.Is(err, ErrRestart) {
		t.Fatalf("Run returned %v, want ErrRestart", err)
	}
}

func TestGroupAdminBootstrap(t *testing.T) {
	runner := &fakeRunner{res: successResult()}
	d, client, _ := testDispatcher(runner, &fakePub{})
	d.cfg.Bot.CommentGroupID = -200
	client.admins = []telegram.ChatMember{
		{Status: "administrator", User: telegram.User{ID: 99}},
		{Status: "administrator", User: telegram.User{ID: 1, IsBot: true}},
	}

	d.bootstrapAdmins(context.Background())
	if !d.isAdmin(99) {
		t.Error("group admin not registered")
	}
	if d.isAdmin(1) {
		t.Error("bot account registered as admin")
	}
}
