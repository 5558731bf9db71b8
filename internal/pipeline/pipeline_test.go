package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/NahidaBot/Nahida-Picbot/internal/artwork"
	"github.com/NahidaBot/Nahida-Picbot/internal/config"
	"github.com/NahidaBot/Nahida-Picbot/internal/platform"
)

// fakeAdapter scripts each pipeline stage so tests can force hits,
// failures, and panics.
type fakeAdapter struct {
	raw        *platform.RawInfo
	extractErr error
	panicOn    string

	duplicate *artwork.Artwork
	cached    []*artwork.Artwork

	downloads int
}

func (f *fakeAdapter) Kind() platform.Kind { return platform.KindGeneric }

func (f *fakeAdapter) Extract(ctx context.Context, url string) (*platform.RawInfo, error) {
	if f.panicOn == "extract" {
		panic("scripted")
	}
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.raw, nil
}

func (f *fakeAdapter) CheckDuplicate(workID string) (*artwork.Artwork, error) {
	return f.duplicate, nil
}

func (f *fakeAdapter) CheckCache(workID string) ([]*artwork.Artwork, error) {
	return f.cached, nil
}

func (f *fakeAdapter) BuildRecords(raw *platform.RawInfo, contrib artwork.Contributor, canonical bool, param artwork.Param) ([]*artwork.Artwork, error) {
	var records []*artwork.Artwork
	for i, page := range raw.Pages {
		records = append(records, &artwork.Artwork{
			Platform: "generic",
			WorkID:   raw.WorkID,
			Page:     i + 1,
			UserID:   contrib.ID,
			Username: contrib.Name,
			Width:    page.Width,
			Height:   page.Height,
			Guest:    !canonical,
		})
	}
	return records, nil
}

func (f *fakeAdapter) DeriveTags(raw *platform.RawInfo, curated []string) *platform.TagSet {
	return &platform.TagSet{
		Curated: []string{"#Scenery"},
		Raw:     []string{"#landscape"},
		NSFW:    raw.Explicit,
	}
}

func (f *fakeAdapter) BuildCaption(records []*artwork.Artwork, raw *platform.RawInfo, tags *platform.TagSet, param artwork.Param) string {
	return "<b>" + raw.Title + "</b>"
}

func (f *fakeAdapter) Download(ctx context.Context, rec *artwork.Artwork) error {
	f.downloads++
	return nil
}

func testRunner(fake *fakeAdapter, dedup bool) *Runner {
	cfg := &config.Config{}
	cfg.Bot.Deduplication = dedup
	adapters := map[platform.Kind]platform.Adapter{
		platform.KindGeneric: fake,
	}
	return New(cfg, adapters)
}

func testRaw() *platform.RawInfo {
	return &platform.RawInfo{
		WorkID: "9001",
		Title:  "Dawn",
		Pages: []platform.RawPage{
			{URL: "https://files.example/1.jpg", Width: 1200, Height: 800},
			{URL: "https://files.example/2.jpg", Width: 900, Height: 1600},
		},
	}
}

func TestIngestSuccess(t *testing.T) {
	fake := &fakeAdapter{raw: testRaw()}
	r := testRunner(fake, true)

	res := r.Ingest(context.Background(), "https://files.example/post/9001",
		artwork.Param{}, artwork.Contributor{ID: 42, Name: "alice"}, true)

	if !res.Success {
		t.Fatalf("Ingest failed: %s", res.Feedback)
	}
	if len(res.Artworks) != 2 {
		t.Fatalf("got %d records, want 2", len(res.Artworks))
	}
	if fake.downloads != 2 {
		t.Errorf("got %d downloads, want 2", fake.downloads)
	}
	if res.Caption != "<b>Dawn</b>" {
		t.Errorf("caption = %q", res.Caption)
	}
	if !strings.Contains(res.Feedback, "page 1: 1200x800") {
		t.Errorf("feedback missing page line: %q", res.Feedback)
	}
	if res.Cached {
		t.Error("fresh ingest marked cached")
	}
	if res.Artworks[0].Guest {
		t.Error("canonical ingest produced guest record")
	}
}

func TestIngestExtractionFailure(t *testing.T) {
	fake := &fakeAdapter{extractErr: errors.New("boom")}
	r := testRunner(fake, true)

	res := r.Ingest(context.Background(), "https://files.example/bad",
		artwork.Param{}, artwork.Contributor{}, true)

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Feedback != msgRetrieveFailed {
		t.Errorf("feedback = %q, want fixed text", res.Feedback)
	}
	if strings.Contains(res.Feedback, "boom") {
		t.Error("source-side error leaked into feedback")
	}
}

func TestIngestRecoversPanic(t *testing.T) {
	fake := &fakeAdapter{panicOn: "extract"}
	r := testRunner(fake, true)

	res := r.Ingest(context.Background(), "https://files.example/post/9001",
		artwork.Param{}, artwork.Contributor{}, true)

	if res.Success || res.Feedback != msgRetrieveFailed {
		t.Fatalf("panic not converted to fixed failure: %+v", res)
	}
}

func TestIngestDuplicate(t *testing.T) {
	created := time.Date(2025, 3, 9, 18, 30, 0, 0, time.UTC)
	fake := &fakeAdapter{
		raw: testRaw(),
		duplicate: &artwork.Artwork{
			UserID:      7,
			Username:    "bob <tester>",
			CreatedAt:   created,
			MessageLink: "https://t.me/gallery/55",
		},
	}
	r := testRunner(fake, true)

	res := r.Ingest(context.Background(), "https://files.example/post/9001",
		artwork.Param{}, artwork.Contributor{ID: 42}, true)

	if res.Success {
		t.Fatal("duplicate passed dedup")
	}
	if !strings.Contains(res.Feedback, `tg://user?id=7`) {
		t.Errorf("feedback missing contributor mention: %q", res.Feedback)
	}
	if !strings.Contains(res.Feedback, "bob &lt;tester&gt;") {
		t.Errorf("contributor name not escaped: %q", res.Feedback)
	}
	if !strings.Contains(res.Feedback, "2025-03-09 18:30:00") {
		t.Errorf("feedback missing timestamp: %q", res.Feedback)
	}
	if !strings.Contains(res.Feedback, "https://t.me/gallery/55") {
		t.Errorf("feedback missing original link: %q", res.Feedback)
	}
}

func TestIngestDedupSkippedForGuest(t *testing.T) {
	fake := &fakeAdapter{
		raw:       testRaw(),
		duplicate: &artwork.Artwork{UserID: 7},
	}
	r := testRunner(fake, true)

	res := r.Ingest(context.Background(), "https://files.example/post/9001",
		artwork.Param{}, artwork.Contributor{ID: 42}, false)

	if !res.Success {
		t.Fatalf("guest ingest blocked by dedup: %s", res.Feedback)
	}
}

func TestIngestDedupDisabled(t *testing.T) {
	fake := &fakeAdapter{
		raw:       testRaw(),
		duplicate: &artwork.Artwork{UserID: 7},
	}
	r := testRunner(fake, false)

	res := r.Ingest(context.Background(), "https://files.example/post/9001",
		artwork.Param{}, artwork.Contributor{ID: 42}, true)

	if !res.Success {
		t.Fatalf("ingest blocked with dedup disabled: %s", res.Feedback)
	}
}

func TestIngestCacheHit(t *testing.T) {
	fake := &fakeAdapter{
		raw: testRaw(),
		cached: []*artwork.Artwork{
			{WorkID: "9001", Page: 1, Guest: true, UserID: 7, Username: "bob", PostCount: 1},
			{WorkID: "9001", Page: 2, Guest: true, UserID: 7, Username: "bob", PostCount: 1},
		},
	}
	r := testRunner(fake, true)

	res := r.Ingest(context.Background(), "https://files.example/post/9001",
		artwork.Param{}, artwork.Contributor{ID: 42, Name: "alice"}, true)

	if !res.Success || !res.Cached {
		t.Fatalf("cache hit not taken: %+v", res)
	}
	if fake.downloads != 0 {
		t.Errorf("cache hit still downloaded %d pages", fake.downloads)
	}
	for _, rec := range res.Artworks {
		if rec.Guest {
			t.Error("canonical repost did not promote guest record")
		}
		if rec.UserID != 42 || rec.Username != "alice" {
			t.Errorf("contributor not taken over: %d %q", rec.UserID, rec.Username)
		}
		if rec.PostCount != 2 {
			t.Errorf("post count = %d, want 2", rec.PostCount)
		}
		if rec.UpdatedAt.IsZero() {
			t.Error("updated timestamp not touched")
		}
	}
	if !strings.Contains(res.Feedback, "Found in cache") {
		t.Errorf("feedback missing cache note: %q", res.Feedback)
	}
}

func TestIngestCacheHitGuestStaysGuest(t *testing.T) {
	fake := &fakeAdapter{
		raw: testRaw(),
		cached: []*artwork.Artwork{
			{WorkID: "9001", Page: 1, Guest: true, UserID: 7, Username: "bob"},
		},
	}
	r := testRunner(fake, true)

	res := r.Ingest(context.Background(), "https://files.example/post/9001",
		artwork.Param{}, artwork.Contributor{ID: 42, Name: "alice"}, false)

	if !res.Success {
		t.Fatalf("ingest failed: %s", res.Feedback)
	}
	rec := res.Artworks[0]
	if !rec.Guest || rec.UserID != 7 {
		t.Errorf("guest repost mutated ownership: guest=%v user=%d", rec.Guest, rec.UserID)
	}
}

func TestIngestNSFWOverride(t *testing.T) {
	nsfw := true
	fake := &fakeAdapter{raw: testRaw()}
	r := testRunner(fake, true)

	res := r.Ingest(context.Background(), "https://files.example/post/9001",
		artwork.Param{NSFW: &nsfw}, artwork.Contributor{ID: 42}, true)

	if !res.NSFW {
		t.Error("param override did not force NSFW")
	}
	for _, rec := range res.Artworks {
		if !rec.NSFW {
			t.Error("record not marked NSFW")
		}
	}
}
