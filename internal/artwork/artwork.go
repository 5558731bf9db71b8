// Package artwork defines the canonical artwork records and the per-request
// parameter and result types passed through the ingestion pipeline.
package artwork

import "time"

// Contributor identifies the user who submitted an artwork.
type Contributor struct {
	ID   int64
	Name string
}

// Artwork is one persisted page of a work. All pages of one work share
// (Platform, WorkID); Page numbers start at 1.
type Artwork struct {
	ID       int64
	Platform string
	WorkID   string
	Page     int

	UserID   int64
	Username string

	Title    string
	Author   string
	AuthorID string

	OriginalURL string
	ThumbURL    string
	FileName    string
	Extension   string
	Size        int64
	Width       int
	Height      int

	NSFW  bool
	AI    bool
	Guest bool

	// RawInfo holds the source metadata blob as JSON.
	RawInfo string

	// Remote handles for content the destination has already seen, so
	// re-publishes skip the byte upload.
	FileIDThumb    string
	FileIDOriginal string
	MessageLink    string

	CreatedAt time.Time
	UpdatedAt time.Time
	PostCount int
}

// TagRow is one append-only tag audit entry.
type TagRow struct {
	ID     int64
	WorkID string
	Tag    string
}

// Param carries the optional tokens of a submission.
type Param struct {
	Tags        []string
	Pages       []int // nil means all pages
	FromChannel string
	FromUser    string
	Silent      *bool
	Spoiler     *bool
	NSFW        *bool
}

// Result is the pipeline working state returned to the command handler.
type Result struct {
	Success  bool
	Feedback string
	Caption  string

	Artworks []*Artwork
	Tags     []string
	RawTags  []string

	NSFW   bool
	AI     bool
	Cached bool

	// HintMessageID references the in-flight status message, edited once the
	// publish settles. PublishedMessageID references the channel post.
	HintMessageID      int64
	PublishedMessageID int64
	PublishedLink      string

	Param Param
}

// Failure builds a failed result with user-facing feedback.
func Failure(feedback string) *Result {
	return &Result{Feedback: feedback}
}
