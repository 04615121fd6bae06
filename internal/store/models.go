package store

import "time"

type ContentStatus string

const (
	StatusPendingReview ContentStatus = "pending_review"
	StatusApproved      ContentStatus = "approved"
	StatusPublished     ContentStatus = "published"
)

func (s ContentStatus) Valid() bool {
	switch s {
	case StatusPendingReview, StatusApproved, StatusPublished:
		return true
	}
	return false
}

type CaptionStatus string

const (
	CaptionPending  CaptionStatus = "pending"
	CaptionApproved CaptionStatus = "approved"
)

type Tone string

const (
	ToneProfessional Tone = "Professional"
	ToneCasual       Tone = "Casual"
	ToneEngaging     Tone = "Engaging"
)

var Tones = []Tone{ToneProfessional, ToneCasual, ToneEngaging}

func (t Tone) Valid() bool {
	for _, tone := range Tones {
		if t == tone {
			return true
		}
	}
	return false
}

type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ContentItem struct {
	ID           string
	DriveFileID  string
	Filename     string
	FileType     string
	Status       ContentStatus
	DriveURL     string
	ThumbnailURL string
	EmbedURL     string
	MimeType     string
	UploadedAt   time.Time
	UpdatedAt    time.Time
	// Captions is populated by the joined read paths only and is never nil there.
	Captions []Caption
}

// ContentDescriptor is what a drive sync knows about a file.
type ContentDescriptor struct {
	DriveFileID  string
	Filename     string
	FileType     string
	DriveURL     string
	ThumbnailURL string
	EmbedURL     string
	MimeType     string
}

type ContentFilter struct {
	Status   string
	FileType string
}

type Caption struct {
	ID            string
	ContentItemID string
	Tone          Tone
	Content       string
	Status        CaptionStatus
	Version       int
	ApprovedBy    *string
	ApprovedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewCaption is a caption row about to be inserted.
type NewCaption struct {
	Tone    Tone
	Content string
}

// CaptionWithContent is a caption joined with the content item that owns it.
type CaptionWithContent struct {
	Caption Caption
	Item    ContentItem
}

type Setting struct {
	Key         string
	Value       string
	Description string
	UpdatedAt   time.Time
	UpdatedBy   *string
}

type PostMetrics struct {
	ContentItemID string
	PostID        string
	Likes         int
	Comments      int
	Shares        int
	Reach         int
	Impressions   int
	Engagements   int
	FetchedAt     time.Time
}

type DriveEvent struct {
	Event       string
	DriveFileID string
	Payload     []byte
}

// LinkSummary reports how many captions hang off one content item.
type LinkSummary struct {
	ContentItemID string
	DriveFileID   string
	Filename      string
	FileType      string
	CaptionCount  int
}

// OrphanCaption is a caption whose content item no longer exists.
type OrphanCaption struct {
	CaptionID     string
	ContentItemID string
	Tone          string
	CreatedAt     time.Time
}
