// Package store provides the relational meeting store and its SQLite and
// Postgres implementations.
package store

import (
	"context"
	"errors"

	"github.com/rcliao/meeting-rag/internal/model"
)

var (
	// ErrNotFound is returned when a meeting, user or intent does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMeetingExists is returned when a transcript is saved under an id
	// that already has segments. Meetings are written once; delete first.
	ErrMeetingExists = errors.New("meeting already exists")
)

// SaveTranscriptParams holds parameters for storing a transcript.
type SaveTranscriptParams struct {
	MeetingID   string // generated when empty
	Title       string
	MeetingDate string // now when empty
	AudioFile   string
	OwnerID     *int64
	Segments    []model.Segment
}

// ListParams holds parameters for listing meetings.
type ListParams struct {
	Query string // title substring
	IDs   []string
	Limit int
}

// UpdateCounts reports rows touched by a title or date change.
type UpdateCounts struct {
	Dialogues int `json:"updated_dialogues"`
	Minutes   int `json:"updated_minutes"`
}

// TableCounts holds before/deleted/after row counts of one table.
type TableCounts struct {
	Before  int `json:"before"`
	Deleted int `json:"deleted"`
	After   int `json:"after"`
}

// DeleteCounts reports what a meeting delete removed, per table.
type DeleteCounts struct {
	Dialogues TableCounts `json:"dialogues"`
	Minutes   TableCounts `json:"minutes"`
	Shares    TableCounts `json:"shares"`
	Mindmap   TableCounts `json:"mindmap"`
}

// Store defines the relational meeting store.
type Store interface {
	// SaveTranscript stores every segment of a meeting under one meeting id.
	// Returns ErrMeetingExists if the id is already taken.
	SaveTranscript(ctx context.Context, p SaveTranscriptParams) (*model.Meeting, error)

	// Meeting returns a meeting's header. Returns ErrNotFound if it has no segments.
	Meeting(ctx context.Context, meetingID string) (*model.Meeting, error)

	// Segments returns a meeting's segments ordered by start time.
	Segments(ctx context.Context, meetingID string) ([]model.Segment, error)

	// ListMeetings lists meetings, newest meeting date first.
	ListMeetings(ctx context.Context, p ListParams) ([]model.Meeting, error)

	SaveMinutes(ctx context.Context, m model.Minutes) error
	Minutes(ctx context.Context, meetingID string) (*model.Minutes, error)
	SaveMindmap(ctx context.Context, m model.Mindmap) error
	Mindmap(ctx context.Context, meetingID string) (*model.Mindmap, error)

	// UpdateTitle and UpdateDate rewrite the dialogue and minutes rows of a meeting.
	UpdateTitle(ctx context.Context, meetingID, title string) (UpdateCounts, error)
	UpdateDate(ctx context.Context, meetingID, date string) (UpdateCounts, error)

	// DeleteMeeting removes dialogues, minutes, shares and mindmap of a meeting.
	DeleteMeeting(ctx context.Context, meetingID string) (*DeleteCounts, error)

	Users
	Shares
	Intents

	Stats(ctx context.Context) (*Stats, error)
	ExportMeeting(ctx context.Context, meetingID string) (*Bundle, error)
	ImportMeeting(ctx context.Context, b *Bundle) error

	Close() error
}
