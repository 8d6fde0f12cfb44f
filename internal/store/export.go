package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/meeting-rag/internal/model"
)

// Bundle is the portable form of one meeting's relational rows.
type Bundle struct {
	Meeting  model.Meeting   `json:"meeting" yaml:"meeting"`
	Segments []model.Segment `json:"segments" yaml:"segments"`
	Minutes  *model.Minutes  `json:"minutes,omitempty" yaml:"minutes,omitempty"`
	Mindmap  *model.Mindmap  `json:"mindmap,omitempty" yaml:"mindmap,omitempty"`
}

// ExportMeeting collects a meeting's transcript, minutes and mindmap.
func (s *SQLStore) ExportMeeting(ctx context.Context, meetingID string) (*Bundle, error) {
	m, err := s.Meeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	segs, err := s.Segments(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("segments: %w", err)
	}
	b := &Bundle{Meeting: *m, Segments: segs}

	if b.Minutes, err = s.Minutes(ctx, meetingID); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if b.Mindmap, err = s.Mindmap(ctx, meetingID); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return b, nil
}

// ImportMeeting stores a bundle. Owner ids are not carried between databases.
// Fails if the meeting id already exists.
func (s *SQLStore) ImportMeeting(ctx context.Context, b *Bundle) error {
	if b == nil || b.Meeting.ID == "" {
		return fmt.Errorf("import: bundle has no meeting id")
	}
	if _, err := s.Meeting(ctx, b.Meeting.ID); err == nil {
		return fmt.Errorf("import: %w: %s", ErrMeetingExists, b.Meeting.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if _, err := s.SaveTranscript(ctx, SaveTranscriptParams{
		MeetingID:   b.Meeting.ID,
		Title:       b.Meeting.Title,
		MeetingDate: b.Meeting.MeetingDate,
		AudioFile:   b.Meeting.AudioFile,
		Segments:    b.Segments,
	}); err != nil {
		return fmt.Errorf("import transcript: %w", err)
	}
	if b.Minutes != nil {
		m := *b.Minutes
		m.MeetingID = b.Meeting.ID
		m.OwnerID = nil
		if err := s.SaveMinutes(ctx, m); err != nil {
			return err
		}
	}
	if b.Mindmap != nil {
		m := *b.Mindmap
		m.MeetingID = b.Meeting.ID
		if err := s.SaveMindmap(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
