package meeting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rcliao/meeting-rag/internal/model"
	"github.com/rcliao/meeting-rag/internal/store"
)

// UpdateResult reports a title or date change across both stores.
type UpdateResult struct {
	Success          bool   `json:"success"`
	MeetingID        string `json:"meeting_id"`
	UpdatedChunks    int    `json:"updated_chunks"`
	UpdatedSubtopics int    `json:"updated_subtopics"`
	UpdatedDialogues int    `json:"updated_dialogues"`
	UpdatedMinutes   int    `json:"updated_minutes"`
	// Inconsistent is set when the vector store was changed but the
	// relational store was not.
	Inconsistent bool `json:"inconsistent,omitempty"`
	// NotFound is set when neither store holds anything for the meeting.
	NotFound bool   `json:"not_found,omitempty"`
	IntentID string `json:"intent_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Rename sets a meeting's title in both collections, then in the dialogue
// and minutes rows.
func (s *Service) Rename(ctx context.Context, meetingID, title string) UpdateResult {
	if strings.TrimSpace(title) == "" {
		return UpdateResult{MeetingID: meetingID, Error: "title is empty"}
	}
	in := s.beginIntent(ctx, model.IntentRename, meetingID, title)
	res := s.rename(ctx, meetingID, title)
	res.IntentID = s.finishIntent(ctx, in, res.Success, res.Error)
	return res
}

// Reschedule sets a meeting's date the same way Rename sets its title.
// date is stored as given; see model.FormatDate for the canonical layout.
func (s *Service) Reschedule(ctx context.Context, meetingID, date string) UpdateResult {
	if strings.TrimSpace(date) == "" {
		return UpdateResult{MeetingID: meetingID, Error: "date is empty"}
	}
	in := s.beginIntent(ctx, model.IntentReschedule, meetingID, date)
	res := s.reschedule(ctx, meetingID, date)
	res.IntentID = s.finishIntent(ctx, in, res.Success, res.Error)
	return res
}

func (s *Service) rename(ctx context.Context, meetingID, title string) UpdateResult {
	return s.update(ctx, model.IntentRename, meetingID, title, model.TitleField, s.store.UpdateTitle)
}

func (s *Service) reschedule(ctx context.Context, meetingID, date string) UpdateResult {
	dateField := func(string) string { return model.FieldMeetingDate }
	return s.update(ctx, model.IntentReschedule, meetingID, date, dateField, s.store.UpdateDate)
}

// update writes value into the vector collections first and the relational
// store second. A relational failure leaves the stores inconsistent; it is
// reported, not rolled back.
func (s *Service) update(
	ctx context.Context,
	op, meetingID, value string,
	fieldFor func(collection string) string,
	relational func(ctx context.Context, meetingID, value string) (store.UpdateCounts, error),
) (res UpdateResult) {
	res.MeetingID = meetingID
	defer s.recoverInto(op, meetingID, &res.Success, &res.Error)
	log := s.log.With().Str("op", op).Str("meeting_id", meetingID).Logger()

	for _, coll := range model.Collections {
		n, err := s.vectors.UpdateMetadata(ctx, coll, byMeeting(meetingID), fieldFor(coll), value)
		if err != nil {
			s.metrics.ConsistencyError(op)
			log.Error().Err(err).Str("collection", coll).Msg("vector metadata update failed, relational update skipped")
			res.Error = fmt.Sprintf("update %s: %v", coll, err)
			return res
		}
		if coll == model.CollectionChunks {
			res.UpdatedChunks = n
		} else {
			res.UpdatedSubtopics = n
		}
	}

	counts, err := relational(ctx, meetingID, value)
	if err != nil {
		s.metrics.ConsistencyError(op)
		log.Error().Err(err).
			Int("updated_chunks", res.UpdatedChunks).
			Int("updated_subtopics", res.UpdatedSubtopics).
			Msg("relational update failed after vector update, stores are inconsistent")
		res.Inconsistent = true
		res.Error = fmt.Sprintf("relational update failed, vector store was already updated: %v", err)
		return res
	}
	res.UpdatedDialogues = counts.Dialogues
	res.UpdatedMinutes = counts.Minutes
	if res.UpdatedChunks+res.UpdatedSubtopics+res.UpdatedDialogues+res.UpdatedMinutes == 0 {
		log.Warn().Msg("no content to update")
		res.NotFound = true
		res.Error = fmt.Sprintf("no content for meeting %s", meetingID)
		return res
	}
	res.Success = true

	log.Info().
		Int("updated_chunks", res.UpdatedChunks).
		Int("updated_subtopics", res.UpdatedSubtopics).
		Int("updated_dialogues", res.UpdatedDialogues).
		Int("updated_minutes", res.UpdatedMinutes).
		Msg("meeting metadata updated")
	return res
}

// CollectionCounts holds before/deleted/after document counts of one collection.
type CollectionCounts = store.TableCounts

// DeleteResult reports every sub-step of a meeting delete. Steps run
// independently; a failed step does not undo earlier ones.
type DeleteResult struct {
	Success    bool                        `json:"success"`
	MeetingID  string                      `json:"meeting_id"`
	AudioFile  string                      `json:"audio_file,omitempty"`
	Relational *store.DeleteCounts         `json:"relational,omitempty"`
	Vectors    map[string]CollectionCounts `json:"vectors"`
	// FileRemoved is false when there was no file to remove.
	FileRemoved bool     `json:"file_removed"`
	Warnings    []string `json:"warnings,omitempty"`
	IntentID    string   `json:"intent_id,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Delete removes a meeting from the relational store, both collections and
// the upload directory.
func (s *Service) Delete(ctx context.Context, meetingID string) DeleteResult {
	if strings.TrimSpace(meetingID) == "" {
		return DeleteResult{Error: "meeting id is empty", Vectors: map[string]CollectionCounts{}}
	}
	in := s.beginIntent(ctx, model.IntentDelete, meetingID, "")
	res := s.delete(ctx, meetingID)
	res.IntentID = s.finishIntent(ctx, in, res.Success, res.Error)
	return res
}

func (s *Service) delete(ctx context.Context, meetingID string) (res DeleteResult) {
	res.MeetingID = meetingID
	res.Vectors = map[string]CollectionCounts{}
	defer s.recoverInto(model.IntentDelete, meetingID, &res.Success, &res.Error)
	log := s.log.With().Str("op", model.IntentDelete).Str("meeting_id", meetingID).Logger()

	var errs []string
	fail := func(step string, err error) {
		s.metrics.ConsistencyError(model.IntentDelete)
		log.Error().Err(err).Str("step", step).Msg("delete step failed")
		errs = append(errs, fmt.Sprintf("%s: %v", step, err))
	}

	// The audio name must be read before the rows holding it are deleted.
	res.AudioFile = s.audioFile(ctx, meetingID)

	counts, err := s.store.DeleteMeeting(ctx, meetingID)
	if err != nil {
		fail("relational", err)
	} else {
		res.Relational = counts
		log.Info().
			Int("before", counts.Dialogues.Before).
			Int("after", counts.Dialogues.After).
			Int("minutes_deleted", counts.Minutes.Deleted).
			Int("shares_deleted", counts.Shares.Deleted).
			Int("mindmap_deleted", counts.Mindmap.Deleted).
			Msg("relational rows deleted")
	}

	for _, coll := range model.Collections {
		c, err := s.deleteCollection(ctx, coll, meetingID)
		if err != nil {
			fail(coll, err)
			continue
		}
		res.Vectors[coll] = c
		ev := log.Info()
		if c.After != 0 {
			ev = log.Warn()
		}
		ev.Str("collection", coll).Int("before", c.Before).Int("deleted", c.Deleted).Int("after", c.After).
			Msg("vector documents deleted")
	}

	if res.AudioFile == "" {
		log.Info().Msg("no audio file recorded, skipping file removal")
	} else {
		path := filepath.Join(s.uploadDir, filepath.Base(res.AudioFile))
		switch err := os.Remove(path); {
		case err == nil:
			res.FileRemoved = true
			log.Info().Str("path", path).Msg("audio file removed")
		case errors.Is(err, os.ErrNotExist):
			res.Warnings = append(res.Warnings, "audio file not found: "+path)
			log.Warn().Str("path", path).Msg("audio file not found")
		default:
			fail("audio file", err)
		}
	}

	if len(errs) > 0 {
		res.Error = strings.Join(errs, "; ")
		return res
	}
	res.Success = true
	return res
}

func (s *Service) deleteCollection(ctx context.Context, coll, meetingID string) (CollectionCounts, error) {
	var c CollectionCounts
	var err error
	f := byMeeting(meetingID)
	if c.Before, err = s.vectors.Count(ctx, coll, f); err != nil {
		return c, fmt.Errorf("count before: %w", err)
	}
	if c.Deleted, err = s.vectors.DeleteMatching(ctx, coll, f); err != nil {
		return c, err
	}
	if c.After, err = s.vectors.Count(ctx, coll, f); err != nil {
		return c, fmt.Errorf("count after: %w", err)
	}
	return c, nil
}

// audioFile finds the meeting's media file name, preferring the relational
// record over vector metadata.
func (s *Service) audioFile(ctx context.Context, meetingID string) string {
	if m, err := s.store.Meeting(ctx, meetingID); err == nil && m.AudioFile != "" {
		return m.AudioFile
	}
	for _, coll := range model.Collections {
		docs, err := s.vectors.Get(ctx, coll, byMeeting(meetingID))
		if err != nil {
			continue
		}
		for _, d := range docs {
			if a := d.Metadata.String(model.FieldAudioFile); a != "" {
				return a
			}
		}
	}
	return ""
}

// beginIntent logs the operation before it runs. The intent log is an aid to
// recovery; failing to write it does not block the operation.
func (s *Service) beginIntent(ctx context.Context, op, meetingID, payload string) *model.Intent {
	in, err := s.store.BeginIntent(ctx, op, meetingID, payload)
	if err != nil {
		s.log.Warn().Err(err).Str("op", op).Str("meeting_id", meetingID).Msg("could not record intent")
		return nil
	}
	return in
}

func (s *Service) finishIntent(ctx context.Context, in *model.Intent, ok bool, detail string) string {
	if in == nil {
		return ""
	}
	status := model.IntentDone
	if !ok {
		status = model.IntentFailed
	}
	if err := s.store.FinishIntent(ctx, in.ID, status, detail); err != nil {
		s.log.Warn().Err(err).Str("intent_id", in.ID).Msg("could not finish intent")
	}
	return in.ID
}

// RecoverOutcome is the result of re-running one pending intent.
type RecoverOutcome struct {
	Intent  model.Intent `json:"intent"`
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
}

// RecoverResult summarizes a Recover pass.
type RecoverResult struct {
	Pending   int              `json:"pending"`
	Recovered int              `json:"recovered"`
	Failed    int              `json:"failed"`
	Outcomes  []RecoverOutcome `json:"outcomes"`
	Error     string           `json:"error,omitempty"`
}

// Recover re-runs intents left pending by an interrupted process. Rename,
// reschedule and delete are idempotent, so running them again completes
// whatever part did not happen.
func (s *Service) Recover(ctx context.Context) RecoverResult {
	res := RecoverResult{Outcomes: []RecoverOutcome{}}
	pending, err := s.store.PendingIntents(ctx)
	if err != nil {
		res.Error = fmt.Sprintf("list pending intents: %v", err)
		return res
	}
	res.Pending = len(pending)

	for _, in := range pending {
		out := RecoverOutcome{Intent: in}
		switch in.Op {
		case model.IntentRename:
			r := s.rename(ctx, in.MeetingID, in.Payload)
			out.Success, out.Error = r.Success, r.Error
		case model.IntentReschedule:
			r := s.reschedule(ctx, in.MeetingID, in.Payload)
			out.Success, out.Error = r.Success, r.Error
		case model.IntentDelete:
			r := s.delete(ctx, in.MeetingID)
			out.Success, out.Error = r.Success, r.Error
		default:
			out.Error = fmt.Sprintf("unknown intent op %q", in.Op)
		}
		s.finishIntent(ctx, &in, out.Success, out.Error)

		if out.Success {
			res.Recovered++
		} else {
			res.Failed++
		}
		s.log.Info().Str("intent_id", in.ID).Str("op", in.Op).Str("meeting_id", in.MeetingID).
			Bool("success", out.Success).Msg("intent replayed")
		res.Outcomes = append(res.Outcomes, out)
	}
	return res
}
