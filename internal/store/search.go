package store

import (
	"context"
	"strings"

	"github.com/rcliao/meeting-rag/internal/model"
)

// ListMeetings lists meetings grouped from their dialogue rows, newest first.
// A non-nil empty IDs list matches nothing.
func (s *SQLStore) ListMeetings(ctx context.Context, p ListParams) ([]model.Meeting, error) {
	if p.IDs != nil && len(p.IDs) == 0 {
		return []model.Meeting{}, nil
	}

	where := []string{}
	args := []any{}
	if q := strings.TrimSpace(p.Query); q != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(q)+"%")
	}
	if len(p.IDs) > 0 {
		marks := make([]string, len(p.IDs))
		for i, id := range p.IDs {
			marks[i] = "?"
			args = append(args, id)
		}
		where = append(where, "meeting_id IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + meetingColumns + ` FROM meeting_dialogues`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` GROUP BY meeting_id ORDER BY MAX(meeting_date) DESC, meeting_id`
	if p.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, p.Limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meetings := []model.Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}
