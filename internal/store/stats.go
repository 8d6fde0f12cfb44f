package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	Driver         string `json:"driver"`
	DBPath         string `json:"db_path,omitempty"`
	DBSizeBytes    int64  `json:"db_size_bytes,omitempty"`
	Meetings       int    `json:"meetings"`
	Segments       int    `json:"segments"`
	Minutes        int    `json:"minutes"`
	Mindmaps       int    `json:"mindmaps"`
	Users          int    `json:"users"`
	Shares         int    `json:"shares"`
	PendingIntents int    `json:"pending_intents"`
}

// Stats returns database statistics.
func (s *SQLStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Driver: s.dialect.name, DBPath: s.path}

	if s.path != "" {
		if info, err := os.Stat(s.path); err == nil {
			st.DBSizeBytes = info.Size()
		}
	}

	counts := []struct {
		dst   *int
		query string
	}{
		{&st.Meetings, `SELECT COUNT(DISTINCT meeting_id) FROM meeting_dialogues`},
		{&st.Segments, `SELECT COUNT(*) FROM meeting_dialogues`},
		{&st.Minutes, `SELECT COUNT(*) FROM meeting_minutes`},
		{&st.Mindmaps, `SELECT COUNT(*) FROM meeting_mindmap`},
		{&st.Users, `SELECT COUNT(*) FROM users`},
		{&st.Shares, `SELECT COUNT(*) FROM meeting_shares`},
		{&st.PendingIntents, `SELECT COUNT(*) FROM meeting_intents WHERE status = 'pending'`},
	}
	for _, c := range counts {
		n, err := s.count(ctx, s.db, c.query)
		if err != nil {
			return st, err
		}
		*c.dst = n
	}
	return st, nil
}
