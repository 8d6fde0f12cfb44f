package store

import (
	"context"
	"testing"
)

func TestListMeetings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	saveMeeting(t, s, "m1", "Budget review", "2024-01-01 10:00:00", nil)
	saveMeeting(t, s, "m2", "Hiring sync", "2024-03-01 10:00:00", nil)
	saveMeeting(t, s, "m3", "Budget forecast", "2024-02-01 10:00:00", nil)

	tests := []struct {
		name string
		p    ListParams
		want []string
	}{
		{"all newest first", ListParams{}, []string{"m2", "m3", "m1"}},
		{"title substring case-insensitive", ListParams{Query: "BUDGET"}, []string{"m3", "m1"}},
		{"ids", ListParams{IDs: []string{"m1", "m2"}}, []string{"m2", "m1"}},
		{"empty ids match nothing", ListParams{IDs: []string{}}, nil},
		{"limit", ListParams{Limit: 1}, []string{"m2"}},
		{"query and ids", ListParams{Query: "budget", IDs: []string{"m1"}}, []string{"m1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListMeetings(ctx, tt.p)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d meetings, want %d", len(got), len(tt.want))
			}
			for i, m := range got {
				if m.ID != tt.want[i] {
					t.Errorf("meeting %d = %s, want %s", i, m.ID, tt.want[i])
				}
				if m.SegmentCount != 3 {
					t.Errorf("meeting %s has %d segments", m.ID, m.SegmentCount)
				}
			}
		})
	}
}
