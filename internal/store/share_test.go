package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rcliao/meeting-rag/internal/model"
)

func TestGetOrCreateUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	admins := []string{" Boss@Example.com "}

	boss, err := s.GetOrCreateUser(ctx, "g-boss", "boss@example.com", "Boss", admins)
	if err != nil {
		t.Fatalf("create boss: %v", err)
	}
	if boss.Role != model.RoleAdmin {
		t.Errorf("expected admin, got %s", boss.Role)
	}

	u, err := s.GetOrCreateUser(ctx, "g-1", "dev@example.com", "Dev", admins)
	if err != nil {
		t.Fatalf("create dev: %v", err)
	}
	if u.Role != model.RoleUser {
		t.Errorf("expected user, got %s", u.Role)
	}

	again, err := s.GetOrCreateUser(ctx, "g-1", "changed@example.com", "Dev", admins)
	if err != nil {
		t.Fatalf("lookup by google id: %v", err)
	}
	if again.ID != u.ID {
		t.Errorf("expected same user %d, got %d", u.ID, again.ID)
	}

	relinked, err := s.GetOrCreateUser(ctx, "g-2", "dev@example.com", "Dev", admins)
	if err != nil {
		t.Fatalf("lookup by email: %v", err)
	}
	if relinked.ID != u.ID || relinked.GoogleID != "g-2" {
		t.Errorf("expected google id updated on user %d, got %+v", u.ID, relinked)
	}

	users, _ := s.ListUsers(ctx)
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}
}

func TestSetRole(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u, _ := s.CreateUser(ctx, model.User{Email: "a@example.com"})

	if err := s.SetRole(ctx, u.ID, "root"); err == nil || !strings.Contains(err.Error(), "invalid role") {
		t.Errorf("expected invalid role error, got %v", err)
	}
	if err := s.SetRole(ctx, u.ID, model.RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	got, _ := s.User(ctx, u.ID)
	if got.Role != model.RoleAdmin {
		t.Errorf("expected admin, got %s", got.Role)
	}
	if err := s.SetRole(ctx, 999, model.RoleUser); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestShareRules(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner, _ := s.CreateUser(ctx, model.User{Email: "owner@example.com"})
	friend, _ := s.CreateUser(ctx, model.User{Email: "friend@example.com"})
	saveMeeting(t, s, "m1", "One", "2024-01-01 10:00:00", &owner.ID)

	tests := []struct {
		name    string
		meeting string
		sharer  int64
		email   string
		wantErr error
	}{
		{"unknown user", "m1", owner.ID, "nobody@example.com", ErrNotFound},
		{"self share", "m1", owner.ID, owner.Email, ErrSelfShare},
		{"unknown meeting", "missing", owner.ID, friend.Email, ErrNotFound},
		{"not owner", "m1", friend.ID, "owner@example.com", ErrNotOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Share(ctx, tt.meeting, tt.sharer, tt.email)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	sh, err := s.Share(ctx, "m1", owner.ID, friend.Email)
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if sh.Permission != "read" || sh.SharedWithUserID != friend.ID {
		t.Errorf("unexpected share %+v", sh)
	}
	if _, err := s.Share(ctx, "m1", owner.ID, friend.Email); !errors.Is(err, ErrAlreadyShared) {
		t.Errorf("expected ErrAlreadyShared, got %v", err)
	}

	shares, _ := s.SharesOf(ctx, "m1")
	if len(shares) != 1 {
		t.Fatalf("expected 1 share, got %d", len(shares))
	}

	if err := s.Unshare(ctx, "m1", friend.ID, friend.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if err := s.Unshare(ctx, "m1", owner.ID, friend.ID); err != nil {
		t.Fatalf("unshare: %v", err)
	}
	if err := s.Unshare(ctx, "m1", owner.ID, friend.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second unshare, got %v", err)
	}
}

func TestAccessibleMeetingIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice, _ := s.CreateUser(ctx, model.User{Email: "alice@example.com"})
	bob, _ := s.CreateUser(ctx, model.User{Email: "bob@example.com"})
	admin, _ := s.CreateUser(ctx, model.User{Email: "admin@example.com", Role: model.RoleAdmin})
	loner, _ := s.CreateUser(ctx, model.User{Email: "loner@example.com"})

	saveMeeting(t, s, "m1", "A1", "2024-01-01 10:00:00", &alice.ID)
	saveMeeting(t, s, "m2", "A2", "2024-01-02 10:00:00", &alice.ID)
	saveMeeting(t, s, "m3", "B1", "2024-01-03 10:00:00", &bob.ID)
	if _, err := s.Share(ctx, "m2", alice.ID, bob.Email); err != nil {
		t.Fatalf("share: %v", err)
	}

	tests := []struct {
		name string
		user int64
		want string
	}{
		{"owner", alice.ID, "m1,m2"},
		{"owned plus shared", bob.ID, "m2,m3"},
		{"admin sees all", admin.ID, "m1,m2,m3"},
		{"nothing", loner.ID, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := s.AccessibleMeetingIDs(ctx, tt.user)
			if err != nil {
				t.Fatalf("accessible: %v", err)
			}
			if ids == nil {
				t.Fatal("expected non-nil slice")
			}
			if got := strings.Join(ids, ","); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := s.AccessibleMeetingIDs(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestCanEdit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner, _ := s.CreateUser(ctx, model.User{Email: "owner@example.com"})
	reader, _ := s.CreateUser(ctx, model.User{Email: "reader@example.com"})
	admin, _ := s.CreateUser(ctx, model.User{Email: "admin@example.com", Role: model.RoleAdmin})
	saveMeeting(t, s, "m1", "One", "2024-01-01 10:00:00", &owner.ID)
	s.Share(ctx, "m1", owner.ID, reader.Email)

	for _, tt := range []struct {
		user int64
		want bool
	}{{owner.ID, true}, {reader.ID, false}, {admin.ID, true}} {
		ok, err := s.CanEdit(ctx, "m1", tt.user)
		if err != nil {
			t.Fatalf("can edit: %v", err)
		}
		if ok != tt.want {
			t.Errorf("user %d: can edit = %v, want %v", tt.user, ok, tt.want)
		}
	}
}
