package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/meeting-rag/internal/model"
)

// Share rule violations.
var (
	ErrNotOwner      = errors.New("only the meeting owner can change its shares")
	ErrSelfShare     = errors.New("cannot share a meeting with yourself")
	ErrAlreadyShared = errors.New("meeting is already shared with this user")
)

// Users manages accounts.
type Users interface {
	CreateUser(ctx context.Context, u model.User) (*model.User, error)
	User(ctx context.Context, id int64) (*model.User, error)
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	// GetOrCreateUser resolves a sign-in. A known google id wins, then a
	// known email (whose google id is updated). Otherwise a user is created,
	// as admin when the email is in adminEmails.
	GetOrCreateUser(ctx context.Context, googleID, email, name string, adminEmails []string) (*model.User, error)
	SetRole(ctx context.Context, id int64, role string) error
}

// Shares manages meeting access.
type Shares interface {
	// Share grants read access on a meeting to the user with the given email.
	Share(ctx context.Context, meetingID string, ownerID int64, email string) (*model.Share, error)
	Unshare(ctx context.Context, meetingID string, ownerID, sharedWithUserID int64) error
	SharesOf(ctx context.Context, meetingID string) ([]model.Share, error)
	// AccessibleMeetingIDs returns every meeting for admins, and owned plus
	// shared meetings for everyone else.
	AccessibleMeetingIDs(ctx context.Context, userID int64) ([]string, error)
	// CanEdit reports whether the user is an admin or the meeting owner.
	CanEdit(ctx context.Context, meetingID string, userID int64) (bool, error)
}

const userColumns = `id, google_id, email, name, role, created_at`

func scanUser(sc scanner) (*model.User, error) {
	var u model.User
	var created string
	if err := sc.Scan(&u.ID, &u.GoogleID, &u.Email, &u.Name, &u.Role, &created); err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

func (s *SQLStore) userWhere(ctx context.Context, where string, arg any) (*model.User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %v: %w", arg, ErrNotFound)
	}
	return u, err
}

func (s *SQLStore) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	if u.Email == "" {
		return nil, fmt.Errorf("create user: email is required")
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	if !model.ValidRoles[u.Role] {
		return nil, fmt.Errorf("invalid role %q (valid: user, admin)", u.Role)
	}
	if u.GoogleID == "" {
		u.GoogleID = "local:" + u.Email
	}
	created := nowString()
	err := s.queryRow(ctx, `INSERT INTO users (google_id, email, name, role, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`, u.GoogleID, u.Email, u.Name, u.Role, created).Scan(&u.ID)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

func (s *SQLStore) User(ctx context.Context, id int64) (*model.User, error) {
	return s.userWhere(ctx, "id = ?", id)
}

func (s *SQLStore) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.userWhere(ctx, "email = ?", email)
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *SQLStore) GetOrCreateUser(ctx context.Context, googleID, email, name string, adminEmails []string) (*model.User, error) {
	u, err := s.userWhere(ctx, "google_id = ?", googleID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	u, err = s.UserByEmail(ctx, email)
	if err == nil {
		if _, err := s.exec(ctx, `UPDATE users SET google_id = ? WHERE id = ?`, googleID, u.ID); err != nil {
			return nil, fmt.Errorf("update google id: %w", err)
		}
		u.GoogleID = googleID
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	role := model.RoleUser
	for _, a := range adminEmails {
		if strings.EqualFold(strings.TrimSpace(a), email) {
			role = model.RoleAdmin
			break
		}
	}
	return s.CreateUser(ctx, model.User{GoogleID: googleID, Email: email, Name: name, Role: role})
}

func (s *SQLStore) SetRole(ctx context.Context, id int64, role string) error {
	if !model.ValidRoles[role] {
		return fmt.Errorf("invalid role %q (valid: user, admin)", role)
	}
	res, err := s.exec(ctx, `UPDATE users SET role = ? WHERE id = ?`, role, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

// meetingOwner returns the owner recorded on the meeting's dialogue rows.
func (s *SQLStore) meetingOwner(ctx context.Context, meetingID string) (sql.NullInt64, error) {
	var owner sql.NullInt64
	err := s.queryRow(ctx, `SELECT owner_id FROM meeting_dialogues WHERE meeting_id = ? LIMIT 1`, meetingID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return owner, fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
	}
	return owner, err
}

func (s *SQLStore) Share(ctx context.Context, meetingID string, ownerID int64, email string) (*model.Share, error) {
	target, err := s.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if target.ID == ownerID {
		return nil, ErrSelfShare
	}
	owner, err := s.meetingOwner(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !owner.Valid || owner.Int64 != ownerID {
		return nil, ErrNotOwner
	}

	n, err := s.count(ctx, s.db, `SELECT COUNT(*) FROM meeting_shares WHERE meeting_id = ? AND shared_with_user_id = ?`,
		meetingID, target.ID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrAlreadyShared
	}

	created := nowString()
	if _, err := s.exec(ctx, `INSERT INTO meeting_shares (meeting_id, owner_id, shared_with_user_id, permission, created_at)
		VALUES (?, ?, ?, 'read', ?)`, meetingID, ownerID, target.ID, created); err != nil {
		return nil, fmt.Errorf("insert share: %w", err)
	}
	return &model.Share{
		MeetingID:        meetingID,
		OwnerID:          ownerID,
		SharedWithUserID: target.ID,
		Permission:       "read",
		CreatedAt:        parseTime(created),
	}, nil
}

func (s *SQLStore) Unshare(ctx context.Context, meetingID string, ownerID, sharedWithUserID int64) error {
	owner, err := s.meetingOwner(ctx, meetingID)
	if err != nil {
		return err
	}
	if !owner.Valid || owner.Int64 != ownerID {
		return ErrNotOwner
	}
	res, err := s.exec(ctx, `DELETE FROM meeting_shares WHERE meeting_id = ? AND shared_with_user_id = ?`,
		meetingID, sharedWithUserID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("share of %s with user %d: %w", meetingID, sharedWithUserID, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) SharesOf(ctx context.Context, meetingID string) ([]model.Share, error) {
	rows, err := s.query(ctx, `SELECT meeting_id, owner_id, shared_with_user_id, permission, created_at
		FROM meeting_shares WHERE meeting_id = ? ORDER BY created_at, shared_with_user_id`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var shares []model.Share
	for rows.Next() {
		var sh model.Share
		var created string
		if err := rows.Scan(&sh.MeetingID, &sh.OwnerID, &sh.SharedWithUserID, &sh.Permission, &created); err != nil {
			return nil, err
		}
		sh.CreatedAt = parseTime(created)
		shares = append(shares, sh)
	}
	return shares, rows.Err()
}

func (s *SQLStore) AccessibleMeetingIDs(ctx context.Context, userID int64) ([]string, error) {
	u, err := s.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if u.Role == model.RoleAdmin {
		rows, err = s.query(ctx, `SELECT DISTINCT meeting_id FROM meeting_dialogues ORDER BY meeting_id`)
	} else {
		rows, err = s.query(ctx, `SELECT DISTINCT md.meeting_id
			FROM meeting_dialogues md
			LEFT JOIN meeting_shares sh ON md.meeting_id = sh.meeting_id
			WHERE md.owner_id = ? OR sh.shared_with_user_id = ?
			ORDER BY md.meeting_id`, userID, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) CanEdit(ctx context.Context, meetingID string, userID int64) (bool, error) {
	u, err := s.User(ctx, userID)
	if err != nil {
		return false, err
	}
	if u.Role == model.RoleAdmin {
		return true, nil
	}
	owner, err := s.meetingOwner(ctx, meetingID)
	if err != nil {
		return false, err
	}
	return owner.Valid && owner.Int64 == userID, nil
}
