package model

import "time"

// Meeting is the relational view of one recorded meeting.
type Meeting struct {
	ID           string `json:"meeting_id"`
	Title        string `json:"title"`
	MeetingDate  string `json:"meeting_date"`
	AudioFile    string `json:"audio_file,omitempty"`
	OwnerID      *int64 `json:"owner_id,omitempty"`
	SegmentCount int    `json:"segments"`
}

// Minutes are the generated meeting minutes.
type Minutes struct {
	MeetingID   string    `json:"meeting_id"`
	Title       string    `json:"title"`
	MeetingDate string    `json:"meeting_date"`
	Content     string    `json:"content"`
	OwnerID     *int64    `json:"owner_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Mindmap is the generated mindmap markup of a meeting.
type Mindmap struct {
	MeetingID string    `json:"meeting_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ValidRoles are the allowed user roles.
var ValidRoles = map[string]bool{
	RoleUser:  true,
	RoleAdmin: true,
}

// User is an account that can own or receive shared meetings.
type User struct {
	ID        int64     `json:"id"`
	GoogleID  string    `json:"google_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Share grants another user access to a meeting.
type Share struct {
	MeetingID        string    `json:"meeting_id"`
	OwnerID          int64     `json:"owner_id"`
	SharedWithUserID int64     `json:"shared_with_user_id"`
	Permission       string    `json:"permission"`
	CreatedAt        time.Time `json:"created_at"`
}

// ValidPermissions are the allowed share permissions.
var ValidPermissions = map[string]bool{
	"read": true,
}

// Intent operations.
const (
	IntentRename     = "rename"
	IntentReschedule = "reschedule"
	IntentDelete     = "delete"
)

// Intent statuses.
const (
	IntentPending = "pending"
	IntentDone    = "done"
	IntentFailed  = "failed"
)

// Intent records a cross-store operation before it runs, so an interrupted
// operation can be found and re-run.
type Intent struct {
	ID        string     `json:"id"`
	Op        string     `json:"op"`
	MeetingID string     `json:"meeting_id"`
	Payload   string     `json:"payload,omitempty"`
	Status    string     `json:"status"`
	Detail    string     `json:"detail,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
