package models

import "time"

// Message is one message in a client <-> support thread.
type Message struct {
	ID              string    `json:"id"`
	SenderID        string    `json:"sender_id"`
	SenderName      string    `json:"sender_name"`
	ReceiverRole    string    `json:"receiver_role"` // usually ADMIN or CLIENT
	Subject         string    `json:"subject"`
	Content         string    `json:"content"`
	IsRead          bool      `json:"is_read"`
	IsAdminResponse bool      `json:"is_admin_response"`
	CreatedAt       time.Time `json:"created_at"`
}

// BlogComment is a reader comment held in the moderation queue until an
// admin approves or rejects it.
type BlogComment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActivityLog is one append-only audit record of a user action.
type ActivityLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	UserRole  string    `json:"user_role"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
