package db

import (
	"log"
	"time"

	"coursio/internal/models"
)

// CreateMessage inserts a support message.
func (p *Postgres) CreateMessage(m models.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.Exec(`
        INSERT INTO messages (id, sender_id, sender_name, receiver_role, subject, content,
            is_read, is_admin_response, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.SenderID, m.SenderName, m.ReceiverRole, m.Subject, m.Content,
		m.IsRead, m.IsAdminResponse, m.CreatedAt)
	if err != nil {
		log.Printf("CreateMessage: error inserting message %s: %v", m.ID, err)
	}
	return err
}

// MessagesForUser returns the messages a user sent or received, most recent
// first. Admin responses addressed to clients show up in the client's thread
// by sender_id.
func (p *Postgres) MessagesForUser(userID string) ([]models.Message, error) {
	return p.queryMessages(`
        SELECT id, sender_id, sender_name, receiver_role, subject, content,
            is_read, is_admin_response, created_at
        FROM messages
        WHERE sender_id = $1
        ORDER BY created_at DESC`, userID)
}

// AllMessages returns every message, most recent first.
func (p *Postgres) AllMessages() ([]models.Message, error) {
	return p.queryMessages(`
        SELECT id, sender_id, sender_name, receiver_role, subject, content,
            is_read, is_admin_response, created_at
        FROM messages
        ORDER BY created_at DESC`)
}

// MarkMessageRead flags a message as read.
func (p *Postgres) MarkMessageRead(id string) error {
	res, err := p.db.Exec(`UPDATE messages SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		log.Printf("MarkMessageRead: error updating message %s: %v", id, err)
		return err
	}
	return requireRowAffected(res)
}

func (p *Postgres) queryMessages(query string, args ...interface{}) ([]models.Message, error) {
	rows, err := p.db.Query(query, args...)
	if err != nil {
		log.Printf("queryMessages: query error: %v", err)
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if errScan := rows.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.ReceiverRole,
			&m.Subject, &m.Content, &m.IsRead, &m.IsAdminResponse, &m.CreatedAt); errScan != nil {
			log.Printf("queryMessages: scan error: %v", errScan)
			continue
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CreateComment adds a blog comment to the moderation queue.
func (p *Postgres) CreateComment(c models.BlogComment) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.Exec(`
        INSERT INTO blog_comments (id, post_id, author_name, content, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.PostID, c.AuthorName, c.Content, c.Status, c.CreatedAt)
	if err != nil {
		log.Printf("CreateComment: error inserting comment %s: %v", c.ID, err)
	}
	return err
}

// CommentsByStatus returns comments in the given moderation status, oldest
// first.
func (p *Postgres) CommentsByStatus(status string) ([]models.BlogComment, error) {
	rows, err := p.db.Query(`
        SELECT id, post_id, author_name, content, status, created_at
        FROM blog_comments
        WHERE status = $1
        ORDER BY created_at ASC`, status)
	if err != nil {
		log.Printf("CommentsByStatus: query error: %v", err)
		return nil, err
	}
	defer rows.Close()

	var comments []models.BlogComment
	for rows.Next() {
		var c models.BlogComment
		if errScan := rows.Scan(&c.ID, &c.PostID, &c.AuthorName, &c.Content, &c.Status, &c.CreatedAt); errScan != nil {
			log.Printf("CommentsByStatus: scan error: %v", errScan)
			continue
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// ModerateComment sets a comment's moderation status.
func (p *Postgres) ModerateComment(id, status string) error {
	res, err := p.db.Exec(`UPDATE blog_comments SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		log.Printf("ModerateComment: error updating comment %s: %v", id, err)
		return err
	}
	return requireRowAffected(res)
}

// AppendActivity writes an audit record. Failures are logged but never block
// the operation being audited.
func (p *Postgres) AppendActivity(a models.ActivityLog) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.Exec(`
        INSERT INTO activity_log (id, user_id, user_name, user_role, action, details, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.UserID, a.UserName, a.UserRole, a.Action, a.Details, a.CreatedAt)
	if err != nil {
		log.Printf("AppendActivity: error inserting record %s: %v", a.ID, err)
	}
	return err
}

// RecentActivity returns the latest audit records.
func (p *Postgres) RecentActivity(limit int) ([]models.ActivityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.Query(`
        SELECT id, user_id, user_name, user_role, action, details, created_at
        FROM activity_log
        ORDER BY created_at DESC
        LIMIT $1`, limit)
	if err != nil {
		log.Printf("RecentActivity: query error: %v", err)
		return nil, err
	}
	defer rows.Close()

	var records []models.ActivityLog
	for rows.Next() {
		var a models.ActivityLog
		if errScan := rows.Scan(&a.ID, &a.UserID, &a.UserName, &a.UserRole, &a.Action, &a.Details, &a.CreatedAt); errScan != nil {
			log.Printf("RecentActivity: scan error: %v", errScan)
			continue
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
