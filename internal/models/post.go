package models

import "time"

// Post is a message with its embedded comments. Creator is the author's
// username, not a reference.
type Post struct {
	ID           string    `json:"_id"`
	Message      string    `json:"message"`
	Creator      string    `json:"creator"`
	SelectedFile string    `json:"selectedFile,omitempty"`
	Comments     []Comment `json:"comments"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Comment is embedded in a Post.
type Comment struct {
	ID            string    `json:"_id"`
	CommentText   string    `json:"commentText"`
	CommentAuthor string    `json:"commentAuthor"`
	CreatedAt     time.Time `json:"createdAt"`
}
