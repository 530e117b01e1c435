package models

import "time"

// Comment free-form annotation on one reading, owned by the annotation store.
type Comment struct {
	ID              string    `json:"id"`
	SourceReadingID string    `json:"source_reading_id"`
	Text            string    `json:"text"`
	Author          string    `json:"author"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewComment insert payload
type NewComment struct {
	SourceReadingID string `json:"source_reading_id"`
	Text            string `json:"text"`
	Author          string `json:"author"`
}
