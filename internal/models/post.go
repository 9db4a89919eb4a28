package models

import "time"

// Post is a single feed entry. AuthorUID is the durable author reference;
// AuthorUsername, AuthorName and AuthorImage are a snapshot taken when the
// post was created and are not updated when the author edits their profile.
type Post struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AuthorUID      string    `gorm:"index;size:64;not null" json:"authorUid"`
	AuthorUsername string    `gorm:"index;size:255;not null" json:"username"`
	AuthorName     string    `gorm:"size:255" json:"name"`
	AuthorImage    string    `gorm:"size:512" json:"profileImage"`
	Text           string    `gorm:"type:text;not null" json:"text"`
	LikeCount      int       `gorm:"default:0" json:"likes"`
	CommentCount   int       `gorm:"default:0" json:"comments"`
	CreatedAt      time.Time `gorm:"index" json:"timestamp"`
}

// TableName pins the table name.
func (Post) TableName() string {
	return "posts"
}
