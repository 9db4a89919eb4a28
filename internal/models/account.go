package models

import "time"

// Account is the auth provider's credential record. DisplayName and PhotoURL
// mirror the profile's name and image for session consumers.
type Account struct {
	UID          string    `gorm:"primaryKey;size:64" json:"uid"`
	Email        string    `gorm:"uniqueIndex;size:254;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	DisplayName  string    `gorm:"size:255" json:"displayName"`
	PhotoURL     string    `gorm:"size:512" json:"photoURL"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName pins the table name.
func (Account) TableName() string {
	return "accounts"
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
	TokenID     string `json:"-"`
}

// PrincipalAttributes are the session's display attributes.
type PrincipalAttributes struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}
