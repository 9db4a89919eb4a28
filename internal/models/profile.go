// Package models defines the persisted records and error types shared across the service.
package models

import "time"

// UserProfile is the authoritative identity record for a user.
type UserProfile struct {
	UID          string    `gorm:"primaryKey;size:64" json:"uid"`
	Username     string    `gorm:"uniqueIndex;size:255;not null" json:"username"`
	Name         string    `gorm:"size:255" json:"name"`
	Bio          string    `gorm:"type:text" json:"bio"`
	ProfileImage string    `gorm:"size:512" json:"profileImage"`
	Followers    int       `gorm:"default:0" json:"followers"`
	Following    int       `gorm:"default:0" json:"following"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName pins the table name.
func (UserProfile) TableName() string {
	return "profiles"
}

// ProfileStats is computed at read time.
type ProfileStats struct {
	Posts     int64 `json:"posts"`
	Followers int   `json:"followers"`
	Following int   `json:"following"`
}

// ProfileView is a profile together with its derived stats.
type ProfileView struct {
	Profile UserProfile  `json:"profile"`
	Stats   ProfileStats `json:"stats"`
}

// ProfileEdits is a user-submitted profile edit.
type ProfileEdits struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Bio      string `json:"bio"`
}

// ProfilePatch is a merge record: only non-nil fields are written.
type ProfilePatch struct {
	Name         *string
	Username     *string
	Bio          *string
	ProfileImage *string
}

// Columns returns the column names the patch writes, in a stable order.
func (p ProfilePatch) Columns() []string {
	var cols []string
	if p.Name != nil {
		cols = append(cols, "name")
	}
	if p.Username != nil {
		cols = append(cols, "username")
	}
	if p.Bio != nil {
		cols = append(cols, "bio")
	}
	if p.ProfileImage != nil {
		cols = append(cols, "profile_image")
	}
	return cols
}

// Apply copies the patch's set fields onto profile.
func (p ProfilePatch) Apply(profile *UserProfile) {
	if p.Name != nil {
		profile.Name = *p.Name
	}
	if p.Username != nil {
		profile.Username = *p.Username
	}
	if p.Bio != nil {
		profile.Bio = *p.Bio
	}
	if p.ProfileImage != nil {
		profile.ProfileImage = *p.ProfileImage
	}
}

// Values returns the patch as a column-to-value map.
func (p ProfilePatch) Values() map[string]any {
	values := make(map[string]any, 4)
	if p.Name != nil {
		values["name"] = *p.Name
	}
	if p.Username != nil {
		values["username"] = *p.Username
	}
	if p.Bio != nil {
		values["bio"] = *p.Bio
	}
	if p.ProfileImage != nil {
		values["profile_image"] = *p.ProfileImage
	}
	return values
}

// IsEmpty reports whether the patch writes nothing.
func (p ProfilePatch) IsEmpty() bool {
	return len(p.Columns()) == 0
}
