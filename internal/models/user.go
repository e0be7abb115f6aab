package models

import "gorm.io/gorm"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a user in the system.
type User struct {
	gorm.Model
	Username     string `gorm:"size:255;unique;not null"`
	Email        string `gorm:"size:255;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Role         string `gorm:"size:50;not null;default:'user';index"`

	// A user can only be in one room at a time.
	RoomID *uint `gorm:"index"`
}

// InRoom reports whether the user currently occupies roomID.
func (u *User) InRoom(roomID uint) bool {
	return u.RoomID != nil && *u.RoomID == roomID
}
