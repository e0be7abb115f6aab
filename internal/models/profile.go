package models

import "time"

// Profile is a user's identity inside one game: the nickname shown in that game's
// rooms and chat. There is at most one profile per (user, game) pair.
// Profiles are hard-deleted so the pair can be claimed again.
type Profile struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID   uint    `gorm:"not null;uniqueIndex:idx_profile_user_game"`
	GameID   uint    `gorm:"not null;uniqueIndex:idx_profile_user_game;index"`
	Nickname string  `gorm:"size:255;not null"`
	Rank     *string `gorm:"size:100"`

	User User `gorm:"foreignKey:UserID"`
	Game Game `gorm:"foreignKey:GameID"`
}
