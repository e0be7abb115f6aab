package models

import "gorm.io/gorm"

// Game represents a game in the system.
type Game struct {
	gorm.Model
	Name        string `gorm:"size:255;unique;not null"`
	Description string
	Ranks       []string `gorm:"serializer:json"`
	Logo        string   `gorm:"size:512"`
}
