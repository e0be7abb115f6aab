package models

import "gorm.io/gorm"

// DefaultRoomCapacity is used when a room is created without an explicit capacity.
const DefaultRoomCapacity = 5

// Room is a capacity-bounded group of players for one game.
// Occupancy is derived: a user occupies the room whose ID is in their RoomID.
type Room struct {
	gorm.Model
	GameID      uint   `gorm:"not null;index"`
	OwnerID     *uint  `gorm:"index"`
	Name        string `gorm:"size:255;not null;index"`
	Description *string
	Ranks       []string `gorm:"serializer:json"`
	Capacity    int      `gorm:"not null;default:5"`

	Game      Game   `gorm:"foreignKey:GameID"`
	Occupants []User `gorm:"foreignKey:RoomID"`
}

// IsOwnedBy reports whether userID owns the room.
func (r *Room) IsOwnedBy(userID uint) bool {
	return r.OwnerID != nil && *r.OwnerID == userID
}
