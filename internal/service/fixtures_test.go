package service_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"

	"playmatch/rooms/internal/database/dbtest"
	"playmatch/rooms/internal/models"
	"playmatch/rooms/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	t     *testing.T
	db    *gorm.DB
	ctx   context.Context
	rooms *service.RoomService
}

func newFixture(t *testing.T, evictor service.Evictor) *fixture {
	t.Helper()
	return newFixtureOn(t, dbtest.Open(t), evictor)
}

func newFixtureOn(t *testing.T, db *gorm.DB, evictor service.Evictor) *fixture {
	t.Helper()
	return &fixture{
		t:     t,
		db:    db,
		ctx:   context.Background(),
		rooms: service.NewRoomService(db, evictor, zerolog.Nop()),
	}
}

func (f *fixture) user(name string) models.User {
	f.t.Helper()
	user := models.User{Username: name, Email: name + "@example.com", PasswordHash: "x"}
	require.NoError(f.t, f.db.Create(&user).Error)
	return user
}

func (f *fixture) game(name string) models.Game {
	f.t.Helper()
	game := models.Game{Name: name, Ranks: []string{"bronze", "silver"}}
	require.NoError(f.t, f.db.Create(&game).Error)
	return game
}

func (f *fixture) profile(user models.User, game models.Game) models.Profile {
	f.t.Helper()
	profile := models.Profile{UserID: user.ID, GameID: game.ID, Nickname: fmt.Sprintf("%s_%s", user.Username, game.Name)}
	require.NoError(f.t, f.db.Omit("User", "Game").Create(&profile).Error)
	return profile
}

func (f *fixture) room(owner models.User, game models.Game, capacity int) *service.RoomView {
	f.t.Helper()
	room, err := f.rooms.Create(f.ctx, owner.ID, service.CreateRoomInput{
		GameID:   game.ID,
		Name:     owner.Username + "'s room",
		Capacity: capacity,
	})
	require.NoError(f.t, err)
	return room
}

func (f *fixture) roomOf(userID uint) *uint {
	f.t.Helper()
	var user models.User
	require.NoError(f.t, f.db.First(&user, userID).Error)
	return user.RoomID
}

func (f *fixture) occupants(roomID uint) int64 {
	f.t.Helper()
	var count int64
	require.NoError(f.t, f.db.Model(&models.User{}).Where("room_id = ?", roomID).Count(&count).Error)
	return count
}

func (f *fixture) roomExists(roomID uint) bool {
	f.t.Helper()
	var count int64
	require.NoError(f.t, f.db.Model(&models.Room{}).Where("id = ?", roomID).Count(&count).Error)
	return count > 0
}

// recordRoomLocks returns a func listing, in order, the ids of room rows read
// with a row lock since the call. sqlite does not render the locking clause,
// so the clause is read off the statement.
func (f *fixture) recordRoomLocks() func() []uint {
	f.t.Helper()
	var (
		mu     sync.Mutex
		locked []uint
	)
	record := func(db *gorm.DB) {
		if _, ok := db.Statement.Clauses["FOR"]; !ok || db.Error != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch dest := db.Statement.Dest.(type) {
		case *models.Room:
			locked = append(locked, dest.ID)
		case *[]models.Room:
			for _, room := range *dest {
				locked = append(locked, room.ID)
			}
		}
	}
	require.NoError(f.t, f.db.Callback().Query().After("gorm:query").Register("test:room_locks", record))
	return func() []uint {
		mu.Lock()
		defer mu.Unlock()
		return slices.Clone(locked)
	}
}
