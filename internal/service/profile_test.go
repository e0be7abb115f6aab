package service_test

import (
	"fmt"
	"sync"
	"testing"

	"playmatch/rooms/internal/apperror"
	"playmatch/rooms/internal/database/dbtest"
	"playmatch/rooms/internal/models"
	"playmatch/rooms/internal/service"
	"playmatch/rooms/internal/service/mocks"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestProfileService_CreateConflictsPerGame(t *testing.T) {
	f := newFixture(t, nil)
	profiles := service.NewProfileService(f.db, f.rooms)
	alice := f.user("alice")
	game := f.game("dota")

	created, err := profiles.Create(f.ctx, alice.ID, service.CreateProfileInput{GameID: game.ID, Nickname: "al"})
	require.NoError(t, err)
	assert.Equal(t, "dota", created.Game.Name)

	_, err = profiles.Create(f.ctx, alice.ID, service.CreateProfileInput{GameID: game.ID, Nickname: "again"})
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, "You already have a profile in this game", apperror.MessageOf(err))

	_, err = profiles.Create(f.ctx, alice.ID, service.CreateProfileInput{GameID: 77, Nickname: "x"})
	assert.Equal(t, "Game '77' not found", apperror.MessageOf(err))
}

func TestProfileService_GetIsScopedToOwner(t *testing.T) {
	f := newFixture(t, nil)
	profiles := service.NewProfileService(f.db, f.rooms)
	alice := f.user("alice")
	bob := f.user("bob")
	p := f.profile(alice, f.game("dota"))

	got, err := profiles.Get(f.ctx, alice.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Nickname, got.Nickname)

	_, err = profiles.Get(f.ctx, bob.ID, p.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, "Profile '1' not found", apperror.MessageOf(err))
}

func TestProfileService_UpdateIsPartial(t *testing.T) {
	f := newFixture(t, nil)
	profiles := service.NewProfileService(f.db, f.rooms)
	alice := f.user("alice")
	p := f.profile(alice, f.game("dota"))

	rank := "silver"
	updated, err := profiles.Update(f.ctx, alice.ID, p.ID, service.UpdateProfileInput{Rank: &rank})
	require.NoError(t, err)
	assert.Equal(t, p.Nickname, updated.Nickname)
	require.NotNil(t, updated.Rank)
	assert.Equal(t, "silver", *updated.Rank)
}

func TestProfileService_DeleteLeavesRoomOfSameGame(t *testing.T) {
	ctrl := gomock.NewController(t)
	evictor := mocks.NewMockEvictor(ctrl)
	f := newFixture(t, evictor)
	profiles := service.NewProfileService(f.db, f.rooms)
	alice := f.user("alice")
	bob := f.user("bob")
	dota := f.game("dota")
	cs := f.game("cs")
	f.profile(alice, dota)
	bobDota := f.profile(bob, dota)
	bobCS := f.profile(bob, cs)
	room := f.room(alice, dota, 3)
	_, err := f.rooms.Join(f.ctx, room.ID, bob.ID)
	require.NoError(t, err)

	require.NoError(t, profiles.Delete(f.ctx, bob.ID, bobCS.ID))
	assert.Equal(t, room.ID, *f.roomOf(bob.ID))

	evictor.EXPECT().EvictUser(room.ID, bob.ID).Times(1)
	require.NoError(t, profiles.Delete(f.ctx, bob.ID, bobDota.ID))
	assert.Nil(t, f.roomOf(bob.ID))

	var count int64
	require.NoError(t, f.db.Model(&models.Profile{}).Where("user_id = ?", bob.ID).Count(&count).Error)
	assert.Zero(t, count)

	err = profiles.Delete(f.ctx, bob.ID, bobDota.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestProfileService_ListReturnsTrueTotal(t *testing.T) {
	f := newFixture(t, nil)
	profiles := service.NewProfileService(f.db, f.rooms)
	alice := f.user("alice")
	for _, name := range []string{"a", "b", "c"} {
		f.profile(alice, f.game(name))
	}
	f.profile(f.user("bob"), f.game("d"))

	page, total, err := profiles.List(f.ctx, alice.ID, service.ListQuery{Size: 2, Sort: "game_id", Order: "desc"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].Game.Name)
}

func TestGameService_CRUD(t *testing.T) {
	f := newFixture(t, nil)
	games := service.NewGameService(f.db, nil, zerolog.Nop())

	game, err := games.Create(f.ctx, service.GameInput{Name: "dota", Ranks: []string{"herald"}})
	require.NoError(t, err)

	_, err = games.Create(f.ctx, service.GameInput{Name: "dota"})
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, "Game 'dota' already exists", apperror.MessageOf(err))

	other, err := games.Create(f.ctx, service.GameInput{Name: "cs"})
	require.NoError(t, err)
	taken := "dota"
	_, err = games.Update(f.ctx, other.ID, service.UpdateGameInput{Name: &taken})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	logo := "dota.png"
	updated, err := games.Update(f.ctx, game.ID, service.UpdateGameInput{Logo: &logo})
	require.NoError(t, err)
	assert.Equal(t, "dota", updated.Name)
	assert.Equal(t, []string{"herald"}, updated.Ranks)

	list, total, err := games.List(f.ctx, service.ListQuery{Sort: "game_name"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "cs", list[0].Name)

	_, err = games.Get(f.ctx, 99)
	assert.Equal(t, "Game '99' not found", apperror.MessageOf(err))
}

func TestGameService_DeleteCascades(t *testing.T) {
	ctrl := gomock.NewController(t)
	evictor := mocks.NewMockEvictor(ctrl)
	f := newFixture(t, evictor)
	games := service.NewGameService(f.db, evictor, zerolog.Nop())
	alice := f.user("alice")
	bob := f.user("bob")
	game := f.game("dota")
	f.profile(alice, game)
	f.profile(bob, game)
	room := f.room(alice, game, 3)
	_, err := f.rooms.Join(f.ctx, room.ID, bob.ID)
	require.NoError(t, err)

	evictor.EXPECT().CloseRoom(room.ID).Times(1)
	require.NoError(t, games.Delete(f.ctx, game.ID))

	assert.False(t, f.roomExists(room.ID))
	assert.Nil(t, f.roomOf(alice.ID))
	assert.Nil(t, f.roomOf(bob.ID))
	var count int64
	require.NoError(t, f.db.Model(&models.Profile{}).Count(&count).Error)
	assert.Zero(t, count)

	_, err = games.Create(f.ctx, service.GameInput{Name: "dota"})
	require.NoError(t, err)

	assert.ErrorIs(t, games.Delete(f.ctx, game.ID), apperror.ErrNotFound)
}

func TestGameService_DeleteLocksItsRooms(t *testing.T) {
	f := newFixture(t, nil)
	games := service.NewGameService(f.db, nil, zerolog.Nop())
	alice := f.user("alice")
	bob := f.user("bob")
	game := f.game("dota")
	f.profile(alice, game)
	f.profile(bob, game)
	first := f.room(alice, game, 3)
	second := f.room(bob, game, 3)

	locks := f.recordRoomLocks()
	require.NoError(t, games.Delete(f.ctx, game.ID))

	assert.Equal(t, []uint{first.ID, second.ID}, locks())
}

func TestGameService_DeleteRacingJoins(t *testing.T) {
	deleteRacingJoins(t, newFixture(t, nil))
}

func TestGameService_DeleteRacingJoins_Postgres(t *testing.T) {
	deleteRacingJoins(t, newFixtureOn(t, dbtest.OpenPostgres(t), nil))
}

// deleteRacingJoins deletes a game while users join its room. Whatever the
// interleaving, nobody is left pointing at a removed room.
func deleteRacingJoins(t *testing.T, f *fixture) {
	games := service.NewGameService(f.db, nil, zerolog.Nop())
	game := f.game("dota")
	owner := f.user("owner")
	f.profile(owner, game)
	room := f.room(owner, game, 10)

	const joiners = 6
	var ids []uint
	for i := 0; i < joiners; i++ {
		u := f.user(fmt.Sprintf("joiner%d", i))
		f.profile(u, game)
		ids = append(ids, u.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, joiners+1)
	for _, id := range ids {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := f.rooms.Join(f.ctx, room.ID, id)
			errs <- err
		}(id)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- games.Delete(f.ctx, game.ID)
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			assert.NotEqual(t, apperror.KindInternal, apperror.KindOf(err), "unexpected error: %v", err)
		}
	}
	assert.False(t, f.roomExists(room.ID))
	var seated int64
	require.NoError(t, f.db.Model(&models.User{}).Where("room_id IS NOT NULL").Count(&seated).Error)
	assert.Zero(t, seated)
}

func TestUserService_RegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t, nil)
	users := service.NewUserService(f.db)

	user, err := users.Register(f.ctx, service.RegisterInput{Username: "alice", Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.NotEqual(t, "password123", user.PasswordHash)

	_, err = users.Register(f.ctx, service.RegisterInput{Username: "alice", Email: "other@example.com", Password: "password123"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	got, err := users.Authenticate(f.ctx, "a@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = users.Authenticate(f.ctx, "alice", "wrong")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = users.Authenticate(f.ctx, "nobody", "password123")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
