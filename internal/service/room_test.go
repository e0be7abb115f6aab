package service_test

import (
	"sync"
	"testing"

	"playmatch/rooms/internal/apperror"
	"playmatch/rooms/internal/database/dbtest"
	"playmatch/rooms/internal/service"
	"playmatch/rooms/internal/service/mocks"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRoomService_CreateRequiresProfile(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.user("alice")
	game := f.game("dota")

	_, err := f.rooms.Create(f.ctx, alice.ID, service.CreateRoomInput{GameID: game.ID, Name: "r"})

	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, "You need to create a game profile for game 1", apperror.MessageOf(err))
	assert.Nil(t, f.roomOf(alice.ID))
}

func TestRoomService_CreateMakesOwnerTheFirstOccupant(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.user("alice")
	game := f.game("dota")
	f.profile(alice, game)

	room := f.room(alice, game, 0)

	require.NotNil(t, room.OwnerID)
	assert.Equal(t, alice.ID, *room.OwnerID)
	assert.Equal(t, 5, room.Capacity)
	assert.Equal(t, 1, room.OccupantCount)
	require.NotNil(t, f.roomOf(alice.ID))
	assert.Equal(t, room.ID, *f.roomOf(alice.ID))
}

func TestRoomService_CreateReplacesOwnedRoom(t *testing.T) {
	ctrl := gomock.NewController(t)
	evictor := mocks.NewMockEvictor(ctrl)
	f := newFixture(t, evictor)
	alice := f.user("alice")
	bob := f.user("bob")
	dota := f.game("dota")
	cs := f.game("cs")
	f.profile(alice, dota)
	f.profile(alice, cs)
	f.profile(bob, dota)

	first := f.room(alice, dota, 3)
	_, err := f.rooms.Join(f.ctx, first.ID, bob.ID)
	require.NoError(t, err)

	evictor.EXPECT().CloseRoom(first.ID).Times(1)
	second := f.room(alice, cs, 3)

	assert.False(t, f.roomExists(first.ID))
	assert.Nil(t, f.roomOf(bob.ID))
	assert.Equal(t, second.ID, *f.roomOf(alice.ID))
	assert.Equal(t, int64(1), f.occupants(second.ID))
}

func TestRoomService_GetDetailSkipsOccupantsWithoutProfile(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.user("alice")
	bob := f.user("bob")
	game := f.game("dota")
	f.profile(alice, game)
	bobProfile := f.profile(bob, game)
	room := f.room(alice, game, 3)
	_, err := f.rooms.Join(f.ctx, room.ID, bob.ID)
	require.NoError(t, err)

	require.NoError(t, f.db.Delete(&bobProfile).Error)

	detail, err := f.rooms.Get(f.ctx, room.ID, true)
	require.NoError(t, err)
	require.Len(t, detail.Occupants, 1)
	assert.Equal(t, alice.ID, detail.Occupants[0].UserID)
	assert.Equal(t, "alice_dota", detail.Occupants[0].Nickname)

	_, err = f.rooms.Get(f.ctx, 0, false)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = f.rooms.Get(f.ctx, 999, false)
	assert.Equal(t, "Room '999' not found", apperror.MessageOf(err))
}

func TestRoomService_JoinFailures(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.user("alice")
	bob := f.user("bob")
	carol := f.user("carol")
	game := f.game("dota")
	f.profile(alice, game)
	f.profile(bob, game)
	room := f.room(alice, game, 2)

	_, err := f.rooms.Join(f.ctx, 42, bob.ID)
	assert.Equal(t, "Room '42' not found", apperror.MessageOf(err))

	_, err = f.rooms.Join(f.ctx, room.ID, alice.ID)
	require.ErrorIs(t, err, apperror.ErrBadRequest)
	assert.Equal(t, "You are already in this room", apperror.MessageOf(err))
	assert.Equal(t, int64(1), f.occupants(room.ID))

	_, err = f.rooms.Join(f.ctx, room.ID, carol.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, "You need to create a game profile for game 1", apperror.MessageOf(err))

	joined, err := f.rooms.Join(f.ctx, room.ID, bob.ID)
	require.NoError(t, err)
	assert.Len(t, joined.Occupants, 2)

	f.profile(carol, game)
	_, err = f.rooms.Join(f.ctx, room.ID, carol.ID)
	require.ErrorIs(t, err, apperror.ErrBadRequest)
	assert.Equal(t, "The room is full", apperror.MessageOf(err))
	assert.Nil(t, f.roomOf(carol.ID))
}

func TestRoomService_ConcurrentJoinsNeverOverfill(t *testing.T) {
	concurrentJoinsNeverOverfill(t, newFixture(t, nil))
}

func TestRoomService_ConcurrentJoinsNeverOverfill_Postgres(t *testing.T) {
	concurrentJoinsNeverOverfill(t, newFixtureOn(t, dbtest.OpenPostgres(t), nil))
}

func concurrentJoinsNeverOverfill(t *testing.T, f *fixture) {
	game := f.game("dota")
	owner := f.user("owner")
	f.profile(owner, game)
	const capacity = 4
	room := f.room(owner, game, capacity)

	const joiners = 12
	var ids []uint
	for i := 0; i < joiners; i++ {
		u := f.user("joiner" + string(rune('a'+i)))
		f.profile(u, game)
		ids = append(ids, u.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, joiners)
	for _, id := range ids {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := f.rooms.Join(f.ctx, room.ID, id)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	var ok, full int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case apperror.MessageOf(err) == "The room is full":
			full++
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	// The owner already holds one seat.
	assert.Equal(t, capacity-1, ok)
	assert.Equal(t, joiners-(capacity-1), full)
	assert.Equal(t, int64(capacity), f.occupants(room.ID))
}

func TestRoomService_JoinLocksTheRoomRow(t *testing.T) {
	f := newFixture(t, nil)
	game := f.game("dota")
	owner := f.user("owner")
	f.profile(owner, game)
	room := f.room(owner, game, 2)
	joiner := f.user("joiner")
	f.profile(joiner, game)

	locks := f.recordRoomLocks()
	_, err := f.rooms.Join(f.ctx, room.ID, joiner.ID)

	require.NoError(t, err)
	assert.Contains(t, locks(), room.ID)
}

func TestRoomService_JoinLocksBothRoomsInIDOrder(t *testing.T) {
	f := newFixture(t, nil)
	game := f.game("dota")
	alice := f.user("alice")
	bob := f.user("bob")
	f.profile(alice, game)
	f.profile(bob, game)
	first := f.room(alice, game, 5)
	second := f.room(bob, game, 5)
	require.Less(t, first.ID, second.ID)

	locks := f.recordRoomLocks()
	_, err := f.rooms.Join(f.ctx, second.ID, alice.ID)

	require.NoError(t, err)
	assert.Equal(t, []uint{first.ID, second.ID}, lo.Uniq(locks()))
}

func TestRoomService_OwnersSwappingRooms(t *testing.T) {
	ownersSwappingRooms(t, newFixture(t, nil))
}

func TestRoomService_OwnersSwappingRooms_Postgres(t *testing.T) {
	ownersSwappingRooms(t, newFixtureOn(t, dbtest.OpenPostgres(t), nil))
}

// ownersSwappingRooms has two owners join each other's room at once. Exactly
// one move can win: the loser finds the winner's room deleted.
func ownersSwappingRooms(t *testing.T, f *fixture) {
	game := f.game("dota")
	alice := f.user("alice")
	bob := f.user("bob")
	f.profile(alice, game)
	f.profile(bob, game)
	aliceRoom := f.room(alice, game, 5)
	bobRoom := f.room(bob, game, 5)

	var wg sync.WaitGroup
	var aliceErr, bobErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, aliceErr = f.rooms.Join(f.ctx, bobRoom.ID, alice.ID)
	}()
	go func() {
		defer wg.Done()
		_, bobErr = f.rooms.Join(f.ctx, aliceRoom.ID, bob.ID)
	}()
	wg.Wait()

	for _, err := range []error{aliceErr, bobErr} {
		if err != nil {
			assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err), "unexpected join error: %v", err)
		}
	}
	require.True(t, (aliceErr == nil) != (bobErr == nil), "alice: %v, bob: %v", aliceErr, bobErr)
	if aliceErr == nil {
		assert.False(t, f.roomExists(aliceRoom.ID))
		assert.Equal(t, bobRoom.ID, *f.roomOf(alice.ID))
	} else {
		assert.False(t, f.roomExists(bobRoom.ID))
		assert.Equal(t, aliceRoom.ID, *f.roomOf(bob.ID))
	}
}

func TestRoomService_JoinElsewhereForfeitsOwnedRoom(t *testing.T) {
	ctrl := gomock.NewController(t)
	evictor := mocks.NewMockEvictor(ctrl)
	f := newFixture(t, evictor)
	alice := f.user("alice")
	bob := f.user("bob")
	game := f.game("dota")
	f.profile(alice, game)
	f.profile(bob, game)
	aliceRoom := f.room(alice, game, 3)
	bobRoom := f.room(bob, game, 3)

	evictor.EXPECT().CloseRoom(aliceRoom.ID).Times(1)
	_, err := f.rooms.Join(f.ctx, bobRoom.ID, alice.ID)
	require.NoError(t, err)

	assert.False(t, f.roomExists(aliceRoom.ID))
	assert.Equal(t, bobRoom.ID, *f.roomOf(alice.ID))
}

func TestRoomService_JoinElsewhereEvictsFromPreviousRoom(t *testing.T) {
	ctrl := gomock.NewController(t)
	evictor := mocks.NewMockEvictor(ctrl)
	f := newFixture(t, evictor)
	alice := f.user("alice")
	bob := f.user("bob")
	carol := f.user("carol")
	game := f.game("dota")
	f.profile(alice, game)
	f.profile(bob, game)
	f.profile(carol, game)
	first := f.room(alice, game, 3)
	second := f.room(bob, game, 3)
	_, err := f.rooms.Join(f.ctx, first.ID, carol.ID)
	require.NoError(t, err)

	evictor.EXPECT().EvictUser(first.ID, carol.ID).Times(1)
	_, err = f.rooms.Join(f.ctx, second.ID, carol.ID)
	require.NoError(t, err)

	assert.True(t, f.roomExists(first.ID))
	assert.Equal(t, int64(1), f.occupants(first.ID))
	assert.Equal(t, int64(2), f.occupants(second.ID))
}

func TestRoomService_Kick(t *testing.T) {
	ctrl := gomock.NewController(t)
	evictor := mocks.NewMockEvictor(ctrl)
	f := newFixture(t, evictor)
	alice := f.user("alice")
	bob := f.user("bob")
	carol := f.user("carol")
	game := f.game("dota")
	f.profile(alice, game)
	f.profile(bob, game)
	f.profile(carol, game)
	room := f.room(alice, game, 3)
	_, err := f.rooms.Join(f.ctx, room.ID, bob.ID)
	require.NoError(t, err)
	_, err = f.rooms.Join(f.ctx, room.ID, carol.ID)
	require.NoError(t, err)

	err = f.rooms.Kick(f.ctx, carol.ID, bob.ID)
	require.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Equal(t, "You are not the owner of the room", apperror.MessageOf(err))
	assert.Equal(t, int64(3), f.occupants(room.ID))

	err = f.rooms.Kick(f.ctx, alice.ID, alice.ID)
	require.ErrorIs(t, err, apperror.ErrBadRequest)
	assert.Equal(t, "You can not kick yourself", apperror.MessageOf(err))

	err = f.rooms.Kick(f.ctx, 999, alice.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, "User '999' not in the room", apperror.MessageOf(err))

	evictor.EXPECT().EvictUser(room.ID, bob.ID).Times(1)
	require.NoError(t, f.rooms.Kick(f.ctx, bob.ID, alice.ID))
	assert.Nil(t, f.roomOf(bob.ID))
	assert.Equal(t, int64(2), f.occupants(room.ID))

	err = f.rooms.Kick(f.ctx, bob.ID, alice.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRoomService_DeleteByOwnerClearsEveryOccupant(t *testing.T) {
	ctrl := gomock.NewController(t)
	evictor := mocks.NewMockEvictor(ctrl)
	f := newFixture(t, evictor)
	alice := f.user("alice")
	bob := f.user("bob")
	game := f.game("dota")
	f.profile(alice, game)
	f.profile(bob, game)
	room := f.room(alice, game, 3)
	_, err := f.rooms.Join(f.ctx, room.ID, bob.ID)
	require.NoError(t, err)

	evictor.EXPECT().CloseRoom(room.ID).Times(1)
	left, err := f.rooms.Delete(f.ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, left)

	assert.False(t, f.roomExists(room.ID))
	assert.Nil(t, f.roomOf(alice.ID))
	assert.Nil(t, f.roomOf(bob.ID))

	left, err = f.rooms.Delete(f.ctx, bob.ID)
	require.NoError(t, err)
	assert.False(t, left)
}

func TestRoomService_DeleteByOccupantKeepsRoom(t *testing.T) {
	ctrl := gomock.NewController(t)
	evictor := mocks.NewMockEvictor(ctrl)
	f := newFixture(t, evictor)
	alice := f.user("alice")
	bob := f.user("bob")
	game := f.game("dota")
	f.profile(alice, game)
	f.profile(bob, game)
	room := f.room(alice, game, 3)
	_, err := f.rooms.Join(f.ctx, room.ID, bob.ID)
	require.NoError(t, err)

	evictor.EXPECT().EvictUser(room.ID, bob.ID).Times(1)
	left, err := f.rooms.Delete(f.ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, left)

	assert.True(t, f.roomExists(room.ID))
	assert.Equal(t, int64(1), f.occupants(room.ID))
}

func TestRoomService_Update(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.user("alice")
	bob := f.user("bob")
	carol := f.user("carol")
	game := f.game("dota")
	f.profile(alice, game)
	f.profile(bob, game)
	room := f.room(alice, game, 3)
	_, err := f.rooms.Join(f.ctx, room.ID, bob.ID)
	require.NoError(t, err)

	name := "renamed"
	updated, err := f.rooms.Update(f.ctx, alice.ID, service.UpdateRoomInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, 3, updated.Capacity)

	_, err = f.rooms.Update(f.ctx, bob.ID, service.UpdateRoomInput{Name: &name})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.rooms.Update(f.ctx, carol.ID, service.UpdateRoomInput{Name: &name})
	assert.Equal(t, "You are not in any room", apperror.MessageOf(err))

	one := 1
	_, err = f.rooms.Update(f.ctx, alice.ID, service.UpdateRoomInput{Capacity: &one})
	assert.ErrorIs(t, err, apperror.ErrBadRequest)

	two := 2
	updated, err = f.rooms.Update(f.ctx, alice.ID, service.UpdateRoomInput{Capacity: &two})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Capacity)
	assert.Equal(t, "renamed", updated.Name)
}

func TestRoomService_ListExcludesFullRooms(t *testing.T) {
	f := newFixture(t, nil)
	dota := f.game("dota")
	cs := f.game("cs")
	alice := f.user("alice")
	bob := f.user("bob")
	carol := f.user("carol")
	f.profile(alice, dota)
	f.profile(bob, dota)
	f.profile(carol, cs)

	full := f.room(alice, dota, 2)
	_, err := f.rooms.Join(f.ctx, full.ID, bob.ID)
	require.NoError(t, err)
	open := f.room(carol, cs, 4)

	rooms, total, err := f.rooms.List(f.ctx, service.RoomListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rooms, 1)
	assert.Equal(t, open.ID, rooms[0].ID)
	assert.Equal(t, 1, rooms[0].OccupantCount)

	rooms, total, err = f.rooms.List(f.ctx, service.RoomListQuery{GameID: &dota.ID})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, rooms)

	_, _, err = f.rooms.List(f.ctx, service.RoomListQuery{ListQuery: service.ListQuery{Sort: "owner"}})
	assert.ErrorIs(t, err, apperror.ErrBadRequest)
}

func TestRoomService_ListPaginatesWithTrueTotal(t *testing.T) {
	f := newFixture(t, nil)
	game := f.game("dota")
	var ids []uint
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		u := f.user(name)
		f.profile(u, game)
		ids = append(ids, f.room(u, game, 3).ID)
	}

	rooms, total, err := f.rooms.List(f.ctx, service.RoomListQuery{
		ListQuery: service.ListQuery{Page: 2, Size: 2, Sort: "id", Order: "desc"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, rooms, 2)
	assert.Equal(t, ids[2], rooms[0].ID)
	assert.Equal(t, ids[1], rooms[1].ID)
	assert.Equal(t, 3, service.Pages(total, 2))
}

func TestRoomService_ChatIdentity(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.user("alice")
	game := f.game("dota")
	f.profile(alice, game)

	_, _, err := f.rooms.ChatIdentity(f.ctx, alice.ID)
	assert.Equal(t, "You are not in any room", apperror.MessageOf(err))

	room := f.room(alice, game, 2)
	roomID, nickname, err := f.rooms.ChatIdentity(f.ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, roomID)
	assert.Equal(t, "alice_dota", nickname)

	_, _, err = f.rooms.ChatIdentity(f.ctx, 999)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}
