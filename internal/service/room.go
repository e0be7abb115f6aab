package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"playmatch/rooms/internal/apperror"
	"playmatch/rooms/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var roomSorts = map[string]string{
	"id":          "rooms.id",
	"room_name":   "rooms.name",
	"create_date": "rooms.created_at",
	"update_date": "rooms.updated_at",
}

// CreateRoomInput describes a new room. Capacity 0 means models.DefaultRoomCapacity.
type CreateRoomInput struct {
	GameID      uint
	Name        string
	Description *string
	Ranks       []string
	Capacity    int
}

// UpdateRoomInput is a partial update: nil fields are left unchanged.
type UpdateRoomInput struct {
	Name        *string
	Description *string
	Ranks       []string
	Capacity    *int
}

// RoomListQuery filters the discovery listing.
type RoomListQuery struct {
	ListQuery
	GameID *uint
}

// OccupantView is an occupant as seen inside the room's game.
type OccupantView struct {
	UserID   uint
	Username string
	Nickname string
	Rank     *string
}

// RoomView is the read model of a room. Occupants is only filled in detail mode.
type RoomView struct {
	ID            uint
	GameID        uint
	OwnerID       *uint
	Name          string
	Description   *string
	Ranks         []string
	Capacity      int
	OccupantCount int
	Occupants     []OccupantView
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func newRoomView(room models.Room) RoomView {
	return RoomView{
		ID:          room.ID,
		GameID:      room.GameID,
		OwnerID:     room.OwnerID,
		Name:        room.Name,
		Description: room.Description,
		Ranks:       room.Ranks,
		Capacity:    room.Capacity,
		CreatedAt:   room.CreatedAt,
		UpdatedAt:   room.UpdatedAt,
	}
}

// RoomService enforces who may occupy which room. Every mutation runs in a
// single transaction; live connections are reconciled through the Evictor
// after commit.
type RoomService struct {
	db      *gorm.DB
	evictor Evictor
	log     zerolog.Logger
}

func NewRoomService(db *gorm.DB, evictor Evictor, log zerolog.Logger) *RoomService {
	return &RoomService{
		db:      db,
		evictor: evictor,
		log:     log.With().Str("module", "service.room").Logger(),
	}
}

func errRoomNotFound(roomID uint) error {
	return apperror.NotFound("Room '%d' not found", roomID)
}

var errNotInRoom = apperror.NotFound("You are not in any room")

func errNoProfile(gameID uint) error {
	return apperror.NotFound("You need to create a game profile for game %d", gameID)
}

// Create makes the user the owner and first occupant of a new room. A room the
// user already owns, for any game, is deleted first.
func (s *RoomService) Create(ctx context.Context, userID uint, in CreateRoomInput) (*RoomView, error) {
	var room models.Room
	ev, err := transact(ctx, s.db, func(tx *gorm.DB, ev *evictions) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		profile, err := findProfile(tx, user.ID, in.GameID)
		if err != nil {
			return err
		}
		if profile == nil {
			return errNoProfile(in.GameID)
		}

		var owned []models.Room
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("owner_id = ?", user.ID).Order("id").Find(&owned).Error; err != nil {
			return fmt.Errorf("load owned rooms: %w", err)
		}
		for i := range owned {
			if err := deleteRoom(tx, &owned[i], ev); err != nil {
				return err
			}
		}
		if user.RoomID != nil && !containsRoom(owned, *user.RoomID) {
			ev.user(*user.RoomID, user.ID)
		}

		capacity := in.Capacity
		if capacity == 0 {
			capacity = models.DefaultRoomCapacity
		}
		room = models.Room{
			GameID:      in.GameID,
			OwnerID:     &user.ID,
			Name:        in.Name,
			Description: in.Description,
			Ranks:       in.Ranks,
			Capacity:    capacity,
		}
		if err := tx.Omit(clause.Associations).Create(&room).Error; err != nil {
			return fmt.Errorf("insert room: %w", err)
		}
		if err := tx.Model(user).Update("room_id", room.ID).Error; err != nil {
			return fmt.Errorf("occupy room: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, internal("Failed to create room", err)
	}
	ev.apply(s.evictor)

	s.log.Info().Uint("room", room.ID).Uint("owner", userID).Uint("game", in.GameID).Msg("room created")
	return s.view(s.db.WithContext(ctx), room.ID, false)
}

// Get returns a room. In detail mode the occupants are resolved to their
// profiles for the room's game; occupants without one are left out.
func (s *RoomService) Get(ctx context.Context, roomID uint, detail bool) (*RoomView, error) {
	if roomID == 0 {
		return nil, errRoomNotFound(roomID)
	}
	return s.view(s.db.WithContext(ctx), roomID, detail)
}

// Mine returns the detail view of the user's current room.
func (s *RoomService) Mine(ctx context.Context, userID uint) (*RoomView, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Unauthorized("Authenticated user not found")
		}
		return nil, internal("Failed to load user", err)
	}
	if user.RoomID == nil {
		return nil, errNotInRoom
	}
	view, err := s.view(s.db.WithContext(ctx), *user.RoomID, true)
	if apperror.KindOf(err) == apperror.KindNotFound {
		return nil, errNotInRoom
	}
	return view, err
}

// Update changes the owner's current room. Only non-nil fields are applied.
func (s *RoomService) Update(ctx context.Context, userID uint, in UpdateRoomInput) (*RoomView, error) {
	var roomID uint
	_, err := transact(ctx, s.db, func(tx *gorm.DB, _ *evictions) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		if user.RoomID == nil {
			return errNotInRoom
		}
		room, err := lockRoom(tx, *user.RoomID)
		if err != nil {
			return err
		}
		if !room.IsOwnedBy(user.ID) {
			return apperror.Forbidden("You are not the owner of the room")
		}

		if in.Name != nil {
			room.Name = *in.Name
		}
		if in.Description != nil {
			room.Description = in.Description
		}
		if in.Ranks != nil {
			room.Ranks = in.Ranks
		}
		if in.Capacity != nil {
			count, err := countOccupants(tx, room.ID)
			if err != nil {
				return err
			}
			if int64(*in.Capacity) < count {
				return apperror.BadRequest("Room size can not be less than the number of users in it")
			}
			room.Capacity = *in.Capacity
		}
		if err := tx.Omit(clause.Associations).Save(room).Error; err != nil {
			return fmt.Errorf("save room: %w", err)
		}
		roomID = room.ID
		return nil
	})
	if err != nil {
		return nil, internal("Failed to update room", err)
	}
	return s.view(s.db.WithContext(ctx), roomID, false)
}

// Delete takes the user out of their current room. When the user owns it the
// room is deleted and every occupant leaves with it. It reports false when the
// user was not in a room.
func (s *RoomService) Delete(ctx context.Context, userID uint) (bool, error) {
	var left bool
	ev, err := transact(ctx, s.db, func(tx *gorm.DB, ev *evictions) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		left, err = s.leave(tx, user, ev)
		return err
	})
	if err != nil {
		return false, internal("Failed to leave room", err)
	}
	ev.apply(s.evictor)
	return left, nil
}

// leave is shared with the profile cascade.
func (s *RoomService) leave(tx *gorm.DB, user *models.User, ev *evictions) (bool, error) {
	if user.RoomID == nil {
		return false, nil
	}
	roomID := *user.RoomID

	var room models.Room
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, roomID).Error
	switch {
	case err == nil && room.IsOwnedBy(user.ID):
		if err := deleteRoom(tx, &room, ev); err != nil {
			return false, err
		}
		s.log.Info().Uint("room", roomID).Uint("owner", user.ID).Msg("room deleted by owner")
	case err == nil || errors.Is(err, gorm.ErrRecordNotFound):
		ev.user(roomID, user.ID)
	default:
		return false, fmt.Errorf("load room %d: %w", roomID, err)
	}

	if err := tx.Model(user).Update("room_id", nil).Error; err != nil {
		return false, fmt.Errorf("leave room: %w", err)
	}
	return true, nil
}

// Join moves the user into a room. The room row stays locked from the capacity
// check to the occupancy update, so concurrent joins cannot overfill it. The
// room the user leaves is locked in the same step.
func (s *RoomService) Join(ctx context.Context, roomID, userID uint) (*RoomView, error) {
	ev, err := transact(ctx, s.db, func(tx *gorm.DB, ev *evictions) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		ids := []uint{roomID}
		if user.RoomID != nil {
			ids = append(ids, *user.RoomID)
		}
		locked, err := lockRooms(tx, ids...)
		if err != nil {
			return err
		}
		room, ok := locked[roomID]
		if !ok {
			return errRoomNotFound(roomID)
		}
		if user.InRoom(room.ID) {
			return apperror.BadRequest("You are already in this room")
		}

		count, err := countOccupants(tx, room.ID)
		if err != nil {
			return err
		}
		if count >= int64(room.Capacity) {
			return apperror.BadRequest("The room is full")
		}

		profile, err := findProfile(tx, user.ID, room.GameID)
		if err != nil {
			return err
		}
		if profile == nil {
			return errNoProfile(room.GameID)
		}

		if _, err := s.leave(tx, user, ev); err != nil {
			return err
		}
		if err := tx.Model(user).Update("room_id", room.ID).Error; err != nil {
			return fmt.Errorf("occupy room: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, internal("Failed to join room", err)
	}
	ev.apply(s.evictor)

	s.log.Info().Uint("room", roomID).Uint("user", userID).Msg("user joined room")
	return s.view(s.db.WithContext(ctx), roomID, true)
}

// Kick removes target from the acting user's room. Only the owner may kick.
func (s *RoomService) Kick(ctx context.Context, targetID, actingID uint) error {
	ev, err := transact(ctx, s.db, func(tx *gorm.DB, ev *evictions) error {
		acting, err := lockUser(tx, actingID)
		if err != nil {
			return err
		}
		if acting.RoomID == nil {
			return errNotInRoom
		}
		roomID := *acting.RoomID

		var target models.User
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&target, targetID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !target.InRoom(roomID)) {
			return apperror.NotFound("User '%d' not in the room", targetID)
		}
		if err != nil {
			return fmt.Errorf("load user %d: %w", targetID, err)
		}
		if target.ID == acting.ID {
			return apperror.BadRequest("You can not kick yourself")
		}

		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}
		if !room.IsOwnedBy(acting.ID) {
			return apperror.Forbidden("You are not the owner of the room")
		}

		if err := tx.Model(&target).Update("room_id", nil).Error; err != nil {
			return fmt.Errorf("kick user: %w", err)
		}
		ev.user(roomID, target.ID)
		return nil
	})
	if err != nil {
		return internal("Failed to kick user", err)
	}
	ev.apply(s.evictor)

	s.log.Info().Uint("user", targetID).Uint("by", actingID).Msg("user kicked")
	return nil
}

// List returns rooms that still have a free slot, with the total number of
// such rooms. Full rooms are never listed.
func (s *RoomService) List(ctx context.Context, q RoomListQuery) ([]RoomView, int64, error) {
	q.ListQuery = q.normalized()
	order, err := q.orderBy(roomSorts)
	if err != nil {
		return nil, 0, err
	}

	db := s.db.WithContext(ctx)
	available := func() *gorm.DB {
		query := db.Model(&models.Room{}).
			Joins("LEFT JOIN users ON users.room_id = rooms.id AND users.deleted_at IS NULL").
			Group("rooms.id").
			Having("COUNT(users.id) < rooms.capacity") // Filter out full rooms
		if q.GameID != nil {
			query = query.Where("rooms.game_id = ?", *q.GameID)
		}
		return query
	}

	var total int64
	if err := db.Table("(?) AS sub", available().Select("rooms.id")).Count(&total).Error; err != nil {
		return nil, 0, internal("Failed to count rooms", err)
	}

	var ids []uint
	if err := available().Order(order).Offset(q.offset()).Limit(q.Size).Pluck("rooms.id", &ids).Error; err != nil {
		return nil, 0, internal("Failed to retrieve rooms", err)
	}
	if len(ids) == 0 {
		return []RoomView{}, total, nil
	}

	var rooms []models.Room
	if err := db.Where("id IN ?", ids).Find(&rooms).Error; err != nil {
		return nil, 0, internal("Failed to retrieve rooms", err)
	}
	counts, err := countOccupantsByRoom(db, ids)
	if err != nil {
		return nil, 0, internal("Failed to count occupants", err)
	}

	byID := make(map[uint]models.Room, len(rooms))
	for _, room := range rooms {
		byID[room.ID] = room
	}
	views := make([]RoomView, 0, len(ids))
	for _, id := range ids {
		room, ok := byID[id]
		if !ok {
			continue
		}
		view := newRoomView(room)
		view.OccupantCount = int(counts[id])
		views = append(views, view)
	}
	return views, total, nil
}

// ChatIdentity resolves the room a user chats in and the nickname shown there.
func (s *RoomService) ChatIdentity(ctx context.Context, userID uint) (uint, string, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, "", apperror.Unauthorized("Authenticated user not found")
		}
		return 0, "", internal("Failed to load user", err)
	}
	if user.RoomID == nil {
		return 0, "", errNotInRoom
	}

	var room models.Room
	if err := db.First(&room, *user.RoomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, "", errNotInRoom
		}
		return 0, "", internal("Failed to load room", err)
	}
	profile, err := findProfile(db, user.ID, room.GameID)
	if err != nil {
		return 0, "", internal("Failed to load profile", err)
	}
	if profile == nil {
		return 0, "", errNoProfile(room.GameID)
	}
	return room.ID, profile.Nickname, nil
}

func (s *RoomService) view(db *gorm.DB, roomID uint, detail bool) (*RoomView, error) {
	var room models.Room
	if err := db.First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errRoomNotFound(roomID)
		}
		return nil, internal("Failed to load room", err)
	}
	view := newRoomView(room)

	if !detail {
		count, err := countOccupants(db, room.ID)
		if err != nil {
			return nil, internal("Failed to count occupants", err)
		}
		view.OccupantCount = int(count)
		return &view, nil
	}

	occupants := []OccupantView{}
	err := db.Table("users").
		Select("users.id AS user_id, users.username AS username, profiles.nickname AS nickname, profiles.rank AS rank").
		Joins("JOIN profiles ON profiles.user_id = users.id AND profiles.game_id = ?", room.GameID).
		Where("users.room_id = ? AND users.deleted_at IS NULL", room.ID).
		Order("users.id").
		Scan(&occupants).Error
	if err != nil {
		return nil, internal("Failed to load occupants", err)
	}
	view.Occupants = occupants
	view.OccupantCount = len(occupants)
	return &view, nil
}

func lockRoom(tx *gorm.DB, roomID uint) (*models.Room, error) {
	var room models.Room
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errRoomNotFound(roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("load room %d: %w", roomID, err)
	}
	return &room, nil
}

// deleteRoom removes a room together with the occupancy of everyone in it.
func deleteRoom(tx *gorm.DB, room *models.Room, ev *evictions) error {
	if err := tx.Model(&models.User{}).Where("room_id = ?", room.ID).Update("room_id", nil).Error; err != nil {
		return fmt.Errorf("clear occupants of room %d: %w", room.ID, err)
	}
	if err := tx.Delete(room).Error; err != nil {
		return fmt.Errorf("delete room %d: %w", room.ID, err)
	}
	ev.room(room.ID)
	return nil
}

func countOccupants(db *gorm.DB, roomID uint) (int64, error) {
	var count int64
	if err := db.Model(&models.User{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count occupants of room %d: %w", roomID, err)
	}
	return count, nil
}

func countOccupantsByRoom(db *gorm.DB, roomIDs []uint) (map[uint]int64, error) {
	var rows []struct {
		RoomID uint
		Total  int64
	}
	err := db.Model(&models.User{}).
		Select("room_id, COUNT(*) AS total").
		Where("room_id IN ?", roomIDs).
		Group("room_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.RoomID] = row.Total
	}
	return counts, nil
}

func containsRoom(rooms []models.Room, roomID uint) bool {
	for _, r := range rooms {
		if r.ID == roomID {
			return true
		}
	}
	return false
}
