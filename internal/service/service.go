// Package service holds the business rules of the room service: membership of
// rooms, and the profile, game and user bookkeeping those rules depend on.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"playmatch/rooms/internal/apperror"
	"playmatch/rooms/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:generate go run go.uber.org/mock/mockgen -source=service.go -destination=mocks/mock_evictor.go -package=mocks

// Evictor keeps live chat connections consistent with persisted membership.
// It is called after a transaction commits.
type Evictor interface {
	// EvictUser drops the user's connections registered under roomID.
	EvictUser(roomID, userID uint)
	// CloseRoom drops every connection registered under a deleted room.
	CloseRoom(roomID uint)
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListQuery is the ordering and paging part of every listing.
type ListQuery struct {
	Page  int
	Size  int
	Sort  string
	Order string
}

func (q ListQuery) normalized() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < 1 {
		q.Size = DefaultPageSize
	}
	if q.Size > MaxPageSize {
		q.Size = MaxPageSize
	}
	if q.Sort == "" {
		q.Sort = "id"
	}
	if q.Order == "" {
		q.Order = "asc"
	}
	return q
}

func (q ListQuery) offset() int {
	return (q.Page - 1) * q.Size
}

// orderBy resolves the public sort key against a whitelist of columns.
func (q ListQuery) orderBy(columns map[string]string) (clause.OrderByColumn, error) {
	column, ok := columns[q.Sort]
	if !ok {
		return clause.OrderByColumn{}, apperror.BadRequest("Unknown sort field '%s'", q.Sort)
	}
	var desc bool
	switch q.Order {
	case "asc":
	case "desc":
		desc = true
	default:
		return clause.OrderByColumn{}, apperror.BadRequest("Unknown order '%s'", q.Order)
	}
	return clause.OrderByColumn{Column: clause.Column{Name: column, Raw: true}, Desc: desc}, nil
}

// Pages is the number of pages needed for total items.
func Pages(total int64, size int) int {
	if size <= 0 {
		size = 1
	}
	return (int(total) + size - 1) / size
}

// evictions collects the live-connection side effects of a transaction so
// they can be applied once it has committed.
type evictions struct {
	users []struct{ roomID, userID uint }
	rooms []uint
}

func (e *evictions) user(roomID, userID uint) {
	e.users = append(e.users, struct{ roomID, userID uint }{roomID, userID})
}

func (e *evictions) room(roomID uint) {
	e.rooms = append(e.rooms, roomID)
}

func (e *evictions) apply(ev Evictor) {
	if ev == nil {
		return
	}
	for _, roomID := range e.rooms {
		ev.CloseRoom(roomID)
	}
	for _, u := range e.users {
		ev.EvictUser(u.roomID, u.userID)
	}
}

// txAttempts bounds how often a transaction aborted by the database is run.
const txAttempts = 3

// transact runs fn in a transaction and returns the evictions it collected.
// A transaction that Postgres aborts as a deadlock victim or a serialization
// failure is run again from scratch with fresh evictions.
func transact(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB, ev *evictions) error) (*evictions, error) {
	for attempt := 1; ; attempt++ {
		ev := &evictions{}
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(tx, ev)
		})
		if err == nil {
			return ev, nil
		}
		if attempt == txAttempts || !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40P01", "40001": // deadlock_detected, serialization_failure
		return true
	}
	return false
}

// lockRooms locks the existing rooms among ids in ascending id order. Every
// transaction that holds more than one room lock takes them this way, so two
// of them never wait on each other.
func lockRooms(tx *gorm.DB, ids ...uint) (map[uint]*models.Room, error) {
	ids = lo.Uniq(lo.Without(ids, 0))
	slices.Sort(ids)

	locked := make(map[uint]*models.Room, len(ids))
	for _, id := range ids {
		var room models.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load room %d: %w", id, err)
		}
		locked[id] = &room
	}
	return locked, nil
}

// lockUser loads the user row for update inside a transaction.
func lockUser(tx *gorm.DB, userID uint) (*models.User, error) {
	var user models.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Unauthorized("Authenticated user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	return &user, nil
}

// findProfile returns the user's profile for a game, or nil when there is none.
func findProfile(tx *gorm.DB, userID, gameID uint) (*models.Profile, error) {
	var profiles []models.Profile
	if err := tx.Where("user_id = ? AND game_id = ?", userID, gameID).Limit(1).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return &profiles[0], nil
}

// internal keeps classified errors and wraps everything else.
func internal(message string, err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Internal(message, err)
}
