package service

import (
	"context"
	"errors"
	"fmt"

	"playmatch/rooms/internal/apperror"
	"playmatch/rooms/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var profileSorts = map[string]string{
	"id":          "profiles.id",
	"game_id":     "profiles.game_id",
	"create_date": "profiles.created_at",
	"update_date": "profiles.updated_at",
}

type CreateProfileInput struct {
	GameID   uint
	Nickname string
	Rank     *string
}

type UpdateProfileInput struct {
	Nickname *string
	Rank     *string
}

// ProfileService manages a user's per-game identities.
type ProfileService struct {
	db    *gorm.DB
	rooms *RoomService
}

func NewProfileService(db *gorm.DB, rooms *RoomService) *ProfileService {
	return &ProfileService{db: db, rooms: rooms}
}

func errProfileNotFound(profileID uint) error {
	return apperror.NotFound("Profile '%d' not found", profileID)
}

func (s *ProfileService) Create(ctx context.Context, userID uint, in CreateProfileInput) (*models.Profile, error) {
	db := s.db.WithContext(ctx)

	var game models.Game
	if err := db.First(&game, in.GameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Game '%d' not found", in.GameID)
		}
		return nil, internal("Failed to load game", err)
	}

	profile := models.Profile{
		UserID:   userID,
		GameID:   game.ID,
		Nickname: in.Nickname,
		Rank:     in.Rank,
	}
	if err := db.Omit(clause.Associations).Create(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Conflict("You already have a profile in this game")
		}
		return nil, internal("Failed to create profile", err)
	}
	profile.Game = game
	return &profile, nil
}

// Get returns one of the user's own profiles with its game.
func (s *ProfileService) Get(ctx context.Context, userID, profileID uint) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).Preload("Game").
		Where("id = ? AND user_id = ?", profileID, userID).
		First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errProfileNotFound(profileID)
	}
	if err != nil {
		return nil, internal("Failed to load profile", err)
	}
	return &profile, nil
}

func (s *ProfileService) Update(ctx context.Context, userID, profileID uint, in UpdateProfileInput) (*models.Profile, error) {
	profile, err := s.Get(ctx, userID, profileID)
	if err != nil {
		return nil, err
	}
	if in.Nickname != nil {
		profile.Nickname = *in.Nickname
	}
	if in.Rank != nil {
		profile.Rank = in.Rank
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(profile).Error; err != nil {
		return nil, internal("Failed to update profile", err)
	}
	return profile, nil
}

// Delete removes a profile. A user whose current room belongs to the
// profile's game leaves that room first, since they could not rejoin it.
func (s *ProfileService) Delete(ctx context.Context, userID, profileID uint) error {
	ev, err := transact(ctx, s.db, func(tx *gorm.DB, ev *evictions) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		var profile models.Profile
		err = tx.Where("id = ? AND user_id = ?", profileID, user.ID).First(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errProfileNotFound(profileID)
		}
		if err != nil {
			return fmt.Errorf("load profile %d: %w", profileID, err)
		}

		if user.RoomID != nil {
			var room models.Room
			err := tx.First(&room, *user.RoomID).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("load room %d: %w", *user.RoomID, err)
			}
			if err == nil && room.GameID == profile.GameID {
				if _, err := s.rooms.leave(tx, user, ev); err != nil {
					return err
				}
			}
		}

		if err := tx.Delete(&profile).Error; err != nil {
			return fmt.Errorf("delete profile %d: %w", profileID, err)
		}
		return nil
	})
	if err != nil {
		return internal("Failed to delete profile", err)
	}
	ev.apply(s.rooms.evictor)
	return nil
}

// List returns a page of the user's profiles and their total count.
func (s *ProfileService) List(ctx context.Context, userID uint, q ListQuery) ([]models.Profile, int64, error) {
	q = q.normalized()
	order, err := q.orderBy(profileSorts)
	if err != nil {
		return nil, 0, err
	}

	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.Profile{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, internal("Failed to count profiles", err)
	}

	profiles := []models.Profile{}
	err = db.Preload("Game").
		Where("user_id = ?", userID).
		Order(order).
		Offset(q.offset()).
		Limit(q.Size).
		Find(&profiles).Error
	if err != nil {
		return nil, 0, internal("Failed to retrieve profiles", err)
	}
	return profiles, total, nil
}
