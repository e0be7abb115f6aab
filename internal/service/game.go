package service

import (
	"context"
	"errors"
	"fmt"

	"playmatch/rooms/internal/apperror"
	"playmatch/rooms/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var gameSorts = map[string]string{
	"id":          "games.id",
	"game_name":   "games.name",
	"create_date": "games.created_at",
	"update_date": "games.updated_at",
}

type GameInput struct {
	Name        string
	Description string
	Ranks       []string
	Logo        string
}

// UpdateGameInput is a partial update: nil fields are left unchanged.
type UpdateGameInput struct {
	Name        *string
	Description *string
	Ranks       []string
	Logo        *string
}

// GameService is the admin-managed game catalogue.
type GameService struct {
	db      *gorm.DB
	evictor Evictor
	log     zerolog.Logger
}

func NewGameService(db *gorm.DB, evictor Evictor, log zerolog.Logger) *GameService {
	return &GameService{
		db:      db,
		evictor: evictor,
		log:     log.With().Str("module", "service.game").Logger(),
	}
}

func errGameNotFound(gameID uint) error {
	return apperror.NotFound("Game '%d' not found", gameID)
}

func errGameExists(name string) error {
	return apperror.Conflict("Game '%s' already exists", name)
}

func (s *GameService) Create(ctx context.Context, in GameInput) (*models.Game, error) {
	game := models.Game{
		Name:        in.Name,
		Description: in.Description,
		Ranks:       in.Ranks,
		Logo:        in.Logo,
	}
	if err := s.db.WithContext(ctx).Create(&game).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errGameExists(in.Name)
		}
		return nil, internal("Failed to create game", err)
	}
	s.log.Info().Uint("game", game.ID).Str("name", game.Name).Msg("game created")
	return &game, nil
}

func (s *GameService) Get(ctx context.Context, gameID uint) (*models.Game, error) {
	var game models.Game
	if err := s.db.WithContext(ctx).First(&game, gameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errGameNotFound(gameID)
		}
		return nil, internal("Failed to load game", err)
	}
	return &game, nil
}

func (s *GameService) Update(ctx context.Context, gameID uint, in UpdateGameInput) (*models.Game, error) {
	game, err := s.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		game.Name = *in.Name
	}
	if in.Description != nil {
		game.Description = *in.Description
	}
	if in.Ranks != nil {
		game.Ranks = in.Ranks
	}
	if in.Logo != nil {
		game.Logo = *in.Logo
	}
	if err := s.db.WithContext(ctx).Save(game).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errGameExists(game.Name)
		}
		return nil, internal("Failed to update game", err)
	}
	return game, nil
}

// Delete removes a game together with its rooms and profiles. Occupants of
// the removed rooms are left without a room.
func (s *GameService) Delete(ctx context.Context, gameID uint) error {
	ev, err := transact(ctx, s.db, func(tx *gorm.DB, ev *evictions) error {
		var game models.Game
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&game, gameID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errGameNotFound(gameID)
			}
			return fmt.Errorf("load game %d: %w", gameID, err)
		}

		// Rows stay locked until commit, so no join can land in a room being removed.
		var rooms []models.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("game_id = ?", game.ID).
			Order("id").
			Find(&rooms).Error
		if err != nil {
			return fmt.Errorf("load rooms of game %d: %w", game.ID, err)
		}
		for i := range rooms {
			if err := deleteRoom(tx, &rooms[i], ev); err != nil {
				return err
			}
		}
		// Rooms reference the game, including the soft-deleted ones.
		if err := tx.Unscoped().Where("game_id = ?", game.ID).Delete(&models.Room{}).Error; err != nil {
			return fmt.Errorf("purge rooms of game %d: %w", game.ID, err)
		}
		if err := tx.Where("game_id = ?", game.ID).Delete(&models.Profile{}).Error; err != nil {
			return fmt.Errorf("delete profiles of game %d: %w", game.ID, err)
		}
		// Hard delete so the name can be reused.
		if err := tx.Unscoped().Delete(&game).Error; err != nil {
			return fmt.Errorf("delete game %d: %w", game.ID, err)
		}
		return nil
	})
	if err != nil {
		return internal("Failed to delete game", err)
	}
	ev.apply(s.evictor)

	s.log.Info().Uint("game", gameID).Int("rooms", len(ev.rooms)).Msg("game deleted")
	return nil
}

func (s *GameService) List(ctx context.Context, q ListQuery) ([]models.Game, int64, error) {
	q = q.normalized()
	order, err := q.orderBy(gameSorts)
	if err != nil {
		return nil, 0, err
	}

	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.Game{}).Count(&total).Error; err != nil {
		return nil, 0, internal("Failed to count games", err)
	}

	games := []models.Game{}
	if err := db.Order(order).Offset(q.offset()).Limit(q.Size).Find(&games).Error; err != nil {
		return nil, 0, internal("Failed to retrieve games", err)
	}
	return games, total, nil
}
