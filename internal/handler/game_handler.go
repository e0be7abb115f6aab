package handler

import (
	"net/http"
	"time"

	"playmatch/rooms/internal/models"
	"playmatch/rooms/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// region --- DTOs ---

type GameInput struct {
	Name        string   `json:"name" binding:"required,max=255" example:"Dota 2"`
	Description string   `json:"description"`
	Ranks       []string `json:"ranks"`
	Logo        string   `json:"logo" binding:"omitempty,max=512"`
}

type GameUpdateInput struct {
	Name        *string  `json:"name" binding:"omitempty,min=1,max=255"`
	Description *string  `json:"description"`
	Ranks       []string `json:"ranks"`
	Logo        *string  `json:"logo" binding:"omitempty,max=512"`
}

type GameResponse struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Ranks       []string  `json:"ranks"`
	Logo        string    `json:"logo"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newGameResponse(game models.Game) GameResponse {
	return GameResponse{
		ID:          game.ID,
		Name:        game.Name,
		Description: game.Description,
		Ranks:       game.Ranks,
		Logo:        game.Logo,
		CreatedAt:   game.CreatedAt,
		UpdatedAt:   game.UpdatedAt,
	}
}

// endregion

type GameHandler struct {
	games *service.GameService
}

func NewGameHandler(games *service.GameService) *GameHandler {
	return &GameHandler{games: games}
}

// region --- Admin Handlers ---

// CreateGame godoc
// @Summary      Create a new game
// @Description  Creates a new game.
// @Tags         admin-games
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body GameInput true "Game Info"
// @Success      201  {object}  GameResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Admin access required"
// @Failure      409  {object}  ErrorResponse "Game already exists"
// @Router       /admin/games [post]
func (h *GameHandler) CreateGame(c *gin.Context) {
	var input GameInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	game, err := h.games.Create(c.Request.Context(), service.GameInput{
		Name:        input.Name,
		Description: input.Description,
		Ranks:       input.Ranks,
		Logo:        input.Logo,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newGameResponse(*game))
}

// UpdateGame godoc
// @Summary      Update a game
// @Description  Applies the provided fields to a game.
// @Tags         admin-games
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int             true  "Game ID"
// @Param        input body      GameUpdateInput true  "Fields to change"
// @Success      200   {object}  GameResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse "Admin access required"
// @Failure      404   {object}  ErrorResponse "Game not found"
// @Failure      409   {object}  ErrorResponse "Game already exists"
// @Router       /admin/games/{id} [patch]
func (h *GameHandler) UpdateGame(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input GameUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	game, err := h.games.Update(c.Request.Context(), id, service.UpdateGameInput{
		Name:        input.Name,
		Description: input.Description,
		Ranks:       input.Ranks,
		Logo:        input.Logo,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newGameResponse(*game))
}

// DeleteGame godoc
// @Summary      Delete a game
// @Description  Deletes a game with its rooms and profiles.
// @Tags         admin-games
// @Security     BearerAuth
// @Param        id path int true "Game ID"
// @Success      204
// @Failure      403 {object} ErrorResponse "Admin access required"
// @Failure      404 {object} ErrorResponse "Game not found"
// @Router       /admin/games/{id} [delete]
func (h *GameHandler) DeleteGame(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.games.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// endregion

// region --- Public Handlers ---

// GetGameByID godoc
// @Summary      Get a single game by ID
// @Tags         games
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Game ID"
// @Success      200 {object} GameResponse
// @Failure      404 {object} ErrorResponse "Game not found"
// @Router       /games/{id} [get]
func (h *GameHandler) GetGameByID(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	game, err := h.games.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newGameResponse(*game))
}

// GetGames godoc
// @Summary      Get a list of games
// @Description  Retrieves a paginated list of games.
// @Tags         games
// @Produce      json
// @Security     BearerAuth
// @Param        page  query int    false "Page number" default(1)
// @Param        size  query int    false "Items per page" default(10)
// @Param        sort  query string false "Sort field" Enums(id, game_name, create_date, update_date)
// @Param        order query string false "Sort order" Enums(asc, desc)
// @Success      200 {object} PaginatedResponse[GameResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /games [get]
func (h *GameHandler) GetGames(c *gin.Context) {
	var params ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, err)
		return
	}

	q := params.query()
	games, total, err := h.games.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	response := lo.Map(games, func(game models.Game, _ int) GameResponse {
		return newGameResponse(game)
	})
	c.JSON(http.StatusOK, NewPaginatedResponse(response, total, q.Page, q.Size))
}

// endregion
