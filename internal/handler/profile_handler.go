package handler

import (
	"net/http"
	"time"

	"playmatch/rooms/internal/auth"
	"playmatch/rooms/internal/models"
	"playmatch/rooms/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// region --- DTOs ---

type ProfileInput struct {
	GameID   uint    `json:"game_id" binding:"required" example:"1"`
	Nickname string  `json:"nickname" binding:"required,max=255" example:"shadowfiend"`
	Rank     *string `json:"rank" binding:"omitempty,max=100" example:"legend"`
}

type ProfileUpdateInput struct {
	Nickname *string `json:"nickname" binding:"omitempty,min=1,max=255"`
	Rank     *string `json:"rank" binding:"omitempty,max=100"`
}

type ProfileResponse struct {
	ID        uint         `json:"id"`
	Nickname  string       `json:"nickname"`
	Rank      *string      `json:"rank"`
	Game      GameResponse `json:"game"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func newProfileResponse(profile models.Profile) ProfileResponse {
	return ProfileResponse{
		ID:        profile.ID,
		Nickname:  profile.Nickname,
		Rank:      profile.Rank,
		Game:      newGameResponse(profile.Game),
		CreatedAt: profile.CreatedAt,
		UpdatedAt: profile.UpdatedAt,
	}
}

// endregion

type ProfileHandler struct {
	profiles *service.ProfileService
}

func NewProfileHandler(profiles *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// CreateProfile godoc
// @Summary      Create a game profile
// @Description  Creates the caller's identity inside a game. A user has at most one profile per game.
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body ProfileInput true "Profile Info"
// @Success      201 {object} ProfileResponse
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse "Game not found"
// @Failure      409 {object} ErrorResponse "Profile already exists"
// @Router       /profiles [post]
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	userID, _ := auth.UserID(c)

	var input ProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	profile, err := h.profiles.Create(c.Request.Context(), userID, service.CreateProfileInput{
		GameID:   input.GameID,
		Nickname: input.Nickname,
		Rank:     input.Rank,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newProfileResponse(*profile))
}

// GetProfile godoc
// @Summary      Get one of the caller's profiles
// @Tags         profiles
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Profile ID"
// @Success      200 {object} ProfileResponse
// @Failure      404 {object} ErrorResponse "Profile not found"
// @Router       /profiles/{id} [get]
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, _ := auth.UserID(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	profile, err := h.profiles.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newProfileResponse(*profile))
}

// UpdateProfile godoc
// @Summary      Update one of the caller's profiles
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path int                true "Profile ID"
// @Param        input body ProfileUpdateInput true "Fields to change"
// @Success      200 {object} ProfileResponse
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse "Profile not found"
// @Router       /profiles/{id} [patch]
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	userID, _ := auth.UserID(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input ProfileUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	profile, err := h.profiles.Update(c.Request.Context(), userID, id, service.UpdateProfileInput{
		Nickname: input.Nickname,
		Rank:     input.Rank,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newProfileResponse(*profile))
}

// DeleteProfile godoc
// @Summary      Delete one of the caller's profiles
// @Description  Deletes a profile. If the caller is in a room of that game, they leave it first.
// @Tags         profiles
// @Security     BearerAuth
// @Param        id path int true "Profile ID"
// @Success      204
// @Failure      404 {object} ErrorResponse "Profile not found"
// @Router       /profiles/{id} [delete]
func (h *ProfileHandler) DeleteProfile(c *gin.Context) {
	userID, _ := auth.UserID(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.profiles.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListProfiles godoc
// @Summary      List the caller's profiles
// @Tags         profiles
// @Produce      json
// @Security     BearerAuth
// @Param        page  query int    false "Page number" default(1)
// @Param        size  query int    false "Items per page" default(10)
// @Param        sort  query string false "Sort field" Enums(id, game_id, create_date, update_date)
// @Param        order query string false "Sort order" Enums(asc, desc)
// @Success      200 {object} PaginatedResponse[ProfileResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /profiles [get]
func (h *ProfileHandler) ListProfiles(c *gin.Context) {
	userID, _ := auth.UserID(c)

	var params ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, err)
		return
	}

	q := params.query()
	profiles, total, err := h.profiles.List(c.Request.Context(), userID, q)
	if err != nil {
		respondError(c, err)
		return
	}

	response := lo.Map(profiles, func(profile models.Profile, _ int) ProfileResponse {
		return newProfileResponse(profile)
	})
	c.JSON(http.StatusOK, NewPaginatedResponse(response, total, q.Page, q.Size))
}
