package handler

import (
	"net/http"
	"time"

	"playmatch/rooms/internal/apperror"
	"playmatch/rooms/internal/auth"
	"playmatch/rooms/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// region --- DTOs ---

type RoomInput struct {
	GameID      uint     `json:"game_id" binding:"required" example:"1"`
	Name        string   `json:"name" binding:"required,max=255" example:"Ranked duo"`
	Description *string  `json:"description"`
	Ranks       []string `json:"ranks"`
	Capacity    int      `json:"capacity" binding:"omitempty,min=1,max=100" example:"5"`
}

// RoomUpdateInput carries a partial update; omitted fields are left unchanged.
type RoomUpdateInput struct {
	Name        *string  `json:"name" binding:"omitempty,min=1,max=255"`
	Description *string  `json:"description"`
	Ranks       []string `json:"ranks"`
	Capacity    *int     `json:"capacity" binding:"omitempty,min=1,max=100"`
}

type RoomListParams struct {
	ListParams
	GameID *uint `form:"game_id" binding:"omitempty,min=1"`
}

type OccupantResponse struct {
	UserID   uint    `json:"user_id"`
	Username string  `json:"username"`
	Nickname string  `json:"nickname"`
	Rank     *string `json:"rank"`
}

type RoomResponse struct {
	ID            uint               `json:"id"`
	GameID        uint               `json:"game_id"`
	OwnerID       *uint              `json:"owner_id"`
	Name          string             `json:"name"`
	Description   *string            `json:"description"`
	Ranks         []string           `json:"ranks"`
	Capacity      int                `json:"capacity"`
	OccupantCount int                `json:"occupant_count"`
	Occupants     []OccupantResponse `json:"occupants,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func newRoomResponse(room service.RoomView) RoomResponse {
	var occupants []OccupantResponse
	if room.Occupants != nil {
		occupants = lo.Map(room.Occupants, func(o service.OccupantView, _ int) OccupantResponse {
			return OccupantResponse{UserID: o.UserID, Username: o.Username, Nickname: o.Nickname, Rank: o.Rank}
		})
	}
	return RoomResponse{
		ID:            room.ID,
		GameID:        room.GameID,
		OwnerID:       room.OwnerID,
		Name:          room.Name,
		Description:   room.Description,
		Ranks:         room.Ranks,
		Capacity:      room.Capacity,
		OccupantCount: room.OccupantCount,
		Occupants:     occupants,
		CreatedAt:     room.CreatedAt,
		UpdatedAt:     room.UpdatedAt,
	}
}

// endregion

type RoomHandler struct {
	rooms *service.RoomService
}

func NewRoomHandler(rooms *service.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// CreateRoom godoc
// @Summary      Create a new room
// @Description  Creates a room for a game and makes the caller its owner and first occupant. A room the caller already owns is deleted.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body RoomInput true "Room Info"
// @Success      201  {object}  RoomResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "No profile for the game"
// @Router       /rooms [post]
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, _ := auth.UserID(c)

	var input RoomInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	room, err := h.rooms.Create(c.Request.Context(), userID, service.CreateRoomInput{
		GameID:      input.GameID,
		Name:        input.Name,
		Description: input.Description,
		Ranks:       input.Ranks,
		Capacity:    input.Capacity,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newRoomResponse(*room))
}

// GetMyRoom godoc
// @Summary      Get the current room
// @Description  Gets the room the caller is in, with the profiles of its occupants.
// @Tags         rooms
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} RoomResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse "Not in any room"
// @Router       /rooms [get]
func (h *RoomHandler) GetMyRoom(c *gin.Context) {
	userID, _ := auth.UserID(c)

	room, err := h.rooms.Mine(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newRoomResponse(*room))
}

// UpdateRoom godoc
// @Summary      Update the current room (Owner only)
// @Description  Applies the provided fields to the caller's room.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body RoomUpdateInput true "Fields to change"
// @Success      200 {object} RoomResponse
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse "Only the owner can update the room"
// @Failure      404 {object} ErrorResponse "Not in any room"
// @Router       /rooms [patch]
func (h *RoomHandler) UpdateRoom(c *gin.Context) {
	userID, _ := auth.UserID(c)

	var input RoomUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	room, err := h.rooms.Update(c.Request.Context(), userID, service.UpdateRoomInput{
		Name:        input.Name,
		Description: input.Description,
		Ranks:       input.Ranks,
		Capacity:    input.Capacity,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newRoomResponse(*room))
}

// LeaveRoom godoc
// @Summary      Leave the current room
// @Description  Leaves the caller's room. When the caller owns it, the room is deleted and everyone in it leaves.
// @Tags         rooms
// @Security     BearerAuth
// @Success      204
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse "Not in any room"
// @Router       /rooms [delete]
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	userID, _ := auth.UserID(c)

	left, err := h.rooms.Delete(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !left {
		respondError(c, apperror.NotFound("You are not in any room"))
		return
	}

	c.Status(http.StatusNoContent)
}

// ListRooms godoc
// @Summary      List rooms with free slots
// @Description  Gets a paginated list of rooms that are not full, optionally filtered by game.
// @Tags         rooms
// @Produce      json
// @Security     BearerAuth
// @Param        game_id query int    false "Filter by Game ID"
// @Param        page    query int    false "Page number" default(1)
// @Param        size    query int    false "Items per page" default(10)
// @Param        sort    query string false "Sort field" Enums(id, room_name, create_date, update_date)
// @Param        order   query string false "Sort order" Enums(asc, desc)
// @Success      200 {object} PaginatedResponse[RoomResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /rooms/list [get]
func (h *RoomHandler) ListRooms(c *gin.Context) {
	var params RoomListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, err)
		return
	}

	q := params.query()
	rooms, total, err := h.rooms.List(c.Request.Context(), service.RoomListQuery{ListQuery: q, GameID: params.GameID})
	if err != nil {
		respondError(c, err)
		return
	}

	response := lo.Map(rooms, func(room service.RoomView, _ int) RoomResponse {
		return newRoomResponse(room)
	})
	c.JSON(http.StatusOK, NewPaginatedResponse(response, total, q.Page, q.Size))
}

// LookRoom godoc
// @Summary      Get a room by ID
// @Description  Gets a room with the profiles of its occupants.
// @Tags         rooms
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Room ID"
// @Success      200 {object} RoomResponse
// @Failure      404 {object} ErrorResponse "Room not found"
// @Router       /rooms/look/{id} [get]
func (h *RoomHandler) LookRoom(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}

	room, err := h.rooms.Get(c.Request.Context(), roomID, true)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newRoomResponse(*room))
}

// JoinRoom godoc
// @Summary      Join a room
// @Description  Moves the caller into a room with a free slot. A room the caller owned is deleted.
// @Tags         rooms
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Room ID"
// @Success      200 {object} RoomResponse
// @Failure      400 {object} ErrorResponse "Already in the room or the room is full"
// @Failure      404 {object} ErrorResponse "Room or profile not found"
// @Router       /rooms/join/{id} [post]
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID, _ := auth.UserID(c)
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}

	room, err := h.rooms.Join(c.Request.Context(), roomID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newRoomResponse(*room))
}

// KickUser godoc
// @Summary      Kick a user from the current room (Owner only)
// @Description  Removes an occupant from the caller's room.
// @Tags         rooms
// @Security     BearerAuth
// @Param        user_id path int true "User ID of the occupant to kick"
// @Success      204
// @Failure      400 {object} ErrorResponse "Cannot kick yourself"
// @Failure      403 {object} ErrorResponse "Only the owner can kick"
// @Failure      404 {object} ErrorResponse "User not in the room"
// @Router       /rooms/kick/{user_id} [delete]
func (h *RoomHandler) KickUser(c *gin.Context) {
	actingID, _ := auth.UserID(c)
	targetID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	if err := h.rooms.Kick(c.Request.Context(), targetID, actingID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
