package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/room-server/internal/errors"
	"github.com/wfunc/room-server/internal/middleware"
	"github.com/wfunc/room-server/internal/room"
	"github.com/wfunc/room-server/internal/service"
)

// RoomHandler 房间处理器
// 操作者身份一律取自认证中间件写入的上下文，请求体中
// 不接受玩家ID，防止越权操作他人状态。
type RoomHandler struct {
	roomService service.RoomService
}

// NewRoomHandler 创建房间处理器
func NewRoomHandler(roomService service.RoomService) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
	}
}

// RoomResponse 房间响应
type RoomResponse struct {
	Room *room.Room `json:"room"`
}

// RoomListResponse 房间列表响应
type RoomListResponse struct {
	Rooms []*room.Room `json:"rooms"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
}

// CreateRoom 创建房间
// @Summary 创建房间
// @Description 创建一个新房间，当前玩家成为房主并占据0号槽位
// @Tags Room
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body service.CreateRoomRequest true "房间参数"
// @Success 200 {object} RoomResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/rooms [post]
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	host, ok := middleware.GetPlayerProfile(c)
	if !ok {
		respondError(c, errors.New(errors.ErrAuthentication, "缺少玩家身份"))
		return
	}

	var req service.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	r, err := h.roomService.CreateRoom(c.Request.Context(), host, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RoomResponse{Room: r})
}

// ListRooms 房间列表
// @Summary 房间列表
// @Description 分页查询房间，可按状态过滤
// @Tags Room
// @Security Bearer
// @Produce json
// @Param status query int false "房间状态 0=大厅 1=游戏中 2=已结束"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} RoomListResponse
// @Router /api/v1/rooms [get]
func (h *RoomHandler) ListRooms(c *gin.Context) {
	var status *room.Status
	if s := c.Query("status"); s != "" {
		v, err := strconv.ParseUint(s, 10, 8)
		if err != nil || v > uint64(room.StatusCompleted) {
			respondError(c, errors.Newf(errors.ErrInvalidParam, "无效的房间状态: %s", s))
			return
		}
		st := room.Status(v)
		status = &st
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	rooms, total, err := h.roomService.ListRooms(c.Request.Context(), status, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RoomListResponse{
		Rooms: rooms,
		Total: total,
		Page:  page,
	})
}

// GetRoom 查询房间
// @Summary 查询房间
// @Description 按房间ID查询完整的房间状态
// @Tags Room
// @Security Bearer
// @Produce json
// @Param room_id path string true "房间ID"
// @Success 200 {object} RoomResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rooms/{room_id} [get]
func (h *RoomHandler) GetRoom(c *gin.Context) {
	r, err := h.roomService.GetRoom(c.Request.Context(), c.Param("room_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RoomResponse{Room: r})
}

// JoinRoom 加入房间
// @Summary 加入房间
// @Description 当前玩家加入房间，占据最小的空槽位
// @Tags Room
// @Security Bearer
// @Produce json
// @Param room_id path string true "房间ID"
// @Success 200 {object} RoomResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/rooms/{room_id}/join [post]
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	player, ok := middleware.GetPlayerProfile(c)
	if !ok {
		respondError(c, errors.New(errors.ErrAuthentication, "缺少玩家身份"))
		return
	}

	r, err := h.roomService.JoinRoom(c.Request.Context(), c.Param("room_id"), player)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RoomResponse{Room: r})
}

// StartGame 开始游戏
// @Summary 开始游戏
// @Description 房主把房间从大厅转入游戏中状态
// @Tags Room
// @Security Bearer
// @Produce json
// @Param room_id path string true "房间ID"
// @Success 200 {object} RoomResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/rooms/{room_id}/start [post]
func (h *RoomHandler) StartGame(c *gin.Context) {
	playerID, ok := middleware.GetPlayerID(c)
	if !ok {
		respondError(c, errors.New(errors.ErrAuthentication, "缺少玩家身份"))
		return
	}

	r, err := h.roomService.StartGame(c.Request.Context(), c.Param("room_id"), playerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RoomResponse{Room: r})
}

// FinishGame 结束游戏
// @Summary 结束游戏
// @Description 房主把房间从游戏中转入已结束状态
// @Tags Room
// @Security Bearer
// @Produce json
// @Param room_id path string true "房间ID"
// @Success 200 {object} RoomResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/rooms/{room_id}/finish [post]
func (h *RoomHandler) FinishGame(c *gin.Context) {
	playerID, ok := middleware.GetPlayerID(c)
	if !ok {
		respondError(c, errors.New(errors.ErrAuthentication, "缺少玩家身份"))
		return
	}

	r, err := h.roomService.FinishGame(c.Request.Context(), c.Param("room_id"), playerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RoomResponse{Room: r})
}

// UpdatePlayer 更新玩家状态
// @Summary 更新玩家状态
// @Description 稀疏更新当前玩家的位置、朝向、动画等字段
// @Tags Room
// @Security Bearer
// @Accept json
// @Produce json
// @Param room_id path string true "房间ID"
// @Param request body service.PlayerPatch true "要更新的字段"
// @Success 200 {object} RoomResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rooms/{room_id}/player [put]
func (h *RoomHandler) UpdatePlayer(c *gin.Context) {
	playerID, ok := middleware.GetPlayerID(c)
	if !ok {
		respondError(c, errors.New(errors.ErrAuthentication, "缺少玩家身份"))
		return
	}

	var patch service.PlayerPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondBadRequest(c, err)
		return
	}

	r, err := h.roomService.UpdatePlayer(c.Request.Context(), c.Param("room_id"), playerID, &patch)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RoomResponse{Room: r})
}

// LeaveRoom 离开房间
// @Summary 离开房间
// @Description 当前玩家标记为离线，槽位保留以便重连
// @Tags Room
// @Security Bearer
// @Produce json
// @Param room_id path string true "房间ID"
// @Success 200 {object} RoomResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rooms/{room_id}/leave [post]
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	playerID, ok := middleware.GetPlayerID(c)
	if !ok {
		respondError(c, errors.New(errors.ErrAuthentication, "缺少玩家身份"))
		return
	}

	r, err := h.roomService.LeaveRoom(c.Request.Context(), c.Param("room_id"), playerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RoomResponse{Room: r})
}
