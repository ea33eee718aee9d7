package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/room-server/internal/errors"
	"github.com/wfunc/room-server/internal/repository"
	"github.com/wfunc/room-server/internal/room"
	"github.com/wfunc/room-server/internal/service"
	ws "github.com/wfunc/room-server/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APITestSuite 完整API集成测试套件
// 使用内存sqlite后端把整条链路（路由->中间件->服务->仓储）走一遍。
type APITestSuite struct {
	suite.Suite
	db     *gorm.DB
	router *Router
}

func (suite *APITestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	suite.db = repository.SetupTestDB()
	repo := repository.NewRoomRepository(suite.db)
	services := service.NewServices(repo, service.DefaultConfig(), zap.NewNop())
	hub := ws.NewHub(zap.NewNop())
	suite.router = NewRouter(suite.db, services, hub, zap.NewNop())
}

func (suite *APITestSuite) TearDownTest() {
	repository.CleanupTestDB(suite.db)
}

// request 发送请求并返回响应
func (suite *APITestSuite) request(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		suite.Require().NoError(err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	suite.router.GetEngine().ServeHTTP(w, req)
	return w
}

// login 访客登录，返回认证响应
func (suite *APITestSuite) login(name string) *service.AuthResponse {
	w := suite.request("POST", "/api/v1/auth/guest", "", service.GuestLoginRequest{Name: name})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp service.AuthResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

// decodeRoom 解析房间响应
func (suite *APITestSuite) decodeRoom(w *httptest.ResponseRecorder) *room.Room {
	var resp RoomResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Room
}

// decodeError 解析错误响应
func (suite *APITestSuite) decodeError(w *httptest.ResponseRecorder) *ErrorResponse {
	var resp ErrorResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

// 测试健康检查
func (suite *APITestSuite) TestHealthCheck() {
	w := suite.request("GET", "/health", "", nil)
	suite.Equal(http.StatusOK, w.Code)
}

// 测试访客登录和令牌刷新
func (suite *APITestSuite) TestGuestLoginAndRefresh() {
	auth := suite.login("Alice")
	suite.NotEmpty(auth.PlayerID)
	suite.Equal("Alice", auth.Name)
	suite.NotEmpty(auth.AccessToken)

	w := suite.request("POST", "/api/v1/auth/refresh", "",
		RefreshTokenRequest{RefreshToken: auth.RefreshToken})
	suite.Equal(http.StatusOK, w.Code)

	var refreshed service.AuthResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &refreshed))
	suite.Equal(auth.PlayerID, refreshed.PlayerID)
}

// 测试未认证请求被拒绝
func (suite *APITestSuite) TestRequiresAuth() {
	w := suite.request("POST", "/api/v1/rooms", "", service.CreateRoomRequest{GameID: "game-1"})
	suite.Equal(http.StatusUnauthorized, w.Code)

	w = suite.request("GET", "/api/v1/rooms", "invalid-token", nil)
	suite.Equal(http.StatusUnauthorized, w.Code)
}

// 测试完整房间生命周期
func (suite *APITestSuite) TestRoomLifecycle() {
	alice := suite.login("Alice")
	bob := suite.login("Bob")

	// alice 创建房间
	w := suite.request("POST", "/api/v1/rooms", alice.AccessToken,
		service.CreateRoomRequest{GameID: "game-1", MaxPlayers: 4})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	r := suite.decodeRoom(w)
	suite.Equal(alice.PlayerID, r.HostID)
	suite.Equal(1, r.PlayerCount)
	roomID := r.RoomID

	// bob 加入
	w = suite.request("POST", "/api/v1/rooms/"+roomID+"/join", bob.AccessToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	r = suite.decodeRoom(w)
	suite.Equal(2, r.PlayerCount)

	// bob 不能开始游戏
	w = suite.request("POST", "/api/v1/rooms/"+roomID+"/start", bob.AccessToken, nil)
	suite.Equal(http.StatusForbidden, w.Code)
	suite.Equal(int(errors.ErrNotHost), suite.decodeError(w).Code)

	// alice 开始游戏
	w = suite.request("POST", "/api/v1/rooms/"+roomID+"/start", alice.AccessToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	r = suite.decodeRoom(w)
	suite.Equal(room.StatusPlaying, r.Status)

	// 游戏中更新位置
	pos := room.Position{X: 3, Y: 0, Z: 4}
	w = suite.request("PUT", "/api/v1/rooms/"+roomID+"/player", bob.AccessToken,
		service.PlayerPatch{Position: &pos})
	suite.Require().Equal(http.StatusOK, w.Code)
	r = suite.decodeRoom(w)
	p, _ := r.FindPlayer(bob.PlayerID)
	suite.Require().NotNil(p)
	suite.Equal(pos, p.Position)

	// 游戏中不能再加入
	carol := suite.login("Carol")
	w = suite.request("POST", "/api/v1/rooms/"+roomID+"/join", carol.AccessToken, nil)
	suite.Equal(http.StatusConflict, w.Code)
	suite.Equal(int(errors.ErrNotInLobby), suite.decodeError(w).Code)

	// alice 结束游戏
	w = suite.request("POST", "/api/v1/rooms/"+roomID+"/finish", alice.AccessToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	r = suite.decodeRoom(w)
	suite.Equal(room.StatusCompleted, r.Status)
	suite.NotNil(r.FinishedAt)
}

// 测试重复加入和满房
func (suite *APITestSuite) TestJoinConflicts() {
	alice := suite.login("Alice")
	w := suite.request("POST", "/api/v1/rooms", alice.AccessToken,
		service.CreateRoomRequest{GameID: "game-1", MaxPlayers: 2})
	suite.Require().Equal(http.StatusOK, w.Code)
	roomID := suite.decodeRoom(w).RoomID

	// 房主重复加入
	w = suite.request("POST", "/api/v1/rooms/"+roomID+"/join", alice.AccessToken, nil)
	suite.Equal(http.StatusConflict, w.Code)
	suite.Equal(int(errors.ErrDuplicatePlayer), suite.decodeError(w).Code)

	// 填满房间
	bob := suite.login("Bob")
	w = suite.request("POST", "/api/v1/rooms/"+roomID+"/join", bob.AccessToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	carol := suite.login("Carol")
	w = suite.request("POST", "/api/v1/rooms/"+roomID+"/join", carol.AccessToken, nil)
	suite.Equal(http.StatusConflict, w.Code)
	suite.Equal(int(errors.ErrRoomFull), suite.decodeError(w).Code)
}

// 测试离开房间保留槽位
func (suite *APITestSuite) TestLeaveRoom() {
	alice := suite.login("Alice")
	bob := suite.login("Bob")

	w := suite.request("POST", "/api/v1/rooms", alice.AccessToken,
		service.CreateRoomRequest{GameID: "game-1", MaxPlayers: 4})
	suite.Require().Equal(http.StatusOK, w.Code)
	roomID := suite.decodeRoom(w).RoomID

	w = suite.request("POST", "/api/v1/rooms/"+roomID+"/join", bob.AccessToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	w = suite.request("POST", "/api/v1/rooms/"+roomID+"/leave", bob.AccessToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	r := suite.decodeRoom(w)

	p, idx := r.FindPlayer(bob.PlayerID)
	suite.Require().NotNil(p)
	suite.Equal(1, idx)
	suite.False(p.Connected)
	suite.Equal(2, r.PlayerCount)
}

// 测试查询和列表
func (suite *APITestSuite) TestGetAndList() {
	alice := suite.login("Alice")

	for i := 0; i < 3; i++ {
		w := suite.request("POST", "/api/v1/rooms", alice.AccessToken,
			service.CreateRoomRequest{RoomID: fmt.Sprintf("room-%d", i), GameID: "game-1"})
		suite.Require().Equal(http.StatusOK, w.Code)
	}

	// 单个查询
	w := suite.request("GET", "/api/v1/rooms/room-0", alice.AccessToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Equal("room-0", suite.decodeRoom(w).RoomID)

	// 不存在的房间
	w = suite.request("GET", "/api/v1/rooms/missing", alice.AccessToken, nil)
	suite.Equal(http.StatusNotFound, w.Code)

	// 列表
	w = suite.request("GET", "/api/v1/rooms?status=0&page=1&page_size=10", alice.AccessToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var list RoomListResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &list))
	suite.Len(list.Rooms, 3)
	suite.Equal(int64(3), list.Total)

	// 无效状态过滤
	w = suite.request("GET", "/api/v1/rooms?status=9", alice.AccessToken, nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}

// 测试参数校验
func (suite *APITestSuite) TestValidation() {
	alice := suite.login("Alice")

	// 缺少game_id
	w := suite.request("POST", "/api/v1/rooms", alice.AccessToken, map[string]interface{}{})
	suite.Equal(http.StatusBadRequest, w.Code)

	// 超过容量上限
	w = suite.request("POST", "/api/v1/rooms", alice.AccessToken,
		service.CreateRoomRequest{GameID: "game-1", MaxPlayers: 99})
	suite.Equal(http.StatusBadRequest, w.Code)

	// 访客登录缺少名字
	w = suite.request("POST", "/api/v1/auth/guest", "", map[string]string{})
	suite.Equal(http.StatusBadRequest, w.Code)
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
