package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/wfunc/room-server/internal/errors"
	"github.com/wfunc/room-server/internal/repository"
	"github.com/wfunc/room-server/internal/room"
	"github.com/wfunc/room-server/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RoomHandlerTestSuite 房间消息处理器测试套件
// 不启动真实的WebSocket连接，直接注册客户端并投递消息，
// 从发送通道读取广播结果。
type RoomHandlerTestSuite struct {
	suite.Suite
	db      *gorm.DB
	hub     *Hub
	svc     service.RoomService
	handler *RoomMessageHandler
	ctx     context.Context
}

func (suite *RoomHandlerTestSuite) SetupTest() {
	suite.db = repository.SetupTestDB()
	repo := repository.NewRoomRepository(suite.db)
	suite.svc = service.NewRoomService(repo, service.DefaultConfig(), zap.NewNop())
	suite.hub = NewHub(zap.NewNop())
	suite.handler = NewRoomMessageHandler(suite.svc, suite.hub, zap.NewNop())
	suite.ctx = context.Background()
}

func (suite *RoomHandlerTestSuite) TearDownTest() {
	repository.CleanupTestDB(suite.db)
}

// newClient 注册一个没有底层连接的测试客户端
func (suite *RoomHandlerTestSuite) newClient(playerID, name string) *Client {
	client := NewClient(suite.hub, nil, playerID, name, "#ffffff")
	suite.hub.registerClient(client)
	suite.drain(client)
	return client
}

// createRoom 通过服务直接创建房间
func (suite *RoomHandlerTestSuite) createRoom(hostID string) *room.Room {
	r, err := suite.svc.CreateRoom(suite.ctx, room.PlayerProfile{ID: hostID, Name: hostID},
		&service.CreateRoomRequest{GameID: "game-1", MaxPlayers: 4})
	suite.Require().NoError(err)
	return r
}

// send 向处理器投递一条客户端消息
func (suite *RoomHandlerTestSuite) send(client *Client, msgType string, payload interface{}) {
	var data json.RawMessage
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		suite.Require().NoError(err)
	}
	raw, err := json.Marshal(&Message{Type: msgType, Data: data})
	suite.Require().NoError(err)
	suite.handler.HandleClientMessage(client, raw)
}

// drain 读空客户端发送通道，返回所有消息
func (suite *RoomHandlerTestSuite) drain(client *Client) []*Message {
	var msgs []*Message
	for {
		select {
		case data := <-client.Send:
			var msg Message
			suite.Require().NoError(json.Unmarshal(data, &msg))
			msgs = append(msgs, &msg)
		default:
			return msgs
		}
	}
}

// lastOfType 返回通道中最后一条指定类型的消息
func (suite *RoomHandlerTestSuite) lastOfType(client *Client, msgType string) *Message {
	var found *Message
	for _, msg := range suite.drain(client) {
		if msg.Type == msgType {
			found = msg
		}
	}
	return found
}

// roomState 解析房间快照消息
func (suite *RoomHandlerTestSuite) roomState(msg *Message) *room.Room {
	suite.Require().NotNil(msg)
	var payload RoomStatePayload
	suite.Require().NoError(json.Unmarshal(msg.Data, &payload))
	return payload.Room
}

// 测试加入房间并收到快照广播
func (suite *RoomHandlerTestSuite) TestJoinRoom() {
	r := suite.createRoom("alice")
	bob := suite.newClient("bob", "Bob")

	suite.send(bob, MessageTypeJoinRoom, JoinRoomPayload{RoomID: r.RoomID})

	suite.Equal(r.RoomID, bob.RoomID)
	suite.Equal(1, suite.hub.GetRoomOnlineCount(r.RoomID))

	state := suite.roomState(suite.lastOfType(bob, MessageTypeRoomState))
	suite.Equal(2, state.PlayerCount)
	p, idx := state.FindPlayer("bob")
	suite.Require().NotNil(p)
	suite.Equal(1, idx)
	suite.True(p.Connected)
}

// 测试加入不存在的房间
func (suite *RoomHandlerTestSuite) TestJoinRoomNotFound() {
	bob := suite.newClient("bob", "Bob")

	suite.send(bob, MessageTypeJoinRoom, JoinRoomPayload{RoomID: "missing"})

	errMsg := suite.lastOfType(bob, MessageTypeError)
	suite.Require().NotNil(errMsg)
	var payload ErrorPayload
	suite.Require().NoError(json.Unmarshal(errMsg.Data, &payload))
	suite.Equal(int(errors.ErrRoomNotFound), payload.Code)
	suite.Empty(bob.RoomID)
}

// 测试状态更新广播给房间内所有客户端
func (suite *RoomHandlerTestSuite) TestUpdatePlayerBroadcast() {
	r := suite.createRoom("alice")
	aliceClient := suite.newClient("alice", "Alice")
	bobClient := suite.newClient("bob", "Bob")

	// alice 作为房主重连进入房间，bob 加入
	suite.send(aliceClient, MessageTypeJoinRoom, JoinRoomPayload{RoomID: r.RoomID})
	suite.send(bobClient, MessageTypeJoinRoom, JoinRoomPayload{RoomID: r.RoomID})
	suite.drain(aliceClient)
	suite.drain(bobClient)

	pos := room.Position{X: 1.5, Y: 0, Z: -2.5}
	suite.send(bobClient, MessageTypeUpdatePlayer, UpdatePlayerPayload{Position: &pos})

	// 两个客户端都收到快照
	for _, client := range []*Client{aliceClient, bobClient} {
		state := suite.roomState(suite.lastOfType(client, MessageTypeRoomState))
		p, _ := state.FindPlayer("bob")
		suite.Require().NotNil(p)
		suite.Equal(pos, p.Position)
	}
}

// 测试房主已在房间时加入按重连处理
func (suite *RoomHandlerTestSuite) TestJoinRoomReconnect() {
	r := suite.createRoom("alice")

	// 先把 alice 标记为离线
	_, err := suite.svc.LeaveRoom(suite.ctx, r.RoomID, "alice")
	suite.Require().NoError(err)

	aliceClient := suite.newClient("alice", "Alice")
	suite.send(aliceClient, MessageTypeJoinRoom, JoinRoomPayload{RoomID: r.RoomID})

	state := suite.roomState(suite.lastOfType(aliceClient, MessageTypeRoomState))
	suite.Equal(1, state.PlayerCount)
	p, _ := state.FindPlayer("alice")
	suite.Require().NotNil(p)
	suite.True(p.Connected)
	suite.True(p.IsHost)
}

// 测试非房主开始游戏被拒绝
func (suite *RoomHandlerTestSuite) TestStartGameNotHost() {
	r := suite.createRoom("alice")
	bob := suite.newClient("bob", "Bob")
	suite.send(bob, MessageTypeJoinRoom, JoinRoomPayload{RoomID: r.RoomID})
	suite.drain(bob)

	suite.send(bob, MessageTypeStartGame, nil)

	errMsg := suite.lastOfType(bob, MessageTypeError)
	suite.Require().NotNil(errMsg)
	var payload ErrorPayload
	suite.Require().NoError(json.Unmarshal(errMsg.Data, &payload))
	suite.Equal(int(errors.ErrNotHost), payload.Code)
}

// 测试房主通过WebSocket走完生命周期
func (suite *RoomHandlerTestSuite) TestHostLifecycle() {
	r := suite.createRoom("alice")
	aliceClient := suite.newClient("alice", "Alice")
	suite.send(aliceClient, MessageTypeJoinRoom, JoinRoomPayload{RoomID: r.RoomID})
	suite.drain(aliceClient)

	suite.send(aliceClient, MessageTypeStartGame, nil)
	state := suite.roomState(suite.lastOfType(aliceClient, MessageTypeRoomState))
	suite.Equal(room.StatusPlaying, state.Status)

	suite.send(aliceClient, MessageTypeFinishGame, nil)
	state = suite.roomState(suite.lastOfType(aliceClient, MessageTypeRoomState))
	suite.Equal(room.StatusCompleted, state.Status)
	suite.NotNil(state.FinishedAt)
}

// 测试断线把玩家标记为离线并广播
func (suite *RoomHandlerTestSuite) TestDisconnectMarksOffline() {
	r := suite.createRoom("alice")
	aliceClient := suite.newClient("alice", "Alice")
	bobClient := suite.newClient("bob", "Bob")
	suite.send(aliceClient, MessageTypeJoinRoom, JoinRoomPayload{RoomID: r.RoomID})
	suite.send(bobClient, MessageTypeJoinRoom, JoinRoomPayload{RoomID: r.RoomID})
	suite.drain(aliceClient)
	suite.drain(bobClient)

	// bob 断开
	suite.hub.unregisterClient(bobClient)

	state := suite.roomState(suite.lastOfType(aliceClient, MessageTypeRoomState))
	p, idx := state.FindPlayer("bob")
	suite.Require().NotNil(p)
	suite.Equal(1, idx) // 槽位保留
	suite.False(p.Connected)
	suite.Equal(2, state.PlayerCount)
}

// 测试主动离开房间后不再收到广播
func (suite *RoomHandlerTestSuite) TestLeaveRoomUnsubscribes() {
	r := suite.createRoom("alice")
	aliceClient := suite.newClient("alice", "Alice")
	bobClient := suite.newClient("bob", "Bob")
	suite.send(aliceClient, MessageTypeJoinRoom, JoinRoomPayload{RoomID: r.RoomID})
	suite.send(bobClient, MessageTypeJoinRoom, JoinRoomPayload{RoomID: r.RoomID})
	suite.drain(aliceClient)
	suite.drain(bobClient)

	suite.send(bobClient, MessageTypeLeaveRoom, nil)
	suite.Empty(bobClient.RoomID)
	suite.Equal(1, suite.hub.GetRoomOnlineCount(r.RoomID))
	suite.drain(bobClient)

	// 之后的变更 bob 不再收到
	ready := true
	suite.send(aliceClient, MessageTypeUpdatePlayer, UpdatePlayerPayload{Ready: &ready})
	suite.Nil(suite.lastOfType(bobClient, MessageTypeRoomState))
	suite.NotNil(suite.lastOfType(aliceClient, MessageTypeRoomState))
}

// 测试未加入房间时的操作被拒绝
func (suite *RoomHandlerTestSuite) TestOperationsRequireRoom() {
	client := suite.newClient("carol", "Carol")

	for _, msgType := range []string{
		MessageTypeLeaveRoom,
		MessageTypeStartGame,
		MessageTypeFinishGame,
		MessageTypeRoomState,
	} {
		suite.send(client, msgType, nil)
		errMsg := suite.lastOfType(client, MessageTypeError)
		suite.NotNil(errMsg, fmt.Sprintf("expected error for %s", msgType))
	}
}

// 测试心跳
func (suite *RoomHandlerTestSuite) TestPing() {
	client := suite.newClient("carol", "Carol")
	suite.send(client, MessageTypePing, nil)
	suite.NotNil(suite.lastOfType(client, MessageTypePong))
}

func TestRoomHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(RoomHandlerTestSuite))
}
