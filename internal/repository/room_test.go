package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/wfunc/room-server/internal/errors"
	"github.com/wfunc/room-server/internal/room"
	"gorm.io/gorm"
)

// RoomRepositoryTestSuite 房间仓储测试套件
type RoomRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo RoomRepository
	ctx  context.Context
}

// SetupTest 每个测试前重建数据库
func (suite *RoomRepositoryTestSuite) SetupTest() {
	suite.db = SetupTestDB()
	suite.repo = NewRoomRepository(suite.db)
	suite.ctx = context.Background()
}

// TearDownTest 清理数据库
func (suite *RoomRepositoryTestSuite) TearDownTest() {
	CleanupTestDB(suite.db)
}

// newRoom 创建一个测试房间状态
func (suite *RoomRepositoryTestSuite) newRoom(roomID string) *room.Room {
	r, err := room.CreateRoom(room.CreateRoomArgs{
		RoomID:     roomID,
		GameID:     "game-1",
		Host:       room.PlayerProfile{ID: "alice", Name: "Alice", Color: "#ff0000"},
		MaxPlayers: 4,
		Timestamp:  1700000000,
	})
	suite.Require().NoError(err)
	return r
}

// 测试创建和加载
func (suite *RoomRepositoryTestSuite) TestCreateAndGet() {
	r := suite.newRoom("room-1")

	version, err := suite.repo.Create(suite.ctx, r)
	suite.Require().NoError(err)
	suite.Equal(uint64(1), version)

	loaded, loadedVersion, err := suite.repo.Get(suite.ctx, "room-1")
	suite.Require().NoError(err)
	suite.Equal(uint64(1), loadedVersion)
	suite.Equal(r.RoomID, loaded.RoomID)
	suite.Equal(r.GameID, loaded.GameID)
	suite.Equal(room.StatusLobby, loaded.Status)
	suite.Equal(1, loaded.PlayerCount)
	suite.Require().Len(loaded.Players, 4)

	// 玩家槽位完整还原，包括空槽
	suite.Require().NotNil(loaded.Players[0])
	suite.Equal("alice", loaded.Players[0].ID)
	suite.True(loaded.Players[0].IsHost)
	suite.Equal(room.IdentityRotation(), loaded.Players[0].Rotation)
	suite.Nil(loaded.Players[1])
	suite.NoError(loaded.Validate())
}

// 测试房间ID冲突
func (suite *RoomRepositoryTestSuite) TestCreateDuplicate() {
	r := suite.newRoom("room-1")

	_, err := suite.repo.Create(suite.ctx, r)
	suite.Require().NoError(err)

	_, err = suite.repo.Create(suite.ctx, r)
	suite.True(errors.Is(err, errors.ErrRoomExists))
}

// 测试加载不存在的房间
func (suite *RoomRepositoryTestSuite) TestGetNotFound() {
	_, _, err := suite.repo.Get(suite.ctx, "missing")
	suite.True(errors.Is(err, errors.ErrRoomNotFound))
}

// 测试提交递增版本号
func (suite *RoomRepositoryTestSuite) TestCommit() {
	r := suite.newRoom("room-1")
	version, err := suite.repo.Create(suite.ctx, r)
	suite.Require().NoError(err)

	next, err := room.JoinRoom(r, room.JoinRoomArgs{
		Player:    room.PlayerProfile{ID: "bob", Name: "Bob"},
		Timestamp: 1700000001,
	})
	suite.Require().NoError(err)

	newVersion, err := suite.repo.Commit(suite.ctx, "room-1", version, next)
	suite.Require().NoError(err)
	suite.Equal(uint64(2), newVersion)

	loaded, loadedVersion, err := suite.repo.Get(suite.ctx, "room-1")
	suite.Require().NoError(err)
	suite.Equal(uint64(2), loadedVersion)
	suite.Equal(2, loaded.PlayerCount)
	p, idx := loaded.FindPlayer("bob")
	suite.Require().NotNil(p)
	suite.Equal(1, idx)
}

// 测试过期版本提交被拒绝
func (suite *RoomRepositoryTestSuite) TestCommitVersionConflict() {
	r := suite.newRoom("room-1")
	version, err := suite.repo.Create(suite.ctx, r)
	suite.Require().NoError(err)

	// 两个调用方基于同一版本各自计算出新状态
	nextA, err := room.JoinRoom(r, room.JoinRoomArgs{
		Player: room.PlayerProfile{ID: "bob"}, Timestamp: 1700000001,
	})
	suite.Require().NoError(err)
	nextB, err := room.JoinRoom(r, room.JoinRoomArgs{
		Player: room.PlayerProfile{ID: "carol"}, Timestamp: 1700000001,
	})
	suite.Require().NoError(err)

	// 第一个提交成功
	_, err = suite.repo.Commit(suite.ctx, "room-1", version, nextA)
	suite.Require().NoError(err)

	// 第二个提交携带过期版本号，失败且不覆盖
	_, err = suite.repo.Commit(suite.ctx, "room-1", version, nextB)
	suite.True(errors.Is(err, errors.ErrVersionConflict))

	loaded, loadedVersion, err := suite.repo.Get(suite.ctx, "room-1")
	suite.Require().NoError(err)
	suite.Equal(uint64(2), loadedVersion)
	p, _ := loaded.FindPlayer("bob")
	suite.NotNil(p)
	p, _ = loaded.FindPlayer("carol")
	suite.Nil(p)
	suite.NoError(loaded.Validate())
}

// 测试提交到不存在的房间
func (suite *RoomRepositoryTestSuite) TestCommitNotFound() {
	r := suite.newRoom("room-1")
	_, err := suite.repo.Commit(suite.ctx, "room-1", 1, r)
	suite.True(errors.Is(err, errors.ErrRoomNotFound))
}

// 测试状态转换的持久化
func (suite *RoomRepositoryTestSuite) TestCommitStatusTransition() {
	r := suite.newRoom("room-1")
	version, err := suite.repo.Create(suite.ctx, r)
	suite.Require().NoError(err)

	started, err := room.StartGame(r, room.StartGameArgs{ActingPlayerID: "alice", Timestamp: 1700000100})
	suite.Require().NoError(err)
	version, err = suite.repo.Commit(suite.ctx, "room-1", version, started)
	suite.Require().NoError(err)

	loaded, _, err := suite.repo.Get(suite.ctx, "room-1")
	suite.Require().NoError(err)
	suite.Equal(room.StatusPlaying, loaded.Status)
	suite.Require().NotNil(loaded.StartedAt)
	suite.Equal(int64(1700000100), *loaded.StartedAt)

	finished, err := room.FinishGame(loaded, room.FinishGameArgs{ActingPlayerID: "alice", Timestamp: 1700000200})
	suite.Require().NoError(err)
	_, err = suite.repo.Commit(suite.ctx, "room-1", version, finished)
	suite.Require().NoError(err)

	loaded, _, err = suite.repo.Get(suite.ctx, "room-1")
	suite.Require().NoError(err)
	suite.Equal(room.StatusCompleted, loaded.Status)
	suite.Require().NotNil(loaded.FinishedAt)
	suite.NoError(loaded.Validate())
}

// 测试删除
func (suite *RoomRepositoryTestSuite) TestDelete() {
	r := suite.newRoom("room-1")
	_, err := suite.repo.Create(suite.ctx, r)
	suite.Require().NoError(err)

	suite.NoError(suite.repo.Delete(suite.ctx, "room-1"))

	_, _, err = suite.repo.Get(suite.ctx, "room-1")
	suite.True(errors.Is(err, errors.ErrRoomNotFound))

	suite.True(errors.Is(suite.repo.Delete(suite.ctx, "room-1"), errors.ErrRoomNotFound))
}

// 测试列表查询和状态过滤
func (suite *RoomRepositoryTestSuite) TestList() {
	for i := 0; i < 5; i++ {
		r := suite.newRoom(fmt.Sprintf("room-%d", i))
		r.CreatedAt = int64(1700000000 + i)
		version, err := suite.repo.Create(suite.ctx, r)
		suite.Require().NoError(err)

		// 偶数房间进入游戏状态
		if i%2 == 0 {
			started, err := room.StartGame(r, room.StartGameArgs{ActingPlayerID: "alice", Timestamp: r.CreatedAt + 10})
			suite.Require().NoError(err)
			_, err = suite.repo.Commit(suite.ctx, r.RoomID, version, started)
			suite.Require().NoError(err)
		}
	}

	// 全部房间
	p := NewPagination(1, 10)
	rooms, err := suite.repo.List(suite.ctx, nil, p)
	suite.Require().NoError(err)
	suite.Len(rooms, 5)
	suite.Equal(int64(5), p.Total)

	// 只看大厅状态
	lobby := room.StatusLobby
	p = NewPagination(1, 10)
	rooms, err = suite.repo.List(suite.ctx, &lobby, p)
	suite.Require().NoError(err)
	suite.Len(rooms, 2)
	for _, r := range rooms {
		suite.Equal(room.StatusLobby, r.Status)
	}

	// 分页
	p = NewPagination(2, 2)
	rooms, err = suite.repo.List(suite.ctx, nil, p)
	suite.Require().NoError(err)
	suite.Len(rooms, 2)
	suite.Equal(int64(5), p.Total)
}

// TestRoomRepositoryTestSuite 运行测试套件
func TestRoomRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RoomRepositoryTestSuite))
}
