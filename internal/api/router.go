package api

import (
	"github.com/gin-gonic/gin"
	"github.com/wfunc/room-server/internal/middleware"
	"github.com/wfunc/room-server/internal/service"
	ws "github.com/wfunc/room-server/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router API路由器
type Router struct {
	engine         *gin.Engine
	db             *gorm.DB
	services       *service.Services
	authHandler    *AuthHandler
	roomHandler    *RoomHandler
	wsHandler      *WebSocketHandler
	authMiddleware *middleware.AuthMiddleware
	log            *zap.Logger
}

// NewRouter 创建路由器
// db 仅用于健康检查，使用Redis存储后端时可传nil。
func NewRouter(db *gorm.DB, services *service.Services, hub *ws.Hub, log *zap.Logger) *Router {
	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	router := &Router{
		engine:         engine,
		db:             db,
		services:       services,
		authHandler:    NewAuthHandler(services.Auth),
		roomHandler:    NewRoomHandler(services.Room),
		wsHandler:      NewWebSocketHandler(hub, log),
		authMiddleware: middleware.NewAuthMiddleware(services.Auth),
		log:            log,
	}

	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		// 认证相关路由（不需要认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/guest", r.authHandler.GuestLogin)
			auth.POST("/refresh", r.authHandler.RefreshToken)
		}

		// 房间相关路由（需要认证）
		rooms := v1.Group("/rooms")
		rooms.Use(r.authMiddleware.RequireAuth())
		{
			rooms.POST("", r.roomHandler.CreateRoom)
			rooms.GET("", r.roomHandler.ListRooms)
			rooms.GET("/:room_id", r.roomHandler.GetRoom)
			rooms.POST("/:room_id/join", r.roomHandler.JoinRoom)
			rooms.POST("/:room_id/start", r.roomHandler.StartGame)
			rooms.POST("/:room_id/finish", r.roomHandler.FinishGame)
			rooms.POST("/:room_id/leave", r.roomHandler.LeaveRoom)
			rooms.PUT("/:room_id/player", r.roomHandler.UpdatePlayer)
		}

		// 在线统计
		v1.GET("/online", r.wsHandler.GetOnlineCount)
	}

	// WebSocket路由，令牌通过query参数传递
	ws := r.engine.Group("/ws")
	ws.Use(r.authMiddleware.RequireAuth())
	{
		ws.GET("", r.wsHandler.RoomWebSocket)
	}

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	if r.db != nil {
		sqlDB, err := r.db.DB()
		if err != nil {
			c.JSON(500, gin.H{
				"status":  "unhealthy",
				"message": "数据库连接失败",
			})
			return
		}

		if err := sqlDB.Ping(); err != nil {
			c.JSON(500, gin.H{
				"status":  "unhealthy",
				"message": "数据库ping失败",
			})
			return
		}
	}

	c.JSON(200, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	})
}

// Run 运行服务器
func (r *Router) Run(addr string) error {
	r.log.Info("Starting API server", zap.String("address", addr))
	return r.engine.Run(addr)
}

// GetEngine 获取Gin引擎（用于测试和优雅关闭）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
