package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/wfunc/room-server/internal/api"
	"github.com/wfunc/room-server/internal/config"
	"github.com/wfunc/room-server/internal/database"
	"github.com/wfunc/room-server/internal/errors"
	"github.com/wfunc/room-server/internal/logger"
	"github.com/wfunc/room-server/internal/repository"
	"github.com/wfunc/room-server/internal/service"
	ws "github.com/wfunc/room-server/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db         *gorm.DB
	rds        *goredis.Client
	roomRepo   repository.RoomRepository
	services   *service.Services
	hub        *ws.Hub
	httpServer *http.Server

	// 关闭控制
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	printStartInfo(cfg)

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动房间服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
		zap.String("store", s.cfg.Room.Store),
	)

	if err := s.initStore(); err != nil {
		return err
	}

	s.initServices()

	if err := s.startHTTPServer(); err != nil {
		return err
	}

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.cfg = newCfg
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)),
	)

	return nil
}

// initStore 初始化房间存储后端
func (s *Server) initStore() error {
	switch s.cfg.Room.Store {
	case "redis":
		s.logger.Info("初始化Redis存储...", zap.String("addr", s.cfg.Redis.Addr))

		s.rds = goredis.NewClient(&goredis.Options{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			PoolSize:     s.cfg.Redis.PoolSize,
			DialTimeout:  s.cfg.Redis.DialTimeout,
			ReadTimeout:  s.cfg.Redis.ReadTimeout,
			WriteTimeout: s.cfg.Redis.WriteTimeout,
		})

		pingCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		defer cancel()
		if err := s.rds.Ping(pingCtx).Err(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "Redis连接失败")
		}

		s.roomRepo = repository.NewRedisRoomRepository(s.rds)

	case "gorm":
		s.logger.Info("初始化数据库存储...", zap.String("driver", s.cfg.Database.Driver))

		if err := database.Init(&s.cfg.Database); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
		}

		if s.cfg.Database.AutoMigrate {
			s.logger.Info("执行数据库自动迁移...")
			if err := database.AutoMigrate(); err != nil {
				return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
			}
		}

		s.db = database.GetDB()
		s.roomRepo = repository.NewRoomRepository(s.db)

	default:
		return errors.Newf(errors.ErrConfigValidate, "未知的存储后端: %s", s.cfg.Room.Store)
	}

	return nil
}

// initServices 初始化服务和WebSocket中心
func (s *Server) initServices() {
	svcConfig := &service.Config{
		JWTSecret:          s.cfg.Security.JWT.Secret,
		AccessTokenExpiry:  time.Duration(s.cfg.Security.JWT.ExpireHours) * time.Hour,
		RefreshTokenExpiry: time.Duration(s.cfg.Security.JWT.RefreshHours) * time.Hour,
		DefaultMaxPlayers:  s.cfg.Room.DefaultMaxPlayers,
		CommitRetries:      s.cfg.Room.CommitRetries,
	}

	s.services = service.NewServices(s.roomRepo, svcConfig, s.logger)

	s.hub = ws.NewHub(logger.GetModuleLogger("websocket"))
	ws.NewRoomMessageHandler(s.services.Room, s.hub, logger.GetModuleLogger("websocket"))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()
}

// startHTTPServer 启动HTTP服务器
func (s *Server) startHTTPServer() error {
	router := api.NewRouter(s.db, s.services, s.hub, s.logger)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("HTTP服务器监听中", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务器异常退出", zap.Error(err))
		}
	}()

	return nil
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)

	signal.Notify(sigCh,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))

	close(s.shutdownCh)
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接收新请求
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务器关闭异常", zap.Error(err))
		}
	}

	// 取消主上下文，触发后台goroutine退出
	s.cancel()

	// 关闭存储连接
	s.closeStore()

	// 同步日志
	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}

	return nil
}

// closeStore 关闭存储连接
func (s *Server) closeStore() {
	if s.rds != nil {
		if err := s.rds.Close(); err != nil {
			s.logger.Error("关闭Redis连接失败", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := database.Close(); err != nil {
			s.logger.Error("关闭数据库失败", zap.Error(err))
		}
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("房间服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("多人游戏房间服务器")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  room-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  ROOM_SERVER_SERVER_PORT    HTTP端口")
	fmt.Println("  ROOM_SERVER_ROOM_STORE     存储后端 (gorm/redis)")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  room-server -config=/path/to/config.yaml")
	fmt.Println("  room-server -version")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════")
	fmt.Println("           多人游戏房间服务器")
	fmt.Println("═══════════════════════════════════════════════")
	fmt.Printf("版本: %s | 模式: %s | PID: %d\n", Version, cfg.Server.Mode, os.Getpid())
	fmt.Printf("存储后端: %s\n", cfg.Room.Store)
	fmt.Println("═══════════════════════════════════════════════")
}
