// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"nuvaru-go/internal/config"
	"nuvaru-go/internal/handler"
	"nuvaru-go/internal/middleware"
	"nuvaru-go/internal/model"
	"nuvaru-go/internal/pipeline"
	"nuvaru-go/internal/repository"
	"nuvaru-go/internal/service"
	"nuvaru-go/internal/vectorstore"
	"nuvaru-go/pkg/database"
	"nuvaru-go/pkg/embedding"
	"nuvaru-go/pkg/kafka"
	"nuvaru-go/pkg/llm"
	"nuvaru-go/pkg/log"
	"nuvaru-go/pkg/storage"
	"nuvaru-go/pkg/tika"
	"nuvaru-go/pkg/token"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与对象存储
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.DB.AutoMigrate(&model.User{}, &model.Document{}); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)

	// 4. 初始化向量索引后端
	embeddingClient, err := embedding.NewClient(cfg.Embedding)
	if err != nil {
		log.Fatal("初始化 Embedding 客户端失败", err)
	}
	store, err := newVectorStore(cfg, embeddingClient.Dimensions())
	if err != nil {
		log.Fatal("初始化向量索引失败", err)
	}

	if cfg.Kafka.Brokers != "" {
		kafka.InitProducer(cfg.Kafka)
	}

	// 5. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	documentRepo := repository.NewDocumentRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.RDB)

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika)
	llmClient := llm.NewClient(cfg.LLM)
	userService := service.NewUserService(userRepository, jwtManager)
	documentService := service.NewDocumentService(documentRepo, store, embeddingClient, tikaClient, cfg.MinIO, cfg.RAG)
	searchService := service.NewSearchService(embeddingClient, store, cfg.RAG.TopK)
	conversationService := service.NewConversationService(conversationRepo)
	ragService := service.NewRagService(searchService, llmClient, conversationRepo, cfg.RAG)
	chatService := service.NewChatService(searchService, llmClient, conversationRepo, cfg.RAG)

	// 7. 启动后台 Kafka 消费者（处理 reindex 事件）
	if cfg.Kafka.Brokers != "" {
		processor := pipeline.NewProcessor(tikaClient, embeddingClient, store, documentRepo, cfg.MinIO, cfg.RAG)
		go kafka.StartConsumer(cfg.Kafka, processor)
	}

	// 7.1 初始化导入 initfile 目录：通过标准入库管道导入，查重保证幂等
	initCtx, cancelInit := context.WithCancel(context.Background())
	defer cancelInit()
	go initSeedFiles(initCtx, "initfile", userRepository, documentService)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	healthHandler := handler.NewHealthHandler(store)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", handler.NewUserHandler(userService).GetProfile)
				authed.POST("/logout", handler.NewUserHandler(userService).Logout)
			}
		}

		// Document 路由组，需要认证
		documents := apiV1.Group("/documents")
		documents.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			docHandler := handler.NewDocumentHandler(documentService)
			documents.POST("/upload", docHandler.Upload)
			documents.GET("", docHandler.List)
			documents.GET("/stats", docHandler.Stats)
			documents.GET("/:docId", docHandler.Get)
			documents.GET("/:docId/download", docHandler.Download)
			documents.DELETE("/:docId", docHandler.Delete)
		}

		// Search 路由组
		search := apiV1.Group("/search")
		search.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			search.GET("", handler.NewSearchHandler(searchService).Search)
		}

		// RAG 问答路由组
		rag := apiV1.Group("/rag")
		rag.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			ragHandler := handler.NewRagHandler(ragService, conversationService)
			rag.POST("/chat", ragHandler.Chat)
			rag.GET("/history", ragHandler.GetHistory)
			rag.DELETE("/history", ragHandler.ClearHistory)
		}

		// Chat 路由 (WebSocket 流式)
		// 停止令牌由 GetWebsocketStopToken 签发并在 Handle 中校验，
		// 两条路由必须共享同一个 handler 实例
		chatHandler := handler.NewChatHandler(chatService, userService, jwtManager)
		chatGroup := apiV1.Group("/chat")
		{
			chatGroup.GET("/websocket-token", chatHandler.GetWebsocketStopToken)
		}
		r.GET("/chat/:token", chatHandler.Handle)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}

// newVectorStore 根据配置选择向量索引后端。
func newVectorStore(cfg config.Config, dims int) (vectorstore.Store, error) {
	switch cfg.RAG.VectorStore {
	case "elasticsearch":
		return vectorstore.NewESStore(cfg.Elasticsearch, dims)
	case "", "memory":
		return vectorstore.NewMemoryStore(cfg.RAG.DataDir, cfg.RAG.CollectionName)
	default:
		return nil, fmt.Errorf("未知的向量索引后端: %s", cfg.RAG.VectorStore)
	}
}

// initSeedFiles 扫描目录下文件并通过标准入库管道导入。
// 查重机制保证重复启动时不会重复入库（幂等）。
func initSeedFiles(ctx context.Context, dir string, userRepo repository.UserRepository, docSvc service.DocumentService) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("initSeedFiles: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	// 归属用户：优先 admin，不存在则跳过
	owner, err := userRepo.FindByUsername("admin")
	if err != nil || owner == nil {
		log.Warnf("initSeedFiles: 未找到 admin 用户，跳过初始化导入")
		return
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("initSeedFiles: 读取文件失败: %s, err=%v", path, err)
			return nil
		}

		contentType := "text/plain"
		if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
			// 去掉 "; charset=..." 参数，只保留媒体类型本身
			if parsed, _, err := mime.ParseMediaType(mt); err == nil {
				contentType = parsed
			}
		}

		result, err := docSvc.Upload(ctx, service.UploadRequest{
			UserID:      owner.ID,
			FileName:    info.Name(),
			ContentType: contentType,
			Data:        data,
		})
		if err != nil {
			log.Warnf("initSeedFiles: 导入失败: %s, err=%v", path, err)
			return nil
		}
		if result.Status == "duplicate" {
			log.Infof("initSeedFiles: 已存在，跳过: %s", info.Name())
			return nil
		}
		log.Infof("initSeedFiles: 导入完成: %s, chunks=%d", info.Name(), result.ChunksCount)
		return nil
	})
	if walkErr != nil {
		log.Warnf("initSeedFiles: 遍历目录发生错误: %v", walkErr)
	}
}
