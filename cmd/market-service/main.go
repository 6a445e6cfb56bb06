package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/CarLinkTrade/CarLinkTrade/internal/car"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/config"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/db"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/logger"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/middleware"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/server"
	"github.com/CarLinkTrade/CarLinkTrade/internal/common/tracing"
	"github.com/CarLinkTrade/CarLinkTrade/internal/order"
	"github.com/CarLinkTrade/CarLinkTrade/internal/payment"
	"github.com/CarLinkTrade/CarLinkTrade/internal/user"
	"github.com/gorilla/mux"
)

var (
	configPath  = flag.String("config", "configs/market-service.json", "配置文件路径")
	consulKVKey = flag.String("consul-kv", "", "从 Consul KV 读取配置的 key（优先于本地文件）")
)

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	if *consulKVKey != "" {
		kvCfg, err := config.LoadConfigFromConsulKV(cfg.Consul.Host, cfg.Consul.Port, *consulKVKey)
		if err != nil {
			panic(fmt.Sprintf("failed to load config from consul kv: %v", err))
		}
		cfg = kvCfg
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 初始化数据库
	gdb, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	migrateCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := order.AutoMigrate(migrateCtx, gdb); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// 路由注册
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		server.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	user.NewHandler(gdb, cfg.Auth, log, cfg.Debug).RegisterRoutes(r)
	car.NewHandler(gdb, log, cfg.Debug).RegisterRoutes(r)
	order.NewHandler(gdb, payment.NewSimulatedGateway(), log, cfg.Debug).RegisterRoutes(r)

	// 中间件链：恢复 -> 追踪 -> 访问日志 -> 限流 -> 鉴权
	limiter := middleware.NewTokenBucket(200, 100)
	var handler http.Handler = server.Chain(r,
		server.RecoveryMiddleware(log),
		server.TracingMiddleware(cfg.Server.Name),
		server.AccessLogMiddleware(log),
		func(next http.Handler) http.Handler {
			return middleware.RateLimitHandler(limiter, next)
		},
		server.JWTAuthMiddleware(cfg.Auth, log),
	)

	if err := server.RunHTTPServer(cfg, log, handler); err != nil {
		log.Fatalf("market-service exited with error: %v", err)
	}
}
