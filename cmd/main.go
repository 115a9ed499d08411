package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	api "tradeflow/cmd/tradeflow"
	"tradeflow/conf"
	"tradeflow/pkg/jwt"
	"tradeflow/pkg/logger"
)

// 启动交易引擎和状态服务

/*
生成管理接口 token：

go run ./cmd -gen-token ops

curl -X POST http://localhost:12180/api/v1/workers/stop \
  -H "Authorization: Bearer $TOKEN" \
  -H "Content-Type: application/json" \
  -d '{"id":"/ES"}'
*/

func main() {
	configPath := flag.String("config", "conf/config.yaml", "config file")
	genToken := flag.String("gen-token", "", "print an admin token for the given operator and exit")
	flag.Parse()

	// 加载配置文件
	if err := conf.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	conf.AppConfig.ApplyEnv()
	appCfg := conf.AppConfig
	logger.InitLogger(&appCfg.Log, appCfg.AppName)
	defer logger.Sync()

	if *genToken != "" {
		if appCfg.Jwt.Secret == "" {
			log.Fatalf("jwt.secret is empty")
		}
		tok, err := jwt.GenToken(jwt.BuildClaims(time.Now().Add(appCfg.Jwt.Expire), *genToken, appCfg.AppName), appCfg.Jwt.Secret)
		if err != nil {
			log.Fatalf("gen token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := api.InitApp(ctx, appCfg)
	if err != nil {
		logger.Fatalf("init: %v", err)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		logger.Errorf("stopped with error: %v", err)
	}
	logger.Info("tradeflow stopped")
}
