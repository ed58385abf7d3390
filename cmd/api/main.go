package main

import (
	"flag"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest"

	"drift-gateway/internal/config"
	"drift-gateway/internal/server"
	"drift-gateway/internal/svc"
	"drift-gateway/pkg/logger"
)

var configFile = flag.String("f", "etc/gateway.yaml", "the config file")

func main() {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
		}
	}()

	flag.Parse()

	var c config.GatewayConfig
	conf.MustLoad(*configFile, &c)

	if err := logger.Init(c.LogConf.ToLogOption()); err != nil {
		logx.Errorf("logger init failed: %v", err)
		os.Exit(1)
	}
	defer logger.Sync()

	serviceContext, err := svc.NewServiceContext(c)
	if err != nil {
		logger.Errorf("[Gateway] 服务初始化失败: %v", err)
		os.Exit(1)
	}
	defer serviceContext.Close()

	restServer := rest.MustNewServer(c.RestConf)
	defer restServer.Stop()
	server.RegisterHandlers(restServer, serviceContext)

	logger.Infof("[Gateway] 启动 HTTP 服务: %s:%d", c.RestConf.Host, c.RestConf.Port)
	go restServer.Start()

	// 等待退出信号
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Infof("[Gateway] 收到退出信号，开始关闭")
}
