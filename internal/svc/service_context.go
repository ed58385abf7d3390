package svc

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"drift-gateway/internal/chain"
	"drift-gateway/internal/config"
	"drift-gateway/internal/logic/decoder"
	"drift-gateway/internal/logic/executor"
	"drift-gateway/internal/logic/ipc"
	"drift-gateway/internal/mq"
	"drift-gateway/internal/store"
	"drift-gateway/internal/types"
	"drift-gateway/pkg/logger"
)

// ServiceContext 包含网关服务的全部共享资源。
type ServiceContext struct {
	Config config.GatewayConfig

	Chain     *chain.Client
	Decoder   *decoder.Decoder
	Bridge    *ipc.Bridge
	Executor  *executor.Executor
	Actions   *store.ActionStore
	Publisher *mq.Publisher

	db *sql.DB
}

// NewServiceContext 创建服务上下文，依赖按启动顺序初始化，任一失败直接返回。
func NewServiceContext(c config.GatewayConfig) (*ServiceContext, error) {
	// 1. RPC 客户端（解码查询 + 交易提交共用）
	chainClient := chain.NewClient(c.RpcConf.Endpoint, time.Duration(c.RpcConf.ConfirmTimeoutMs)*time.Millisecond)

	program := c.DriftProgramID
	if program == "" {
		program = decoder.DefaultDriftProgram
	}
	programKey, err := types.TryPubkeyFromBase58(program)
	if err != nil {
		return nil, fmt.Errorf("drift 程序地址非法: %w", err)
	}
	dec := decoder.NewDecoder(chainClient, programKey)

	// 2. worker 子进程桥：启动期即拉起，Spawn 失败视为配置错误
	bridge := ipc.NewBridge(c.WorkerConf.ToWorkerOption())
	if err := bridge.Connect(); err != nil {
		return nil, fmt.Errorf("worker 启动失败: %w", err)
	}

	// 3. 执行器（缺 key / 坏 key 启动即失败）
	exec, err := executor.New(chainClient, c.ExecutorConf.PrivateKey)
	if err != nil {
		bridge.Close()
		return nil, fmt.Errorf("executor 初始化失败: %w", err)
	}

	// 4. PostgreSQL 连接与建表
	db, err := sql.Open("postgres", c.PostgresDSN)
	if err != nil {
		bridge.Close()
		return nil, fmt.Errorf("PostgreSQL 连接失败: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		bridge.Close()
		db.Close()
		return nil, fmt.Errorf("PostgreSQL ping 失败: %w", err)
	}
	actions := store.NewActionStore(db)
	if err := actions.EnsureSchema(ctx); err != nil {
		bridge.Close()
		db.Close()
		return nil, err
	}

	// 5. Kafka 审计流（可选）
	var publisher *mq.Publisher
	if c.KafkaConf.Brokers != "" {
		publisher, err = mq.NewPublisher(c.KafkaConf.Brokers, c.KafkaConf.Topic, c.KafkaConf.Partitions)
		if err != nil {
			bridge.Close()
			db.Close()
			return nil, fmt.Errorf("Kafka producer 初始化失败: %w", err)
		}
	}

	logger.Infof("[Gateway] 服务上下文初始化完成: executor=%s program=%s", exec.PublicKeyBase58(), program)
	return &ServiceContext{
		Config:    c,
		Chain:     chainClient,
		Decoder:   dec,
		Bridge:    bridge,
		Executor:  exec,
		Actions:   actions,
		Publisher: publisher,
		db:        db,
	}, nil
}

// NewRedisClient 按配置创建 Redis 客户端（回补断点用）。
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// Close 关闭服务上下文中的资源。
func (ctx *ServiceContext) Close() {
	if ctx.Bridge != nil {
		ctx.Bridge.Close()
	}
	if ctx.Publisher != nil {
		ctx.Publisher.Close()
	}
	if ctx.db != nil {
		ctx.db.Close()
	}
}
