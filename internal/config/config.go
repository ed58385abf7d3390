package config

import (
	"github.com/zeromicro/go-zero/rest"

	"drift-gateway/internal/logic/ipc"
	"drift-gateway/pkg/logger"
)

type LogConfig struct {
	Format   string `yaml:"format"`   // 日志格式，支持 "console" 或 "json"
	LogDir   string `yaml:"log_dir"`  // 日志目录（可为相对路径或绝对路径）
	Level    string `yaml:"level"`    // 日志级别：debug / info / warn / error
	Compress bool   `yaml:"compress"` // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// RpcConfig 表示 Solana RPC 连接配置
type RpcConfig struct {
	Endpoint         string `yaml:"endpoint"`           // RPC 节点地址
	ConfirmTimeoutMs int    `yaml:"confirm_timeout_ms"` // 交易确认轮询总超时（毫秒）
}

// WorkerConfig 表示交易构造 worker 子进程配置
type WorkerConfig struct {
	Command string   `yaml:"command"` // worker 可执行文件路径
	Args    []string `yaml:"args"`    // 启动参数
}

func (c *WorkerConfig) ToWorkerOption() ipc.WorkerOption {
	return ipc.WorkerOption{
		Command: c.Command,
		Args:    c.Args,
	}
}

// ExecutorConfig 表示服务端签名配置
type ExecutorConfig struct {
	PrivateKey string `yaml:"private_key"` // JSON 字节数组 / 逗号分隔字节 / base58
}

// KafkaConfig 表示动作审计流的 Kafka 配置，brokers 为空则整体禁用
type KafkaConfig struct {
	Brokers    string `yaml:"brokers"`    // Kafka broker 地址，多个用英文逗号分隔
	Topic      string `yaml:"topic"`      // 动作记录 topic
	Partitions int    `yaml:"partitions"` // topic 分区数（仅建 topic 时用）
}

// TimeConfig 表示各类请求超时配置（单位：毫秒）
type TimeConfig struct {
	BuildTimeoutMs int `yaml:"build_timeout_ms"` // 单次 worker 构造/查询调用超时
	QueryTimeoutMs int `yaml:"query_timeout_ms"` // 解码/DB 查询类请求超时
}

// GatewayConfig 是 api 服务主配置
type GatewayConfig struct {
	RestConf rest.RestConf `yaml:"rest"` // HTTP 服务配置

	LogConf      LogConfig      `yaml:"logger"`
	RpcConf      RpcConfig      `yaml:"rpc"`
	WorkerConf   WorkerConfig   `yaml:"worker"`
	ExecutorConf ExecutorConfig `yaml:"executor"`
	KafkaConf    KafkaConfig    `yaml:"kafka"`
	TimeConf     TimeConfig     `yaml:"time_conf"`

	PostgresDSN    string `yaml:"postgres_dsn"`     // PostgreSQL 数据源
	RedisAddr      string `yaml:"redis_addr"`       // Redis 地址（回补断点用，可为空）
	DriftProgramID string `yaml:"drift_program_id"` // 为空时使用主网默认程序地址
}

// BackfillConfig 是历史回补任务配置
type BackfillConfig struct {
	LogConf LogConfig `yaml:"logger"`
	RpcConf RpcConfig `yaml:"rpc"`

	PostgresDSN    string `yaml:"postgres_dsn"`
	RedisAddr      string `yaml:"redis_addr"`
	DriftProgramID string `yaml:"drift_program_id"`
	PageLimit      int    `yaml:"page_limit"` // 每页拉取的签名数，默认 100
	MaxPages       int    `yaml:"max_pages"`  // 单次运行最多翻页数，0 表示不限
}
