// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GatewayConfig Gateway 配置
type GatewayConfig struct {
	Server      ServerConfig      `yaml:"server"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Protocol    ProtocolConfig    `yaml:"protocol"`
	Auth        AuthConfig        `yaml:"auth"`
	Distributor DistributorConfig `yaml:"distributor"`
	Connection  ConnectionConfig  `yaml:"connection"`
	Protection  ProtectionConfig  `yaml:"protection"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// RelayConfig Relay 配置：以客户端身份连接上游直播间，把命令转发到 Kafka
type RelayConfig struct {
	Upstream UpstreamConfig `yaml:"upstream"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig 服务器基础配置
type ServerConfig struct {
	ID         string `yaml:"id"`
	Addr       string `yaml:"addr"`
	Path       string `yaml:"path"`
	HealthAddr string `yaml:"health_addr"`
	GRPCAddr   string `yaml:"grpc_addr"`
}

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	ReadBufferSize   int           `yaml:"read_buffer_size"`
	WriteBufferSize  int           `yaml:"write_buffer_size"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// ProtocolConfig 协议核心配置
type ProtocolConfig struct {
	MaxFrameSize   int  `yaml:"max_frame_size"`
	MaxBatchSize   int  `yaml:"max_batch_size"`
	StrictCommands bool `yaml:"strict_commands"`
	BatchProtover  int  `yaml:"batch_protover"` // 2: zlib, 3: brotli
}

// AuthConfig 认证配置
type AuthConfig struct {
	Secret         string `yaml:"secret"`
	AllowDevKeys   bool   `yaml:"allow_dev_keys"`
	FailureCode    int32  `yaml:"failure_code"`
	AllowAnonymous bool   `yaml:"allow_anonymous"` // 未携带 key 时是否放行
}

// DistributorConfig Distributor 配置
type DistributorConfig struct {
	Shards         int `yaml:"shards"`
	InputQueueSize int `yaml:"input_queue_size"`
}

// ConnectionConfig 连接配置
type ConnectionConfig struct {
	SendChSize       int           `yaml:"send_ch_size"`
	BatchInterval    time.Duration `yaml:"batch_interval"`
	BatchMaxSize     int           `yaml:"batch_max_size"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
}

// ProtectionConfig 连接保护配置
type ProtectionConfig struct {
	QueueWarningRatio           float64       `yaml:"queue_warning_ratio"`
	QueueSevereRatio            float64       `yaml:"queue_severe_ratio"`
	QueueCriticalRatio          float64       `yaml:"queue_critical_ratio"`
	MaxConsecutiveDrops         int           `yaml:"max_consecutive_drops"`
	WriteTimeout                time.Duration `yaml:"write_timeout"`
	MaxConsecutiveWriteTimeouts int           `yaml:"max_consecutive_write_timeouts"`
}

// UpstreamConfig 上游直播间配置
type UpstreamConfig struct {
	URL               string        `yaml:"url"` // ws://, wss:// 或 tcp://
	RoomID            int64         `yaml:"room_id"`
	UID               int64         `yaml:"uid"`
	Key               string        `yaml:"key"`
	Platform          string        `yaml:"platform"`
	Protover          int           `yaml:"protover"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	AuthTimeout       time.Duration `yaml:"auth_timeout"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoadGatewayConfig 加载 Gateway 配置
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	var cfg GatewayConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Protocol.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadRelayConfig 加载 Relay 配置
func LoadRelayConfig(path string) (*RelayConfig, error) {
	var cfg RelayConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Protocol.validate(); err != nil {
		return nil, err
	}
	if cfg.Upstream.URL == "" {
		return nil, fmt.Errorf("config: upstream.url is required")
	}
	return &cfg, nil
}

func load(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// DefaultGatewayConfig 返回全部取默认值的 Gateway 配置
func DefaultGatewayConfig() *GatewayConfig {
	cfg := &GatewayConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *GatewayConfig) applyDefaults() {
	setDefault(&c.Server.ID, "gateway-1")
	setDefault(&c.Server.Addr, ":8080")
	setDefault(&c.Server.Path, "/sub")
	setDefault(&c.WebSocket.ReadBufferSize, 4096)
	setDefault(&c.WebSocket.WriteBufferSize, 4096)
	setDefault(&c.WebSocket.HandshakeTimeout, 10*time.Second)
	c.Protocol.applyDefaults()
	setDefault(&c.Auth.FailureCode, int32(-101))
	setDefault(&c.Distributor.Shards, 4)
	setDefault(&c.Distributor.InputQueueSize, 4096)
	setDefault(&c.Connection.SendChSize, 256)
	setDefault(&c.Connection.BatchInterval, 100*time.Millisecond)
	setDefault(&c.Connection.BatchMaxSize, 32)
	setDefault(&c.Connection.HeartbeatTimeout, 70*time.Second)
	setDefault(&c.Protection.QueueWarningRatio, 0.5)
	setDefault(&c.Protection.QueueSevereRatio, 0.8)
	setDefault(&c.Protection.QueueCriticalRatio, 0.95)
	setDefault(&c.Protection.MaxConsecutiveDrops, 100)
	setDefault(&c.Protection.WriteTimeout, 5*time.Second)
	setDefault(&c.Protection.MaxConsecutiveWriteTimeouts, 3)
	c.Kafka.applyDefaults()
}

func (c *RelayConfig) applyDefaults() {
	setDefault(&c.Upstream.Platform, "web")
	setDefault(&c.Upstream.Protover, 3)
	setDefault(&c.Upstream.HeartbeatInterval, 30*time.Second)
	setDefault(&c.Upstream.AuthTimeout, 10*time.Second)
	c.Protocol.applyDefaults()
	c.Kafka.applyDefaults()
}

func (c *ProtocolConfig) applyDefaults() {
	setDefault(&c.MaxFrameSize, 8<<20)
	setDefault(&c.MaxBatchSize, 16<<20)
	setDefault(&c.BatchProtover, 3)
}

func (c *ProtocolConfig) validate() error {
	if c.BatchProtover != 2 && c.BatchProtover != 3 {
		return fmt.Errorf("config: protocol.batch_protover must be 2 or 3, got %d", c.BatchProtover)
	}
	return nil
}

func (c *KafkaConfig) applyDefaults() {
	setDefault(&c.BatchSize, 100)
	setDefault(&c.BatchTimeout, 50*time.Millisecond)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}
