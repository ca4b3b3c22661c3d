package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/qiminjie89/livebus/pkg/logger"
)

// ProducerConfig Kafka 生产者配置
type ProducerConfig struct {
	Brokers      []string      // Kafka broker 地址
	Topic        string        // 目标 topic
	BatchSize    int           // 单批最大消息数
	BatchTimeout time.Duration // 攒批最长等待
}

// Producer Kafka 生产者
type Producer struct {
	writer    *kafka.Writer
	log       *zap.Logger
	connected atomic.Bool
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg *ProducerConfig) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{}, // 同一房间落在同一分区，保证顺序
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			RequiredAcks: kafka.RequireOne,
		},
		log: logger.With(zap.String("topic", cfg.Topic)),
	}
}

// Send 按 key 发送一条消息
func (p *Producer) Send(ctx context.Context, key, value []byte) error {
	return p.SendBatch(ctx, []kafka.Message{{Key: key, Value: value}})
}

// SendBatch 一次写入多条消息，同步等待 broker 确认
func (p *Producer) SendBatch(ctx context.Context, messages []kafka.Message) error {
	err := p.writer.WriteMessages(ctx, messages...)
	p.connected.Store(err == nil)
	if err != nil {
		p.log.Error("write to bus failed", zap.Int("count", len(messages)), zap.Error(err))
	}
	return err
}

// IsConnected 最近一次发送是否成功
func (p *Producer) IsConnected() bool {
	return p.connected.Load()
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}
