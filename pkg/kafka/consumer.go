// Package kafka 提供 Kafka 客户端封装
package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/qiminjie89/livebus/pkg/logger"
)

// ConsumerConfig Kafka 消费者配置
type ConsumerConfig struct {
	Brokers       []string // Kafka broker 地址
	Topic         string   // 订阅的 topic
	ConsumerGroup string   // 消费组 ID（每个 Gateway 独立消费组，全量接收广播）
	StartOffset   int64    // 新消费组的起始位置，默认 kafka.LastOffset
	MaxWait       time.Duration
}

const (
	fetchBackoffMin = 100 * time.Millisecond
	fetchBackoffMax = 5 * time.Second
)

// Consumer Kafka 消费者
type Consumer struct {
	cfg       *ConsumerConfig
	reader    *kafka.Reader
	log       *zap.Logger
	connected atomic.Bool
}

// MessageHandler 消息处理函数
type MessageHandler func(msg *Message) error

// Message Kafka 消息
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
	Time      time.Time
}

// NewConsumer 创建 Kafka 消费者
func NewConsumer(cfg *ConsumerConfig) *Consumer {
	// 验证配置
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.ConsumerGroup == "" {
		logger.Warn("kafka consumer config incomplete, skipping",
			zap.Int("brokers", len(cfg.Brokers)),
			zap.String("topic", cfg.Topic),
			zap.String("group", cfg.ConsumerGroup),
		)
		return nil
	}

	startOffset := cfg.StartOffset
	if startOffset == 0 {
		startOffset = kafka.LastOffset // 直播消息只关心加入之后的
	}

	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 500 * time.Millisecond // 弹幕要低延迟，不等凑满
	}

	return &Consumer{
		cfg: cfg,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.ConsumerGroup,
			StartOffset: startOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     maxWait,
		}),
		log: logger.With(zap.String("topic", cfg.Topic), zap.String("group", cfg.ConsumerGroup)),
	}
}

// Start 启动消费循环，阻塞到 ctx 取消。
// handler 返回错误时仍提交 offset：直播消息过期即无意义，不做重投。
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) {
	c.log.Info("bus consumer running")

	backoff := fetchBackoffMin
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.connected.Store(false)
			c.log.Error("fetch failed, backing off", zap.Duration("backoff", backoff), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, fetchBackoffMax)
			continue
		}
		backoff = fetchBackoffMin
		c.connected.Store(true)

		m := Message{Key: msg.Key, Value: msg.Value, Partition: msg.Partition, Offset: msg.Offset, Time: msg.Time}
		if herr := handler(&m); herr != nil {
			c.log.Warn("bus message not handled", zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(herr))
		}

		if cerr := c.reader.CommitMessages(ctx, msg); cerr != nil && ctx.Err() == nil {
			c.log.Error("commit failed", zap.Int64("offset", m.Offset), zap.Error(cerr))
		}
	}
}

// IsConnected 最近一次拉取是否成功
func (c *Consumer) IsConnected() bool {
	return c.connected.Load()
}

// Close 关闭消费者
func (c *Consumer) Close() error {
	return c.reader.Close()
}
