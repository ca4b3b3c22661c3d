package gateway

import (
	"context"

	"go.uber.org/zap"

	"github.com/qiminjie89/livebus/internal/bus"
	"github.com/qiminjie89/livebus/pkg/kafka"
	"github.com/qiminjie89/livebus/pkg/logger"
	"github.com/qiminjie89/livebus/pkg/metrics"
	"github.com/qiminjie89/livebus/pkg/protocol"
)

// startKafkaConsumer 启动 Kafka 消费者（数据面），未配置时跳过
func (s *Server) startKafkaConsumer(ctx context.Context) {
	if len(s.cfg.Kafka.Brokers) == 0 || s.cfg.Kafka.Topic == "" {
		logger.Warn("kafka consumer disabled (no brokers or topic configured)")
		return
	}

	cfg := &kafka.ConsumerConfig{
		Brokers:       s.cfg.Kafka.Brokers,
		Topic:         s.cfg.Kafka.Topic,
		ConsumerGroup: s.cfg.Server.ID, // 每个 Gateway 独立消费组
	}

	consumer := kafka.NewConsumer(cfg)
	if consumer == nil {
		logger.Warn("failed to create kafka consumer")
		return
	}
	s.consumer = consumer

	logger.Info("starting kafka consumer for data plane",
		zap.String("topic", cfg.Topic),
		zap.String("consumer_group", cfg.ConsumerGroup),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		consumer.Start(ctx, s.handleBusMessage)
	}()
}

// handleBusMessage 处理总线消息：解出 Envelope，按原始正文广播到本地房间
func (s *Server) handleBusMessage(msg *kafka.Message) error {
	env, err := bus.Decode(msg.Value)
	if err != nil {
		logger.Error("failed to decode bus envelope", zap.Error(err))
		metrics.GatewayKafkaMessageDropped.Inc()
		return nil // 不重试，丢弃
	}

	metrics.GatewayKafkaMessageReceived.Inc()

	// 正文原样转发，不经过命令注册表，未知命令也能无损透传
	frame := &protocol.RawFrame{
		Body:     env.Body,
		Protover: protocol.ProtoverCommand,
		Op:       protocol.OpCommand,
	}
	s.Broadcast(env.RoomID, frame, env.Priority)
	return nil
}
