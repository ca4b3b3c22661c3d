package bus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/qiminjie89/livebus/pkg/config"
	"github.com/qiminjie89/livebus/pkg/kafka"
)

// Sender 底层消息发送接口，*kafka.Producer 实现了它
type Sender interface {
	Send(ctx context.Context, key, value []byte) error
	Close() error
}

// Publisher 把上游命令封装为 Envelope 发布到总线
type Publisher struct {
	sender Sender
	roomID int64
	seq    atomic.Uint64
	now    func() time.Time
}

// NewPublisher 创建发布者，roomID 为所有消息的目标房间
func NewPublisher(sender Sender, roomID int64) *Publisher {
	return &Publisher{
		sender: sender,
		roomID: roomID,
		now:    time.Now,
	}
}

// NewKafkaPublisher 按配置创建基于 Kafka 的发布者
func NewKafkaPublisher(cfg config.KafkaConfig, roomID int64) (*Publisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("bus: kafka brokers and topic are required")
	}
	producer := kafka.NewProducer(&kafka.ProducerConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	})
	return NewPublisher(producer, roomID), nil
}

// Publish 发布一条命令，返回分配的序号
func (p *Publisher) Publish(ctx context.Context, cmd string, body []byte) (uint64, error) {
	env := &Envelope{
		RoomID:    p.roomID,
		Cmd:       cmd,
		Body:      body,
		Seq:       p.seq.Add(1),
		Priority:  PriorityFor(cmd),
		Timestamp: p.now().UnixMilli(),
	}
	data, err := Encode(env)
	if err != nil {
		return 0, fmt.Errorf("bus: encode %s: %w", cmd, err)
	}
	if err := p.sender.Send(ctx, env.Key(), data); err != nil {
		return 0, err
	}
	return env.Seq, nil
}

// Close 关闭底层发送者
func (p *Publisher) Close() error {
	return p.sender.Close()
}
