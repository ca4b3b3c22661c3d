package bus

import (
	"context"

	"go.uber.org/zap"

	"github.com/qiminjie89/livebus/pkg/logger"
	"github.com/qiminjie89/livebus/pkg/metrics"
	"github.com/qiminjie89/livebus/pkg/protocol"
)

// Relay 接收上游命令并发布到总线，实现 client.Handler
type Relay struct {
	ctx       context.Context
	publisher *Publisher
}

// NewRelay 创建 Relay，ctx 用于发布时的超时与取消
func NewRelay(ctx context.Context, publisher *Publisher) *Relay {
	return &Relay{ctx: ctx, publisher: publisher}
}

// OnCommand 发布命令。通用命令转发收到的原始正文，已注册类型重新编码。
func (r *Relay) OnCommand(cmd protocol.Command) {
	body, err := commandBody(cmd)
	if err != nil {
		metrics.RelayPublishErrors.Inc()
		logger.Warn("encode command failed", zap.String("cmd", cmd.CommandName()), zap.Error(err))
		return
	}

	seq, err := r.publisher.Publish(r.ctx, cmd.CommandName(), body)
	if err != nil {
		metrics.RelayPublishErrors.Inc()
		logger.Error("publish command failed", zap.String("cmd", cmd.CommandName()), zap.Error(err))
		return
	}
	metrics.RelayEventsPublished.WithLabelValues(cmd.CommandName()).Inc()
	logger.Debug("command published", zap.String("cmd", cmd.CommandName()), zap.Uint64("seq", seq))
}

// OnHeartbeatResponse 记录上游人气值
func (r *Relay) OnHeartbeatResponse(resp *protocol.HeartbeatResponse) {
	metrics.RelayPopularity.Set(float64(resp.Popularity))
}

func commandBody(cmd protocol.Command) ([]byte, error) {
	if g, ok := cmd.(*protocol.GenericCommand); ok && len(g.Raw) > 0 {
		return g.Raw, nil
	}
	return protocol.MarshalCommand(cmd)
}
