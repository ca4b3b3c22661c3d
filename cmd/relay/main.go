// Package main 以客户端身份连接上游直播间，把收到的命令发布到 Kafka 总线
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/qiminjie89/livebus/internal/bus"
	"github.com/qiminjie89/livebus/internal/client"
	"github.com/qiminjie89/livebus/pkg/config"
	"github.com/qiminjie89/livebus/pkg/logger"
	"github.com/qiminjie89/livebus/pkg/metrics"
	"github.com/qiminjie89/livebus/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "configs/relay.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadRelayConfig(*configPath)
	if err != nil {
		panic("load config failed: " + err.Error())
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher, err := bus.NewKafkaPublisher(cfg.Kafka, cfg.Upstream.RoomID)
	if err != nil {
		logger.Error("create publisher failed", zap.Error(err))
		os.Exit(1)
	}
	defer publisher.Close()

	if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.ListenAndServe(ctx, cfg.Metrics.Addr); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	// 空注册表：所有命令按通用类型解码，保留原始正文无损转发
	opts := append(client.ProtocolOptions(cfg.Protocol), protocol.WithRegistry(protocol.NewRegistry()))
	c := client.New(client.ConfigFromUpstream(cfg.Upstream), opts...)

	logger.Info("starting relay",
		zap.String("upstream", cfg.Upstream.URL),
		zap.Int64("room_id", cfg.Upstream.RoomID),
		zap.String("topic", cfg.Kafka.Topic),
	)

	if err := c.Run(ctx, bus.NewRelay(ctx, publisher)); err != nil {
		logger.Error("relay stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("relay stopped")
}
