// Package metrics 提供 Prometheus 监控指标
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 协议层指标，客户端和服务端共用
var (
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livebus_frames_received_total",
		Help: "Total events decoded from the wire",
	}, []string{"role", "event"})

	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livebus_frames_sent_total",
		Help: "Total frames written to the wire",
	}, []string{"role", "event"})

	ProtocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livebus_protocol_errors_total",
		Help: "Protocol errors by side (local, remote)",
	}, []string{"role", "side"})

	UnknownCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livebus_unknown_commands_total",
		Help: "Commands degraded to the generic type",
	}, []string{"kind", "cmd"})
)

// Gateway 指标
var (
	// 连接指标
	GatewayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connections_total",
		Help: "Total number of active connections",
	})

	GatewayRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_rooms_total",
		Help: "Total number of rooms with at least one member",
	})

	GatewayAuthResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_auth_total",
		Help: "Auth handshakes by result",
	}, []string{"result"})

	// 消息指标
	GatewayMessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_messages_dropped_total",
		Help: "Total messages dropped due to backpressure",
	}, []string{"priority"})

	GatewayBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_batch_commands",
		Help:    "Commands per compressed batch frame",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
	})

	// 队列指标
	GatewayQueueUsage = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_connection_queue_usage",
		Help:    "Connection send queue usage ratio",
		Buckets: []float64{0.1, 0.25, 0.5, 0.75, 0.8, 0.9, 0.95, 1.0},
	})

	// 连接关闭原因
	GatewayConnectionCloseReason = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_connection_close_total",
		Help: "Connection close count by reason",
	}, []string{"reason"})

	// 写超时
	GatewayWriteTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_write_timeouts_total",
		Help: "Total write timeout count",
	})

	// Distributor 指标
	DistributorQueueSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_distributor_queue_size",
		Help: "Distributor input queue size",
	}, []string{"shard"})

	// Kafka 消费指标（数据面）
	GatewayKafkaMessageReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_kafka_messages_received_total",
		Help: "Total messages received from Kafka",
	})

	GatewayKafkaMessageDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_kafka_messages_dropped_total",
		Help: "Total messages dropped due to parse error",
	})

	GatewayBroadcastMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_broadcast_messages_total",
		Help: "Total room broadcast messages processed",
	})
)

// Relay 指标
var (
	RelayEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_published_total",
		Help: "Commands published to the bus",
	}, []string{"cmd"})

	RelayPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_publish_errors_total",
		Help: "Failed bus publishes",
	})

	RelayPopularity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_upstream_popularity",
		Help: "Popularity reported by the last heartbeat response",
	})
)

// Handler 返回 Prometheus 抓取入口
func Handler() http.Handler {
	return promhttp.Handler()
}

// ListenAndServe 在独立地址暴露 /metrics，ctx 取消时关闭
func ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
