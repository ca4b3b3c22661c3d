package gateway

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/qiminjie89/livebus/pkg/logger"
	"github.com/qiminjie89/livebus/pkg/metrics"
)

// HealthServiceName gRPC 健康检查里 Gateway 的服务名
const HealthServiceName = "livebus.Gateway"

// HealthStatus 健康状态
type HealthStatus struct {
	Status         string  `json:"status"`
	Reason         string  `json:"reason,omitempty"`
	Connections    int     `json:"connections"`
	Rooms          int     `json:"rooms"`
	KafkaEnabled   bool    `json:"kafka_enabled"`
	KafkaConnected bool    `json:"kafka_connected"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// healthServer HTTP /health、/metrics 与 gRPC 健康检查
type healthServer struct {
	s       *Server
	http    *http.Server
	grpc    *grpc.Server
	checker *health.Server
}

func newHealthServer(s *Server) *healthServer {
	return &healthServer{
		s:       s,
		checker: health.NewServer(),
	}
}

// Status 汇总当前健康状态
func (s *Server) Status() *HealthStatus {
	st := &HealthStatus{
		Connections:   s.ConnCount(),
		Rooms:         s.rooms.Len(),
		KafkaEnabled:  s.consumer != nil,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	}
	st.KafkaConnected = st.KafkaEnabled && s.consumer.IsConnected()

	if st.KafkaEnabled && !st.KafkaConnected {
		st.Status = "unhealthy"
		st.Reason = "kafka_disconnected"
	} else {
		st.Status = "healthy"
	}
	return st
}

// healthHandler 健康检查处理
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	st := s.Status()

	w.Header().Set("Content-Type", "application/json")
	if st.Status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(st)
}

func (h *healthServer) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.s.healthHandler)
	if h.s.cfg.Metrics.Enabled {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}

func (h *healthServer) start() error {
	if addr := h.s.cfg.Server.HealthAddr; addr != "" {
		h.http = &http.Server{
			Addr:              addr,
			Handler:           h.mux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info("starting health server", zap.String("addr", addr))
		go func() {
			if err := h.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	if addr := h.s.cfg.Server.GRPCAddr; addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		h.grpc = grpc.NewServer()
		grpc_health_v1.RegisterHealthServer(h.grpc, h.checker)
		h.checker.SetServingStatus(HealthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

		logger.Info("starting grpc health server", zap.String("addr", addr))
		go func() {
			if err := h.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				logger.Error("grpc health server error", zap.Error(err))
			}
		}()
	}
	return nil
}

func (h *healthServer) stop() {
	h.checker.Shutdown()
	if h.grpc != nil {
		h.grpc.GracefulStop()
	}
	if h.http != nil {
		_ = h.http.Close()
	}
}
