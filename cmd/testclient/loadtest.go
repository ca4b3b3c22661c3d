package main

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qiminjie89/livebus/internal/client"
	"github.com/qiminjie89/livebus/pkg/protocol"
)

// Stats 负载测试统计
type Stats struct {
	connected    atomic.Int64
	disconnected atomic.Int64
	commands     atomic.Int64
	heartbeats   atomic.Int64
	errors       atomic.Int64
}

// runLoadTest 启动 *load 个客户端进入同一房间，持续 *duration 后打印统计
func runLoadTest(ctx context.Context) {
	log.Printf("Starting load test...")
	log.Printf("  Server: %s", *serverAddr)
	log.Printf("  Clients: %d", *load)
	log.Printf("  Duration: %s", *duration)

	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	var stats Stats
	go statsLoop(ctx, &stats)

	// 所有客户端共用一张注册表，只计数不解析具体类型
	registry := protocol.NewRegistry()
	h := client.HandlerFuncs{
		Command:           func(protocol.Command) { stats.commands.Add(1) },
		HeartbeatResponse: func(*protocol.HeartbeatResponse) { stats.heartbeats.Add(1) },
	}

	var wg sync.WaitGroup
	for i := 0; i < *load; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			stats.connected.Add(1)
			defer func() {
				stats.connected.Add(-1)
				stats.disconnected.Add(1)
			}()

			c := client.New(clientConfig(*roomID, user), protocol.WithRegistry(registry),
				protocol.WithWarningHandler(func(*protocol.UnknownCommandWarning) {}))
			if err := c.Run(ctx, h); err != nil {
				stats.errors.Add(1)
			}
		}(*uid + int64(i))
	}

	wg.Wait()
	printFinalStats(&stats)
}

func statsLoop(ctx context.Context, stats *Stats) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("Stats: connected=%d commands=%d heartbeats=%d errors=%d",
				stats.connected.Load(),
				stats.commands.Load(),
				stats.heartbeats.Load(),
				stats.errors.Load(),
			)
		}
	}
}

func printFinalStats(stats *Stats) {
	log.Printf("=== Final Stats ===")
	log.Printf("  Disconnected: %d", stats.disconnected.Load())
	log.Printf("  Commands Received: %d", stats.commands.Load())
	log.Printf("  Heartbeat Responses: %d", stats.heartbeats.Load())
	log.Printf("  Errors: %d", stats.errors.Load())
}
