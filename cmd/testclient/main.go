// Package main 提供直播间测试客户端：连接 Gateway 或上游，打印收到的命令
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qiminjie89/livebus/internal/client"
	"github.com/qiminjie89/livebus/pkg/protocol"
	"github.com/qiminjie89/livebus/pkg/protocol/command"
)

// 配置
var (
	serverAddr = flag.String("addr", "ws://localhost:8080/sub", "server address (ws://, wss:// or tcp://)")
	roomID     = flag.Int64("room", 8131361, "room ID")
	uid        = flag.Int64("uid", 0, "user ID")
	key        = flag.String("key", "dev_token", "room key (dev_xxx for dev mode)")
	protover   = flag.Int("protover", 3, "preferred batch protover (2: zlib, 3: brotli)")
	heartbeat  = flag.Duration("heartbeat", 30*time.Second, "heartbeat interval")
	verbose    = flag.Bool("v", false, "print raw bodies of generic commands")
	load       = flag.Int("load", 0, "run N concurrent clients and report counts instead of printing")
	duration   = flag.Duration("duration", time.Minute, "load test duration")
)

func clientConfig(room, user int64) client.Config {
	return client.Config{
		URL:               *serverAddr,
		RoomID:            room,
		UID:               user,
		Key:               *key,
		Protover:          *protover,
		Platform:          "web",
		HeartbeatInterval: *heartbeat,
	}
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *load > 0 {
		runLoadTest(ctx)
		return
	}

	log.Printf("Starting test client...")
	log.Printf("  Server: %s", *serverAddr)
	log.Printf("  RoomID: %d", *roomID)

	c := client.New(clientConfig(*roomID, *uid), protocol.WithRegistry(command.NewRegistry()))
	h := client.HandlerFuncs{
		Command: printCommand,
		HeartbeatResponse: func(resp *protocol.HeartbeatResponse) {
			log.Printf("Popularity: %d", resp.Popularity)
		},
	}
	if err := c.Run(ctx, h); err != nil {
		log.Printf("Client stopped: %v", err)
		os.Exit(1)
	}
	log.Printf("Client stopped")
}

// printCommand 按命令类型输出可读的摘要
func printCommand(cmd protocol.Command) {
	switch c := cmd.(type) {
	case *command.DanmuMsg:
		content, _ := c.Content()
		sender, err := c.Sender()
		if err != nil {
			log.Printf("[弹幕] %s", content)
			return
		}
		if medal, _ := c.Medal(); medal != nil {
			log.Printf("[弹幕] [%s %d] %s: %s", medal.Name, medal.Level, sender.Username, content)
			return
		}
		log.Printf("[弹幕] %s: %s", sender.Username, content)
	case *command.SendGift:
		log.Printf("[礼物] %s %s %s x%d", c.Data.Uname, c.Data.Action, c.Data.GiftName, c.Data.Num)
	case *command.GuardBuy:
		log.Printf("[上舰] %s %s x%d", c.Data.Username, c.Data.GiftName, c.Data.Num)
	case *command.InteractWord:
		log.Printf("[进场] %s (msg_type=%d)", c.Data.Uname, c.Data.MsgType)
	case *command.WatchedChange:
		log.Printf("[观看] %s", c.Data.TextLarge)
	case *command.LikeInfoV3Update:
		log.Printf("[点赞] %d", c.Data.ClickCount)
	case *command.Live:
		log.Printf("[开播] room=%d", c.RoomID)
	case *command.Preparing:
		log.Printf("[下播] room=%s", c.RoomID)
	case *protocol.GenericCommand:
		if *verbose {
			log.Printf("[%s] %s", c.CommandName(), c.Raw)
			return
		}
		log.Printf("[%s]", c.CommandName())
	default:
		log.Printf("[%s]", cmd.CommandName())
	}
}
