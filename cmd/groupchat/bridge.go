package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"groupchat/internal/config"
	"groupchat/internal/model"
	"groupchat/internal/network"
	"groupchat/internal/service/chat"
	"groupchat/internal/service/server"
	"groupchat/internal/utils/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var bridgeAddr string

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Join the group headless and expose it over a websocket",
	Long: `bridge joins the group without a terminal UI. Events are streamed as
JSON on GET /ws and {"text": "..."} frames sent on the same socket are
broadcast to the group. GET /info describes the session.`,
	RunE: runBridge,
}

func init() {
	bridgeCmd.Flags().StringVar(&bridgeAddr, "listen", "", "HTTP listen address (default from config, 127.0.0.1:8080)")
}

func runBridge(cmd *cobra.Command, args []string) error {
	if err := log.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if cfg.Nickname == "" {
		return errors.New("bridge needs a nickname: use --nick or GROUPCHAT_NICK")
	}
	addr := cfg.Bridge.Addr
	if bridgeAddr != "" {
		addr = bridgeAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	local, broadcast, err := network.GetLocalAdapterInfo(cfg.Adapter)
	if err != nil {
		return err
	}

	t, err := chat.Listen(chat.Config{
		Nickname:    cfg.Nickname,
		LocalIP:     local,
		BroadcastIP: broadcast,
		Port:        cfg.Port,
		Password:    config.Password(),
	})
	if err != nil {
		return err
	}
	defer t.Stop()

	srv := server.NewHttpServer(t, server.Info{
		Nickname:  cfg.Nickname,
		Local:     local.String(),
		Broadcast: broadcast.String(),
		Port:      cfg.Port,
		Encrypted: t.Encrypted(),
	})
	// headless, so session notices go to the log as well as to the clients
	notices := chat.SinkFunc(func(_ context.Context, e model.Event) {
		if e.Origin == model.OriginInfo {
			log.Info("session", zap.String("notice", e.Message.Body))
		}
	})
	if err := t.Start(chat.MultiSink{srv, notices}); err != nil {
		return err
	}

	go func() {
		select {
		case <-t.Done():
			log.Error("transport stopped", zap.Error(t.Err()))
			stop()
		case <-ctx.Done():
		}
	}()

	return srv.Run(ctx, addr)
}
