package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"groupchat/internal/config"
	"groupchat/internal/cryptographic/protect"
	"groupchat/internal/network"
	"groupchat/internal/repository/preferences"
	"groupchat/internal/service/app"
	"groupchat/internal/service/redis"
	"groupchat/internal/utils/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	cfgFile  string
	nickname string
	port     int
	adapter  string
	logLevel string

	// Set during PersistentPreRun
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "groupchat",
	Short: "Serverless encrypted group chat for the local network",
	Long: `groupchat broadcasts short text messages to everyone on the same LAN
segment. Messages are sealed with a key derived from a shared password;
peers with a different password silently ignore each other.

The password is read from GROUPCHAT_PASSWORD or entered in the setup form.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		flags := cmd.Flags()
		if flags.Changed("nick") {
			cfg.Nickname = nickname
		}
		if flags.Changed("port") {
			cfg.Port = port
			cfg.PortSet = true
		}
		if flags.Changed("adapter") {
			cfg.Adapter = adapter
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		return cfg.Validate()
	},
	RunE: runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <user config dir>/groupchat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nickname, "nick", "", "nickname shown to other peers")
	rootCmd.PersistentFlags().IntVar(&port, "port", 29999, "UDP port shared by the group")
	rootCmd.PersistentFlags().StringVar(&adapter, "adapter", "", "network adapter, by MAC address or interface name")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(bridgeCmd, adaptersCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	// the terminal belongs to the UI, so logs go to a file
	logFile := cfg.LogFile
	if logFile == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		logFile = filepath.Join(dir, "groupchat", "groupchat.log")
	}
	if err := log.Init(cfg.LogLevel, logFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	adapters, err := network.ListAdapters()
	if err != nil {
		return err
	}

	overrides := app.Overrides{
		Nickname: cfg.Nickname,
		Adapter:  cfg.Adapter,
		Password: config.Password(),
	}
	if cfg.PortSet {
		overrides.Port = cfg.Port
	}
	ui := app.NewApp(store, protect.Default(), adapters, overrides)
	return ui.Run(ctx)
}

func openStore(ctx context.Context, cfg *config.Config) (preferences.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		rs, err := redis.Dial(ctx, cfg.Store.RedisAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Store.RedisAddr, err)
		}
		return preferences.NewRedisStore(rs, cfg.Store.RedisKey), func() { rs.Close() }, nil
	default:
		path := cfg.Store.Path
		if path == "" {
			var err error
			if path, err = preferences.DefaultPath(); err != nil {
				return nil, nil, err
			}
		}
		log.Debug("preferences file", zap.String("path", path))
		return preferences.NewFileStore(path), func() {}, nil
	}
}
