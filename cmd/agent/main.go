package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"voice-agent-server-golang/internal/app"
	"voice-agent-server-golang/internal/config"
	log "voice-agent-server-golang/logger"
)

type runner interface {
	Run(ctx context.Context) error
}

// deps 命令依赖，测试时替换
type deps struct {
	loadConfig    func(envFile string) (*config.AppConfig, error)
	initLog       func(cfg config.LogConfig) error
	newServer     func(ctx context.Context, cfg *config.AppConfig) (runner, error)
	downloadFiles func(ctx context.Context, cfg *config.AppConfig, out io.Writer) error
}

func defaultDeps() deps {
	return deps{
		loadConfig: initConfig,
		initLog:    initLog,
		newServer: func(ctx context.Context, cfg *config.AppConfig) (runner, error) {
			return app.CreateApp(ctx, cfg)
		},
		downloadFiles: func(ctx context.Context, cfg *config.AppConfig, out io.Writer) error {
			return app.NewApp(cfg).DownloadFiles(ctx, out)
		},
	}
}

func newRootCmd(d deps) *cobra.Command {
	var envFile string

	setup := func() (*config.AppConfig, error) {
		cfg, err := d.loadConfig(envFile)
		if err != nil {
			return nil, err
		}
		if err := d.initLog(cfg.Log); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	start := func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		srv, err := d.newServer(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		log.Info("服务器已启动，按 Ctrl+C 退出")
		if err := srv.Run(cmd.Context()); err != nil {
			return err
		}
		log.Info("服务器已关闭")
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           "voice-agent",
		Short:         "Voice assistant worker: STT -> LLM -> TTS over websocket",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          start,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file loaded before the process environment")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Prewarm the worker and serve calls until interrupted",
		Args:  cobra.NoArgs,
		RunE:  start,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "download-files",
		Short: "Download model files used by the worker and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			return d.downloadFiles(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	})
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd(defaultDeps())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
