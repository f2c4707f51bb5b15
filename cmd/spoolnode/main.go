package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"spoolchain/core"
	"spoolchain/node"
	"spoolchain/node/ingest"
	"spoolchain/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{Use: "spoolnode"}
	rootCmd.AddCommand(runCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var env string
	var minerHex string
	var feedURL string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "start the archival node: store, packer, ingestion and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			configureLogging(cfg)

			minerAddr := core.Address{}
			if minerHex != "" {
				minerAddr, err = core.AddressFromHex(minerHex)
				if err != nil {
					return fmt.Errorf("parse --miner: %w", err)
				}
			}

			var n *node.Node
			ledger := core.NewLedger(core.SystemClock{}, core.RandomSlotHashes, core.SinkFunc(func(e core.Event) {
				if me, ok := e.(core.MineEvent); ok && n != nil {
					n.OnMineEvent(me)
				}
			}))
			ledger.Initialize()

			n, err = node.New(cfg, ledger)
			if err != nil {
				return fmt.Errorf("start node: %w", err)
			}
			n.StartMetrics()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			feed := make(chan ingest.ProcessedTx, 256)
			n.RunIngestion(feed, minerAddr, func() uint64 { return ledger.Epoch().PackingDifficulty })

			if feedURL != "" {
				src := ingest.NewWSSource(feedURL)
				go func() {
					if err := src.Run(ctx, feed); err != nil {
						logrus.WithError(err).Warn("live feed connection ended")
					}
				}()
			}

			logrus.WithFields(logrus.Fields{
				"web_port":     cfg.Metrics.WebPort,
				"mine_port":    cfg.Metrics.MinePort,
				"archive_port": cfg.Metrics.ArchivePort,
			}).Info("spoolnode running")

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return n.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment-specific config overlay (e.g. \"production\")")
	cmd.Flags().StringVar(&minerHex, "miner", "", "hex-encoded miner address the challenge loop services")
	cmd.Flags().StringVar(&feedURL, "feed-ws", "", "websocket URL of a remote node's live transaction feed")
	return cmd
}

func configureLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			logrus.SetOutput(f)
		}
	}
}
