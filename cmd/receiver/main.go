package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deploy-reconciler/pkg/auth"
	"deploy-reconciler/pkg/config"
	"deploy-reconciler/pkg/journal"
	"deploy-reconciler/pkg/logger"
	"deploy-reconciler/pkg/reconcile"
	"deploy-reconciler/pkg/receiver"
	"deploy-reconciler/pkg/transport"
	"deploy-reconciler/pkg/version"
)

var (
	cfgFile  string
	seedFile string
)

var rootCmd = &cobra.Command{
	Use:           "receiver",
	Short:         "Fold agent completion reports into task and node state",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume reports until interrupted",
	Example: `  receiver run --config /etc/deploy-reconciler/config.yaml
  RECON_STORE=memory receiver run --seed fixtures.yaml`,
	RunE: runReceiver,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String("receiver"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	runCmd.Flags().StringVar(&seedFile, "seed", "", "load tasks, nodes and networks from this file before consuming")
	rootCmd.AddCommand(runCmd, seedCmd, journalCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runReceiver(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	log := logger.New(&cfg.Logging).With(zap.String("receiver", cfg.Receiver.Name))
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if seedFile != "" {
		if err := seed(ctx, st, seedFile, log); err != nil {
			return err
		}
	}

	tr, err := openTransport(ctx, cfg, log)
	if err != nil {
		return err
	}

	var rec receiver.Recorder
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			_ = tr.Close()
			return err
		}
		defer j.Close()
		rec = j
	}

	rcl := reconcile.New(st, log.Named("reconcile"))
	d := reconcile.NewDispatcher(rcl, log.Named("dispatch"))
	log.Info("receiver configured",
		zap.String("transport", cfg.Transport.Type),
		zap.String("store", cfg.Store.Backend),
		zap.Any("kinds", d.Kinds()),
		zap.String("version", version.Build))

	err = receiver.New(tr, d, rec, log.Named("receiver")).Run(ctx)
	var te *receiver.TransportError
	if errors.As(err, &te) {
		log.Error("receiver stopped on transport failure", zap.Error(err))
	}
	return err
}

func openTransport(ctx context.Context, cfg *config.Config, log *zap.Logger) (transport.Transport, error) {
	switch cfg.Transport.Type {
	case "redis":
		r := cfg.Transport.Redis
		return transport.DialRedisQueue(ctx, transport.RedisOptions{
			Addr:         r.Addr,
			Password:     r.Password,
			DB:           r.DB,
			Queue:        r.Queue,
			Consumer:     cfg.Receiver.Name,
			BlockTimeout: r.BlockTimeout,
		}, log.Named("transport.redis"))
	case "websocket":
		ws := cfg.Transport.WebSocket
		var verify transport.VerifyFunc
		if ws.JWTSecret != "" {
			signer, err := auth.NewSigner(ws.JWTSecret)
			if err != nil {
				return nil, err
			}
			verify = signer.Verify
		}
		hub := transport.NewWSHub(ws.InboxSize, verify, log.Named("transport.ws"))
		tlsCfg, err := transport.TLSFiles{CertFile: ws.TLSCert, KeyFile: ws.TLSKey, ClientCA: ws.ClientCA}.ServerConfig()
		if err != nil {
			return nil, err
		}
		if _, err := hub.Start(ws.Listen, tlsCfg); err != nil {
			return nil, err
		}
		return hub, nil
	default:
		return nil, fmt.Errorf("unsupported transport: %q", cfg.Transport.Type)
	}
}
