package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deploy-reconciler/pkg/agent"
	"deploy-reconciler/pkg/auth"
	"deploy-reconciler/pkg/logger"
	"deploy-reconciler/pkg/reconcile"
	"deploy-reconciler/pkg/transport"
	"deploy-reconciler/pkg/version"
)

var (
	timeout  time.Duration
	logLevel string

	redisAddr     string
	redisPassword string
	redisDB       int
	queue         string

	controller string
	nodeID     string
	token      string
	caFile     string
	certFile   string
	keyFile    string
	insecure   bool

	secret   string
	agentID  string
	tokenTTL time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "reportctl",
	Short:         "Deliver completion reports to a receiver",
	Version:       version.Build,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var publishCmd = &cobra.Command{
	Use:   "publish <report.json|->",
	Short: "Push a report onto the receiver's redis queue",
	Example: `  reportctl publish --redis-addr 127.0.0.1:6379 --queue reports deploy.json
  echo '{"task_uuid":"T1","kind":"deploy"}' | reportctl publish -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := readReport(cmd, args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		cli := redis.NewClient(&redis.Options{Addr: redisAddr, Password: redisPassword, DB: redisDB})
		q := transport.NewRedisQueue(cli, queue, "reportctl", 0, newLogger())
		defer q.Close()
		if err := q.Publish(ctx, body); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published to %s\n", queue)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:     "send <report.json|->",
	Short:   "Send a report over the agent websocket and wait for its ack",
	Example: `  reportctl send --controller https://recv:8090 --node-id node-1 --token $TOKEN deploy.json`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := readReport(cmd, args[0])
		if err != nil {
			return err
		}
		tlsCfg, err := agent.TLSConfig(caFile, certFile, keyFile, insecure)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		rep, err := agent.Dial(ctx, controller, nodeID, token, tlsCfg, newLogger())
		if err != nil {
			return err
		}
		defer rep.Close()
		id, err := rep.Send(ctx, body)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "acknowledged delivery %s\n", id)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an agent token for the websocket hub",
	RunE: func(cmd *cobra.Command, _ []string) error {
		signer, err := auth.NewSigner(secret)
		if err != nil {
			return err
		}
		tok, err := signer.Generate(agentID, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "overall timeout")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	publishCmd.Flags().StringVar(&redisAddr, "redis-addr", envOr("RECON_REDIS_ADDR", "127.0.0.1:6379"), "redis address")
	publishCmd.Flags().StringVar(&redisPassword, "redis-password", os.Getenv("RECON_REDIS_PASSWORD"), "redis password")
	publishCmd.Flags().IntVar(&redisDB, "redis-db", 0, "redis database")
	publishCmd.Flags().StringVar(&queue, "queue", envOr("RECON_REDIS_QUEUE", "reports"), "queue name")

	sendCmd.Flags().StringVar(&controller, "controller", envOr("CONTROLLER_ADDR", "http://127.0.0.1:8090"), "receiver base URL")
	sendCmd.Flags().StringVar(&nodeID, "node-id", os.Getenv("NODE_ID"), "agent node id")
	sendCmd.Flags().StringVar(&token, "token", os.Getenv("AUTH_TOKEN"), "agent bearer token")
	sendCmd.Flags().StringVar(&caFile, "ca", "", "CA file for receiver TLS")
	sendCmd.Flags().StringVar(&certFile, "cert", "", "client TLS certificate (mTLS)")
	sendCmd.Flags().StringVar(&keyFile, "key", "", "client TLS key (mTLS)")
	sendCmd.Flags().BoolVar(&insecure, "insecure", false, "skip TLS verify")

	tokenCmd.Flags().StringVar(&secret, "secret", os.Getenv("RECON_WS_JWT_SECRET"), "hub jwt secret")
	tokenCmd.Flags().StringVar(&agentID, "agent", "", "agent node id")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("agent")

	rootCmd.AddCommand(publishCmd, sendCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	return logger.New(&logger.Config{Level: logLevel, Format: "console", Output: "stdout"}).Named("reportctl")
}

// readReport loads a report from a file or stdin and checks it decodes.
func readReport(cmd *cobra.Command, path string) ([]byte, error) {
	var (
		body []byte
		err  error
	)
	if path == "-" {
		body, err = io.ReadAll(cmd.InOrStdin())
	} else {
		body, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	if _, err := reconcile.DecodeReport(body); err != nil {
		return nil, err
	}
	return body, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
