package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"

	"parking-gateway/internal/config"
	"parking-gateway/internal/logging"
	"parking-gateway/internal/server"
	"parking-gateway/middleware/requestid"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type rootOptions struct {
	cfgFile string
	envFile string
	v       *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "gateway",
		Short:         "Rate-limiting reverse proxy for the parking marketplace API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.LoadEnvFile(opts.envFile); err != nil {
				return err
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "YAML config file (optional)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", ".env file loaded before reading the environment")

	root.AddCommand(newServeCmd(opts), newConfigCmd(opts))
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway in front of the upstream API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.v, opts.cfgFile)
			if err != nil {
				return err
			}
			if cfg.Server.UpstreamURL == "" {
				return errors.New("UPSTREAM_URL (or --upstream) is required")
			}

			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			proxy, err := newProxy(cfg.Server.UpstreamURL, logger)
			if err != nil {
				return err
			}

			srv, err := server.New(cfg, proxy, server.WithLogger(logger))
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger.Info("gateway starting",
				zap.String("listen_addr", cfg.Server.ListenAddr),
				zap.String("metrics_addr", cfg.Server.MetricsAddr),
				zap.String("upstream", cfg.Server.UpstreamURL),
				zap.Int("concurrency_max", cfg.Concurrency.Max),
				zap.Duration("concurrency_timeout", cfg.Concurrency.Timeout))

			return srv.Run(ctx)
		},
	}

	f := cmd.Flags()
	f.String("listen", ":8080", "API listen address")
	f.String("upstream", "", "upstream API base URL")
	f.String("metrics-listen", ":9090", "metrics listen address (empty disables)")
	f.Int64("window-ms", 0, "fixed window length in milliseconds")
	f.Int64("max-requests", 0, "requests allowed per window")
	f.String("algorithm", config.AlgorithmFixedWindow, "fixed-window or token-bucket")
	f.String("store", config.StoreMemory, "counter store: memory or redis")
	f.String("log-level", "info", "debug, info, warn or error")
	bindFlags(opts.v, f, map[string]string{
		"listen":         "server.listen_addr",
		"upstream":       "server.upstream_url",
		"metrics-listen": "server.metrics_addr",
		"window-ms":      "rate_limit.window_ms",
		"max-requests":   "rate_limit.max_requests",
		"algorithm":      "rate_limit.algorithm",
		"store":          "rate_limit.store",
		"log-level":      "log.level",
	})
	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.v, opts.cfgFile)
			if err != nil {
				return err
			}
			cfg.Redis.Password = redact(cfg.Redis.Password)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

// bindFlags liga cada flag à chave viper correspondente. Flag não informada
// não sobrescreve ambiente nem arquivo.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		_ = v.BindPFlag(key, fs.Lookup(flag))
	}
}

func newProxy(upstream string, logger *zap.Logger) (http.Handler, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream %q: %w", upstream, err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error("proxy error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestid.FromContext(r.Context())),
			zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	return proxy, nil
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}
