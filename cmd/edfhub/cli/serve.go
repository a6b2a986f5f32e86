package cli

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"edfhub/internal/cert"
	"edfhub/internal/core"
	"edfhub/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := rootLogger()
			cfg := loadConfigOrDefault(logger)
			if addr != "" {
				cfg.ListenAddr = addr
			}

			c := core.New(cfg, logger)
			defer c.Close()

			srv := server.New(c, server.Config{Logger: logger, Tokens: c.Tokens})

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			var certMgr *cert.Manager
			if cfg.TLSEnabled() {
				certMgr = cert.New(cert.Config{Logger: logger})
				if err := certMgr.LoadFromConfig("server", map[string]cert.Source{
					"server": {CertFile: cfg.TLSCertFile, KeyFile: cfg.TLSKeyFile},
				}); err != nil {
					return err
				}
			}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				var err error
				if certMgr != nil {
					logger.Info("serving TLS", "addr", cfg.ListenAddr)
					err = srv.ListenAndServeTLS(cfg.ListenAddr, certMgr.TLSConfig())
				} else {
					err = srv.ListenAndServe(cfg.ListenAddr)
				}
				if err != nil {
					logger.Error("server error", "error", err)
				}
			}()

			<-ctx.Done()
			logger.Info("shutting down")
			if err := srv.Stop(context.Background()); err != nil {
				logger.Error("server stop error", "error", err)
			}
			wg.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides EDFHUB_LISTEN_ADDR)")
	return cmd
}
