package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shubinmi/phonelist"
	"github.com/shubinmi/phonelist/agent"
	"github.com/shubinmi/phonelist/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the phone list page",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cfg, logger)
	},
}

func serve(ctx context.Context, c *config.Config, log *zap.Logger) error {
	h := &phonelist.Handler{
		Static: c.Static,
		Filter: c.Filter,
		Log:    log,
	}
	r := phonelist.NewRouter(h)
	errCh := make(chan error, 2)

	switch c.Source {
	case config.SourceAgent:
		hub := agent.Server(c.Agent.Timeout, c.Agent.Token, log.Named("hub"))
		defer hub.Close()
		if c.Agent.Listen != "" {
			go func() {
				if err := hub.Run(ctx, c.Agent.Listen, c.Agent.Path); err != nil {
					errCh <- err
				}
			}()
		} else {
			hub.ReachMux(r, c.Agent.Path)
		}
		h.Dir = hub.Directory(c.Agent.ID)
		log.Info("directory via agent", zap.String("agent", c.Agent.ID), zap.String("path", c.Agent.Path))
	default:
		cl, err := c.LDAP.Client(log.Named("ldap"))
		if err != nil {
			return err
		}
		if cl != nil {
			h.Dir = cl
			log.Info("directory via ldap", zap.String("url", c.LDAP.URL), zap.String("base", c.LDAP.BaseDN))
		} else {
			log.Warn("ldap.url is not set, serving static entries only")
		}
	}

	srv := &http.Server{
		Addr:              c.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("listening", zap.String("addr", c.Listen))
		errCh <- errors.Wrap(srv.ListenAndServe(), "http server")
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
