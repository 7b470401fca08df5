// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askwiki/wikichat/internal/chat"
	"github.com/askwiki/wikichat/internal/events"
	"github.com/askwiki/wikichat/internal/server"
	"github.com/askwiki/wikichat/pkg/adapter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		con, err := dial(cfg, log)
		if err != nil {
			log.Error("broker dial failed", zap.Error(err))

			return err
		}
		defer func() {
			if err := con.Close(); err != nil {
				log.Error("close broker connection", zap.Error(err))
			}
		}()

		requester, err := con.CreateRequester(&adapter.RequesterConfig{
			ExchangeName: cfg.Rabbit.Exchange,
			RoutingKey:   cfg.Rabbit.Queue,
			QueueName:    cfg.Rabbit.Queue,
			Mode:         adapter.ReplyMode(cfg.Rabbit.ReplyMode),
		})
		if err != nil {
			return err
		}
		defer func() { _ = requester.Close() }()

		// Audit events go through a confirm-mode publisher so the trail
		// survives silent broker drops.
		auditPub, err := con.CreatePublisherWithConfirmation(&adapter.PublisherConfig{
			ExchangeName: cfg.Rabbit.Exchange,
			RoutingKey:   cfg.Rabbit.Queue,
			AppId:        "wikichat-api",
		})
		if err != nil {
			return err
		}
		defer func() { _ = auditPub.Close() }()

		llm := newLLM(cfg)
		wiki := chat.NewWikipedia(cfg.Wiki.Lang)
		producer := events.NewProducer(auditPub, log)
		explainer := chat.NewExplainer(llm, wiki, producer, log)
		handler := server.NewChatHandler(explainer, requester, cfg.Rabbit.RequestTimeout, log)

		srv := &http.Server{
			Addr:    ":" + cfg.App.HTTPPort,
			Handler: server.NewRouter(handler, cfg.App.Env),
		}

		errCh := make(chan error, 1)

		go func() {
			log.Info("http api listening", zap.String("addr", srv.Addr))

			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-stop:
			log.Info("shutting down", zap.String("signal", sig.String()))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return srv.Shutdown(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
