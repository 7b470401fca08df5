// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	wikichat "github.com/askwiki/wikichat"
	"github.com/askwiki/wikichat/internal/chat"
	"github.com/askwiki/wikichat/internal/events"
	"github.com/askwiki/wikichat/pkg/adapter"
	"github.com/askwiki/wikichat/pkg/broker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background consumer that answers queued questions",
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

		consumer, err := con.CreateConsumer(&adapter.ConsumerConfig{
			QueueName: cfg.Rabbit.Queue,
		})
		if err != nil {
			return err
		}

		// One publisher feeds the main exchange (responses on the shared
		// queue and retry republishes), another the default exchange for
		// requests that name a private reply queue.
		mainPub, err := con.CreatePublisher(&adapter.PublisherConfig{
			ExchangeName: cfg.Rabbit.Exchange,
			RoutingKey:   cfg.Rabbit.Queue,
			AppId:        "wikichat-worker",
		})
		if err != nil {
			return err
		}
		defer func() { _ = mainPub.Close() }()

		directPub, err := con.CreatePublisher(&adapter.PublisherConfig{
			AppId: "wikichat-worker",
		})
		if err != nil {
			return err
		}
		defer func() { _ = directPub.Close() }()

		llm := newLLM(cfg)
		wiki := chat.NewWikipedia(cfg.Wiki.Lang)
		handler := chat.NewHandler(llm, wiki, mainPub, directPub, log)

		router := wikichat.NewRouter()
		router.Default(handler.HandleQuestion)

		// Audit events share the queue; acknowledge them without work.
		for _, t := range []string{
			events.TypeExplanationRequested,
			events.TypeExplanationCompleted,
			events.TypeExplanationFailed,
		} {
			router.Add(t, func(_ context.Context, evt broker.Event, _ broker.Message) error {
				log.Debug("audit event observed",
					zap.String("event_type", evt.String("event_type")),
					zap.String("request_id", evt.String("request_id")),
				)

				return nil
			})
		}

		listener := wikichat.NewListener(consumer, mainPub)
		listener.SetLogger(log)

		if err := listener.SetMaxRetries(cfg.Rabbit.MaxRetries); err != nil {
			return err
		}

		instance := listener.Init(router)

		go func() {
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			sig := <-stop

			log.Info("shutting down", zap.String("signal", sig.String()))

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := instance.Shutdown(ctx); err != nil {
				log.Error("shutdown", zap.Error(err))
			}
		}()

		log.Info("worker consuming", zap.String("queue", cfg.Rabbit.Queue))

		err = instance.ListenAndServe()
		if _, ok := err.(adapter.ConsumerClosedError); ok {
			return nil
		}

		// Connection loss is fatal to the loop and surfaces to the operator.
		log.Error("consumer loop ended", zap.Error(err))

		return err
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
