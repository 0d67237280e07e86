package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/polisight/backend/internal/app"
	"github.com/polisight/backend/internal/queue"
	"github.com/polisight/backend/internal/util"
	"github.com/polisight/backend/pkg/logger"
	"github.com/polisight/backend/pkg/logger/console"
)

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		Format: util.GetEnv("LOG_FORMAT"),
	})
	logger.Init(consoleLogger)

	svc, err := app.Build(ctx, app.ConfigFromEnv())
	if err != nil {
		logger.Fatal("[Worker] Failed to build service", "err", err)
	}
	defer func() {
		if err := svc.Close(context.Background()); err != nil {
			logger.Error("[Worker] Failed to close service", "err", err)
		}
	}()

	// Init rabbitmq
	conn, err := queue.Init()
	if err != nil {
		logger.Fatal("[Worker] Failed to connect to queue", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("[Worker] Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.IndexQueue}); err != nil {
		logger.Fatal("[Worker] Failed to declare queues", "err", err)
	}

	// One message at a time; a batch already runs its documents in parallel.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("[Worker] Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, false); err != nil {
		logger.Fatal("[Worker] Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.IndexQueue,
		queue.IndexQueue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("[Worker] Failed to start consuming", "queue", queue.IndexQueue, "err", err)
	}

	logger.Info("[Worker] Listening for messages", "queue", queue.IndexQueue)
	for {
		select {
		case <-ctx.Done():
			logger.Info("[Worker] Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("[Worker] Message channel closed", "queue", queue.IndexQueue)
				return
			}
			startTime := time.Now()
			logger.Info("[Worker] Received message", "queue", queue.IndexQueue)

			if err := queue.ProcessIndexMessage(ctx, svc, msg.Body); err != nil {
				logger.Error("[Worker] Error processing message", "queue", queue.IndexQueue, "err", err)
				queue.HandleProcessingError(consumerCh, msg, queue.IndexQueue, err)
			} else if err := msg.Ack(false); err != nil {
				logger.Error("[Worker] Failed to ack message", "err", err)
			}

			if metrics, ok := svc.AIMetrics(); ok {
				logger.Info(
					"[Worker] AI Metrics",
					"input_tokens", metrics.InputTokens,
					"output_tokens", metrics.OutputTokens,
					"total_tokens", metrics.TotalTokens,
					"duration", formatDuration(time.Duration(metrics.DurationMs)*time.Millisecond),
				)
			}
			logger.Info("[Worker] Processing time", "duration", formatDuration(time.Since(startTime)))
		}
	}
}
