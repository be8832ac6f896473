package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/imrishuroy/go-pos-cartflow/internal/aws"
	"github.com/imrishuroy/go-pos-cartflow/internal/config"
	"github.com/imrishuroy/go-pos-cartflow/internal/logger"
	"github.com/imrishuroy/go-pos-cartflow/internal/transactions"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Initialize(cfg.Env); err != nil {
		panic(err)
	}
	log := logger.Log
	defer func() { _ = log.Sync() }()

	clients, err := aws.NewClients(context.Background(), cfg.Region, cfg.Endpoint)
	if err != nil {
		log.Fatal("failed to init aws clients", zap.Error(err))
	}

	p := NewProcessor(
		transactions.NewStore(clients.DynamoDB, cfg.TransactionsTable, ""),
		aws.NewMetricsClient(clients.CloudWatch, cfg.MetricsNamespace, cfg.MetricsEnabled),
		log,
	)

	// If RUN_LOCAL=true, process a single simulated SQS event and exit.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			log.Fatal("LOCAL_SQS_BODY must hold a transaction.completed event")
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		}
		resp, err := p.Handle(context.Background(), event)
		if err != nil || len(resp.BatchItemFailures) > 0 {
			log.Fatal("local handler error", zap.Error(err), zap.Int("failures", len(resp.BatchItemFailures)))
		}
		return
	}

	lambda.Start(p.Handle)
}
