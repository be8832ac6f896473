package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-pos-cartflow/internal/aws"
	"github.com/imrishuroy/go-pos-cartflow/internal/checkout"
	"github.com/imrishuroy/go-pos-cartflow/internal/config"
	"github.com/imrishuroy/go-pos-cartflow/internal/handlers"
	"github.com/imrishuroy/go-pos-cartflow/internal/heldsales"
	"github.com/imrishuroy/go-pos-cartflow/internal/idempotency"
	"github.com/imrishuroy/go-pos-cartflow/internal/logger"
	"github.com/imrishuroy/go-pos-cartflow/internal/session"
	"github.com/imrishuroy/go-pos-cartflow/internal/transactions"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestLogger(logger.Log))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, h)

	return r
}

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

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	clients, err := aws.NewClients(ctx, cfg.Region, cfg.Endpoint)
	if err != nil {
		log.Fatal("failed to init aws clients", zap.Error(err))
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("invalid REDIS_URL", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	txStore := transactions.NewStore(clients.DynamoDB, cfg.TransactionsTable, cfg.IdempotencyTable)
	idemStore := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)

	var publisher checkout.Publisher
	if cfg.QueueURL != "" {
		publisher = checkout.NewQueuePublisher(aws.NewPublisher(clients.SQS, cfg.QueueURL))
	} else {
		log.Warn("TRANSACTIONS_QUEUE_URL not set, transaction events are not published")
	}
	svc := checkout.NewService(checkout.NewAssembler(), txStore, publisher, cfg.SaveTimeout, log)

	h := handlers.New(handlers.HandlerConfig{
		Sessions:       session.NewRegistry(),
		Checkout:       svc,
		Transactions:   txStore,
		Idempotency:    idemStore,
		HeldSales:      heldsales.NewStore(rdb, cfg.HeldSaleTTL),
		Metrics:        aws.NewMetricsClient(clients.CloudWatch, cfg.MetricsNamespace, cfg.MetricsEnabled),
		DefaultTaxRate: cfg.DefaultTaxRate,
		Logger:         log,
	})

	r := setupRouter(h)

	// RUN_LOCAL=true runs a plain HTTP server for development.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		log.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			log.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
