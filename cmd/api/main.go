package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/hideyau28/hk-marketplace-sub002/internal/aws"
	"github.com/hideyau28/hk-marketplace-sub002/internal/handlers"
	"github.com/hideyau28/hk-marketplace-sub002/internal/payments"
	"github.com/hideyau28/hk-marketplace-sub002/internal/ratelimit"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	logger := log.WithField("component", "api")

	clients, err := aws.NewClients(context.Background())
	if err != nil {
		logger.WithError(err).Fatal("failed to init aws clients")
	}

	cfg := handlers.HandlerConfig{
		DynamoDBClient:   clients.DynamoDB,
		SQSClient:        clients.SQS,
		Metrics:          aws.NewMetrics(clients.CloudWatch),
		IdempotencyTable: os.Getenv("IDEMPOTENCY_TABLE"),
		OrdersTable:      os.Getenv("ORDERS_TABLE"),
		ProductsTable:    os.Getenv("PRODUCTS_TABLE"),
		TenantsTable:     os.Getenv("TENANTS_TABLE"),
		CountersTable:    os.Getenv("COUNTERS_TABLE"),
		ReceiptQueueURL:  os.Getenv("RECEIPT_QUEUE_URL"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		TTLWindow:        48 * time.Hour,
		Limiter: ratelimit.New(
			envDuration("RATE_LIMIT_WINDOW", time.Minute),
			envInt("RATE_LIMIT_MAX", 30),
			[]string{"POST:/orders"},
		),
		Providers: payments.NewRegistry(),
	}

	r := setupRouter(cfg)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		logger.WithField("addr", addr).Info("running local server")
		if err := r.Run(addr); err != nil {
			logger.WithError(err).Fatal("failed to run local server")
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

func envInt(name string, def int) int {
	if raw := os.Getenv(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return def
}

func envDuration(name string, def time.Duration) time.Duration {
	if raw := os.Getenv(name); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return def
}
