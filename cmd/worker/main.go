package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	log "github.com/sirupsen/logrus"

	"github.com/hideyau28/hk-marketplace-sub002/internal/aws"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	logger := log.WithField("component", "worker")

	clients, err := aws.NewClients(context.Background())
	if err != nil {
		logger.WithError(err).Fatal("failed to init aws clients")
	}

	p := NewProcessor(clients, os.Getenv("ORDERS_TABLE"))

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if os.Getenv("RUN_LOCAL") == "true" {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"tenant_id":"local-tenant","order_id":"local-order-1"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{Body: testBody},
			},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			logger.WithError(err).Fatal("local handler error")
		}
		return
	}

	lambda.Start(p.Handle)
}
