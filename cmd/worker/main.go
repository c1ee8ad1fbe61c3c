package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/niltonstano/storefront-orderflow/internal/aws"
	"github.com/niltonstano/storefront-orderflow/internal/bootstrap"
	"github.com/niltonstano/storefront-orderflow/internal/config"
	"github.com/niltonstano/storefront-orderflow/internal/crm"
	"github.com/niltonstano/storefront-orderflow/internal/orders"
)

// logSyncer stands in when no CRM webhook is configured.
type logSyncer struct{}

func (logSyncer) SyncOrder(ctx context.Context, msg crm.SyncMessage) error {
	slog.Info("crm sync (log only)", "order_id", msg.OrderID, "status", msg.Status, "total", msg.Total)
	return nil
}

func main() {
	cfg := config.Load()
	config.InitLogger()

	ctx := context.Background()

	var clients *aws.AWSClients
	err := bootstrap.WithRetry(ctx, "aws-clients", func(ctx context.Context) error {
		c, err := aws.NewAWSClients(ctx)
		if err != nil {
			return err
		}
		clients = c
		return nil
	}, bootstrap.Options{MaxAttempts: cfg.BootstrapMaxAttempts, Delay: cfg.BootstrapDelay})
	if err != nil {
		slog.Error("fatal bootstrap failure", "err", err)
		os.Exit(1)
	}

	var syncer crm.Syncer = logSyncer{}
	if cfg.CRMWebhookURL != "" {
		syncer = crm.NewWebhookSyncer(cfg.CRMWebhookURL)
	}

	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.IdempotencyTable)
	p := NewProcessor(orderStore, syncer)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if cfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"order_id":"local-order-1","idempotency_key":"local-key-1"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{Body: testBody},
			},
		}
		if err := p.Handle(ctx, event); err != nil {
			slog.Error("local handler error", "err", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}
