package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dyntypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/niltonstano/storefront-orderflow/internal/aws"
	"github.com/niltonstano/storefront-orderflow/internal/bootstrap"
	"github.com/niltonstano/storefront-orderflow/internal/catalog"
	"github.com/niltonstano/storefront-orderflow/internal/checkout"
	"github.com/niltonstano/storefront-orderflow/internal/config"
	"github.com/niltonstano/storefront-orderflow/internal/crm"
	busevents "github.com/niltonstano/storefront-orderflow/internal/events"
	"github.com/niltonstano/storefront-orderflow/internal/handlers"
	"github.com/niltonstano/storefront-orderflow/internal/idempotency"
	"github.com/niltonstano/storefront-orderflow/internal/notify"
	"github.com/niltonstano/storefront-orderflow/internal/orders"
	"github.com/niltonstano/storefront-orderflow/internal/payments"
)

func setupRouter(h handlers.Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, h)

	return r
}

func main() {
	cfg := config.Load()
	config.InitLogger()

	ctx := context.Background()
	retryOpts := bootstrap.Options{
		MaxAttempts: cfg.BootstrapMaxAttempts,
		Delay:       cfg.BootstrapDelay,
	}

	// the order store is startup-critical: serving checkouts against a store we
	// could never reach is unsafe, so exhaustion here kills the process
	var clients *aws.AWSClients
	err := bootstrap.WithRetry(ctx, "order-store", func(ctx context.Context) error {
		c, err := aws.NewAWSClients(ctx)
		if err != nil {
			return err
		}
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, err = c.DynamoDB.GetItem(probeCtx, &dynamodb.GetItemInput{
			TableName: &cfg.OrdersTable,
			Key: map[string]dyntypes.AttributeValue{
				"order_id": &dyntypes.AttributeValueMemberS{Value: "startup-probe"},
			},
		})
		if err != nil {
			return err
		}
		clients = c
		return nil
	}, retryOpts)
	if err != nil {
		slog.Error("fatal bootstrap failure", "err", err)
		os.Exit(1)
	}

	var lookup catalog.Lookup = catalog.NewStore(clients.DynamoDB, cfg.CatalogTable)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		err := bootstrap.WithRetry(ctx, "redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}, retryOpts)
		if err != nil {
			slog.Error("fatal bootstrap failure", "err", err)
			os.Exit(1)
		}
		lookup = catalog.NewCache(rdb, lookup, cfg.CatalogCacheTTL)
	}

	dispatcher := busevents.NewDispatcher(busevents.Config{
		Workers:   cfg.DispatcherWorkers,
		QueueSize: cfg.DispatcherQueueSize,
		Reporter:  aws.NewMetricsReporter(clients.CloudWatch, cfg.MetricsNamespace),
	})
	defer dispatcher.Close()

	if cfg.SMTPHost != "" {
		emailListener := notify.NewEmailListener(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
		dispatcher.Subscribe(busevents.OrderCreated, "order-confirmation-email", emailListener.Handle)
	}
	if cfg.CRMQueueURL != "" {
		crmListener := crm.NewListener(aws.NewPublisher(clients.SQS, cfg.CRMQueueURL))
		dispatcher.Subscribe(busevents.OrderCreated, "crm-sync", crmListener.Handle)
	}

	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.IdempotencyTable)
	guard := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL, cfg.InFlightStaleAfter)

	r := setupRouter(handlers.Handlers{
		Checkout: checkout.NewService(orderStore, guard, lookup, dispatcher),
		Payments: payments.NewService(orderStore),
		Orders:   orderStore,
	})

	if cfg.RunLocal {
		addr := ":" + cfg.Port
		slog.Info("running local server", "addr", addr)
		if err := r.Run(addr); err != nil {
			slog.Error("local server exited", "err", err)
			os.Exit(1)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
