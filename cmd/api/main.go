package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/malekus40/ticket-reimbursement-system/internal/auth"
	"github.com/malekus40/ticket-reimbursement-system/internal/aws"
	"github.com/malekus40/ticket-reimbursement-system/internal/config"
	"github.com/malekus40/ticket-reimbursement-system/internal/handlers"
	"github.com/malekus40/ticket-reimbursement-system/internal/logging"
	"github.com/malekus40/ticket-reimbursement-system/internal/users"
)

const localJWTSecret = "local-dev-secret"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New("ticket-api", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, using the local development secret")
		cfg.JWTSecret = localJWTSecret
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	if cfg.ProvisionManager != "" {
		if err := provisionManager(context.Background(), clients, cfg, logger); err != nil {
			logger.Fatal("provision manager", zap.Error(err))
		}
		return
	}

	if !cfg.RunLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	r := handlers.NewRouter(handlers.HandlerConfig{
		DynamoDBClient: clients.DynamoDB,
		SQSClient:      clients.SQS,
		TableName:      cfg.TableName,
		StatusIndex:    cfg.StatusIndex,
		QueueURL:       cfg.QueueURL,
		IdempotencyTTL: cfg.IdempotencyTTL,
		BcryptCost:     cfg.BcryptCost,
		Issuer:         auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Logger:         logger,
	})

	// --local or RUN_LOCAL=true serves HTTP directly for development.
	if cfg.RunLocal {
		if err := serveLocal(r, ":"+cfg.Port, logger); err != nil {
			logger.Fatal("local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

// serveLocal runs the HTTP server until SIGINT or SIGTERM, then drains
// in-flight requests.
func serveLocal(h http.Handler, addr string, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("running local server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// provisionManager creates the manager account named by --provision-manager.
func provisionManager(ctx context.Context, clients *aws.AWSClients, cfg *config.Config, logger *zap.Logger) error {
	username, password, ok := strings.Cut(cfg.ProvisionManager, ":")
	if !ok {
		return errors.New("--provision-manager expects username:password")
	}
	svc := users.NewService(users.NewStore(clients.DynamoDB, cfg.TableName, logger), cfg.BcryptCost, logger)
	_, err := svc.Provision(ctx, username, password, auth.RoleManager)
	return err
}
