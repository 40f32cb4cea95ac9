package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/malekus40/ticket-reimbursement-system/internal/auth"
	"github.com/malekus40/ticket-reimbursement-system/internal/aws"
	"github.com/malekus40/ticket-reimbursement-system/internal/events"
	"github.com/malekus40/ticket-reimbursement-system/internal/idempotency"
	"github.com/malekus40/ticket-reimbursement-system/internal/logging"
	"github.com/malekus40/ticket-reimbursement-system/internal/tickets"
	"github.com/malekus40/ticket-reimbursement-system/internal/users"
)

// HandlerConfig groups dependencies for the API routes.
type HandlerConfig struct {
	DynamoDBClient aws.DynamoDBAPI
	SQSClient      aws.SQSAPI
	TableName      string
	StatusIndex    string
	QueueURL       string
	IdempotencyTTL time.Duration
	BcryptCost     int
	Issuer         *auth.Issuer
	Logger         *zap.Logger
}

// NewRouter builds the gin engine with health, ticket and login routes.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	log := logging.OrNop(cfg.Logger)

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("panic recovered", zap.Any("panic", recovered), zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}))
	r.Use(logging.Middleware(log))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterTicketRoutes(r, NewTicketService(cfg), cfg.Issuer, log)
	RegisterUserRoutes(r, users.NewService(users.NewStore(cfg.DynamoDBClient, cfg.TableName, log), cfg.BcryptCost, log), cfg.Issuer, log)

	return r
}

// NewTicketService wires the ticket service to the table, idempotency records
// and event queue described by cfg.
func NewTicketService(cfg HandlerConfig) *tickets.Service {
	log := logging.OrNop(cfg.Logger)
	idem := idempotency.NewStore(cfg.DynamoDBClient, cfg.TableName, cfg.IdempotencyTTL, log)
	store := tickets.NewStore(cfg.DynamoDBClient, cfg.TableName, cfg.StatusIndex, idem, log)
	return tickets.NewService(store, log,
		tickets.WithIdempotency(idem),
		tickets.WithPublisher(events.FromConfig(cfg.SQSClient, cfg.QueueURL)),
	)
}
