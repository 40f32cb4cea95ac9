package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/malekus40/ticket-reimbursement-system/internal/auth"
	"github.com/malekus40/ticket-reimbursement-system/internal/tickets"
	"github.com/malekus40/ticket-reimbursement-system/internal/validation"
)

const (
	msgManagersCannotCreate  = "Finance Managers cannot send tickets"
	msgEmployeesCannotUpdate = "Employees cannot change status"
	msgCreateFailed          = "Ticket creation failed"
	msgStatusRequired        = "New status is required"
	msgUpdateFailed          = "Ticket status update failed"
)

// TicketService is the ticket lifecycle as seen by the HTTP layer.
type TicketService interface {
	CreateTicket(ctx context.Context, in tickets.CreateInput) (*tickets.CreateResult, error)
	UpdateTicketStatus(ctx context.Context, owner, ticketID, newStatus string) (*tickets.Ticket, error)
	GetPendingTickets(ctx context.Context) ([]tickets.Ticket, error)
	GetTicketsByUser(ctx context.Context, owner string) ([]tickets.Ticket, error)
}

// RegisterTicketRoutes registers the /tickets routes behind the bearer token gate.
func RegisterTicketRoutes(r *gin.Engine, svc TicketService, issuer *auth.Issuer, log *zap.Logger) {
	v := validation.New()

	g := r.Group("/tickets", auth.Authenticate(issuer, log))

	g.POST("", auth.RequireRole(auth.RoleEmployee, msgManagersCannotCreate), func(c *gin.Context) {
		var req validation.CreateTicketRequest
		if err := validation.BindAndValidate(c, &req, v, msgCreateFailed); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		id, _ := auth.IdentityFrom(c)
		if req.Username != "" && req.Username != id.Username {
			c.JSON(http.StatusForbidden, gin.H{"message": auth.MsgForbidden})
			return
		}

		res, err := svc.CreateTicket(c.Request.Context(), tickets.CreateInput{
			Owner:          id.Username,
			Amount:         req.Amount,
			Description:    req.Description,
			IdempotencyKey: c.GetHeader("Idempotency-Key"),
		})
		switch {
		case errors.Is(err, tickets.ErrIdempotencyConflict):
			c.JSON(http.StatusConflict, gin.H{"message": "Idempotency-Key was already used for a different ticket"})
			return
		case errors.Is(err, tickets.ErrRequestInFlight):
			c.JSON(http.StatusConflict, gin.H{"message": "A request with this Idempotency-Key is still in progress"})
			return
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"message": msgCreateFailed})
			return
		}

		if res.Replayed {
			c.JSON(http.StatusOK, gin.H{"message": "Ticket already created", "ticket": res.Ticket})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Ticket created successfully", "ticket": res.Ticket})
	})

	g.PATCH("/:username/:ticket_id", auth.RequireRole(auth.RoleManager, msgEmployeesCannotUpdate), func(c *gin.Context) {
		var req validation.UpdateStatusRequest
		if err := validation.BindAndValidate(c, &req, v, msgStatusRequired); err != nil {
			return
		}

		updated, err := svc.UpdateTicketStatus(c.Request.Context(), c.Param("username"), c.Param("ticket_id"), req.NewStatus)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": msgUpdateFailed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Ticket status updated successfully", "ticket": updated})
	})

	// registered before /:username so "pending" and "history" are not read as usernames
	g.GET("/pending", auth.RequireRole(auth.RoleManager, auth.MsgForbidden), func(c *gin.Context) {
		list, err := svc.GetPendingTickets(c.Request.Context())
		writeTicketList(c, list, err, "No pending tickets found")
	})

	g.GET("/history/:username", auth.RequireSelf("username"), func(c *gin.Context) {
		list, err := svc.GetTicketsByUser(c.Request.Context(), c.Param("username"))
		writeTicketList(c, list, err, "No tickets found for this user")
	})

	// TODO: restrict to self or manager once clients stop relying on reading other users' tickets.
	g.GET("/:username", func(c *gin.Context) {
		list, err := svc.GetTicketsByUser(c.Request.Context(), c.Param("username"))
		writeTicketList(c, list, err, "No tickets found for this user")
	})
}

// writeTicketList maps a query result to 200, 404 when empty, or 500 when the store failed.
func writeTicketList(c *gin.Context, list []tickets.Ticket, err error, emptyMessage string) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to retrieve tickets"})
		return
	}
	if len(list) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": emptyMessage})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tickets retrieved successfully", "tickets": list})
}
