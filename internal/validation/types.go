package validation

// CreateTicketRequest is the payload for POST /tickets.
type CreateTicketRequest struct {
	// Username defaults to the caller.
	Username    string  `json:"username,omitempty"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Description string  `json:"description" validate:"required,max=1024"`
}

// UpdateStatusRequest is the payload for PATCH /tickets/:username/:ticket_id.
// Legality of the target status is decided by the ticket service.
type UpdateStatusRequest struct {
	NewStatus string `json:"newStatus" validate:"required"`
}

// CredentialsRequest is the payload for POST /login and POST /login/register.
type CredentialsRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	// bcrypt input limit
	Password string `json:"password" validate:"required,max=72"`
}
