package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/malekus40/ticket-reimbursement-system/internal/auth"
	"github.com/malekus40/ticket-reimbursement-system/internal/aws/awstest"
	"github.com/malekus40/ticket-reimbursement-system/internal/users"
)

const testTable = "ReimbursementTable"

type testEnv struct {
	router *gin.Engine
	db     *awstest.FakeDynamoDB
	sqs    *awstest.FakeSQS
}

type ticketBody struct {
	TicketID string  `json:"ticket_id"`
	Username string  `json:"username"`
	Amount   float64 `json:"amount"`
	Status   string  `json:"status"`
}

type response struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	Ticket  ticketBody   `json:"ticket"`
	Tickets []ticketBody `json:"tickets"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := awstest.NewFakeDynamoDB()
	sqs := awstest.NewFakeSQS()
	cfg := HandlerConfig{
		DynamoDBClient: db,
		SQSClient:      sqs,
		TableName:      testTable,
		StatusIndex:    "status-index",
		QueueURL:       "https://sqs.local/ticket-events",
		IdempotencyTTL: time.Hour,
		BcryptCost:     bcrypt.MinCost,
		Issuer:         auth.NewIssuer("test-secret", time.Hour),
	}

	// managers are provisioned out of band
	svc := users.NewService(users.NewStore(db, testTable, nil), bcrypt.MinCost, nil)
	if _, err := svc.Provision(context.Background(), "bob", "bob-pw", auth.RoleManager); err != nil {
		t.Fatalf("provision manager: %v", err)
	}

	return &testEnv{router: NewRouter(cfg), db: db, sqs: sqs}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}, headers ...string) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp response
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, resp
}

func (e *testEnv) register(t *testing.T, username, password string) {
	t.Helper()
	code, resp := e.do(t, http.MethodPost, "/login/register", "", gin.H{"username": username, "password": password})
	if code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d (%s)", username, code, resp.Message)
	}
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	code, resp := e.do(t, http.MethodPost, "/login", "", gin.H{"username": username, "password": password})
	if code != http.StatusOK || resp.Token == "" {
		t.Fatalf("login %s: expected 200 with token, got %d (%s)", username, code, resp.Message)
	}
	return resp.Token
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	code, _ := env.do(t, http.MethodGet, "/health", "", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestTicketLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice-pw")
	alice := env.login(t, "alice", "alice-pw")
	bob := env.login(t, "bob", "bob-pw")

	code, resp := env.do(t, http.MethodPost, "/tickets", alice, gin.H{"amount": 100, "description": "taxi"})
	if code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", code, resp.Message)
	}
	created := resp.Ticket
	if created.Status != "pending" || created.Username != "alice" || created.TicketID == "" {
		t.Fatalf("unexpected created ticket: %+v", created)
	}

	code, resp = env.do(t, http.MethodGet, "/tickets/pending", bob, nil)
	if code != http.StatusOK || len(resp.Tickets) != 1 || resp.Tickets[0].TicketID != created.TicketID {
		t.Fatalf("pending: expected the new ticket, got %d %+v", code, resp.Tickets)
	}

	path := "/tickets/alice/" + created.TicketID
	code, resp = env.do(t, http.MethodPatch, path, bob, gin.H{"newStatus": "approved"})
	if code != http.StatusOK || resp.Ticket.Status != "approved" {
		t.Fatalf("approve: expected 200 approved, got %d %+v", code, resp)
	}

	code, resp = env.do(t, http.MethodPatch, path, bob, gin.H{"newStatus": "denied"})
	if code != http.StatusBadRequest || resp.Message != msgUpdateFailed {
		t.Fatalf("deny after approve: expected 400 %q, got %d %q", msgUpdateFailed, code, resp.Message)
	}

	code, _ = env.do(t, http.MethodGet, "/tickets/pending", bob, nil)
	if code != http.StatusNotFound {
		t.Fatalf("pending after approve: expected 404, got %d", code)
	}

	code, resp = env.do(t, http.MethodGet, "/tickets/history/alice", alice, nil)
	if code != http.StatusOK || len(resp.Tickets) != 1 || resp.Tickets[0].Status != "approved" {
		t.Fatalf("history: expected one approved ticket, got %d %+v", code, resp.Tickets)
	}

	if got := len(env.sqs.Messages()); got != 2 {
		t.Fatalf("expected 2 ticket events, got %d", got)
	}
}

func TestGate(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice-pw")
	env.register(t, "carol", "carol-pw")
	alice := env.login(t, "alice", "alice-pw")
	bob := env.login(t, "bob", "bob-pw")

	before := env.db.Len()
	code, resp := env.do(t, http.MethodPost, "/tickets", bob, gin.H{"amount": 5, "description": "coffee"})
	if code != http.StatusForbidden || resp.Message != msgManagersCannotCreate {
		t.Fatalf("manager create: expected 403 %q, got %d %q", msgManagersCannotCreate, code, resp.Message)
	}
	if env.db.Len() != before {
		t.Fatalf("manager create must not store anything")
	}

	cases := []struct {
		name    string
		method  string
		path    string
		token   string
		body    interface{}
		message string
	}{
		{"no token", http.MethodGet, "/tickets/alice", "", nil, auth.MsgForbidden},
		{"bad token", http.MethodGet, "/tickets/alice", "not-a-jwt", nil, auth.MsgForbidden},
		{"foreign history", http.MethodGet, "/tickets/history/carol", alice, nil, auth.MsgForbidden},
		{"employee lists pending", http.MethodGet, "/tickets/pending", alice, nil, auth.MsgForbidden},
		{"employee patches", http.MethodPatch, "/tickets/alice/x", alice, gin.H{"newStatus": "approved"}, msgEmployeesCannotUpdate},
		{"create for someone else", http.MethodPost, "/tickets", alice, gin.H{"username": "carol", "amount": 5, "description": "lunch"}, auth.MsgForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, resp := env.do(t, tc.method, tc.path, tc.token, tc.body)
			if code != http.StatusForbidden || resp.Message != tc.message {
				t.Fatalf("expected 403 %q, got %d %q", tc.message, code, resp.Message)
			}
		})
	}
}

func TestCreateTicket_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice-pw")
	alice := env.login(t, "alice", "alice-pw")

	for _, body := range []gin.H{
		{"description": "no amount"},
		{"amount": -3, "description": "negative"},
		{"amount": 3},
		{"amount": "3", "description": "string amount"},
	} {
		code, resp := env.do(t, http.MethodPost, "/tickets", alice, body)
		if code != http.StatusBadRequest || resp.Message != msgCreateFailed {
			t.Fatalf("body %v: expected 400 %q, got %d %q", body, msgCreateFailed, code, resp.Message)
		}
	}
}

func TestUpdateStatus_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	bob := env.login(t, "bob", "bob-pw")

	code, resp := env.do(t, http.MethodPatch, "/tickets/alice/t-1", bob, gin.H{})
	if code != http.StatusBadRequest || resp.Message != msgStatusRequired {
		t.Fatalf("missing status: expected 400 %q, got %d %q", msgStatusRequired, code, resp.Message)
	}

	code, resp = env.do(t, http.MethodPatch, "/tickets/alice/t-1", bob, gin.H{"newStatus": "pending"})
	if code != http.StatusBadRequest || resp.Message != msgUpdateFailed {
		t.Fatalf("illegal status: expected 400 %q, got %d %q", msgUpdateFailed, code, resp.Message)
	}

	code, resp = env.do(t, http.MethodPatch, "/tickets/alice/missing", bob, gin.H{"newStatus": "approved"})
	if code != http.StatusBadRequest || resp.Message != msgUpdateFailed {
		t.Fatalf("missing ticket: expected 400 %q, got %d %q", msgUpdateFailed, code, resp.Message)
	}
}

func TestCreateTicket_IdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice-pw")
	alice := env.login(t, "alice", "alice-pw")

	body := gin.H{"amount": 42, "description": "hotel"}
	code, first := env.do(t, http.MethodPost, "/tickets", alice, body, "Idempotency-Key", "k-1")
	if code != http.StatusCreated {
		t.Fatalf("first: expected 201, got %d (%s)", code, first.Message)
	}

	code, replay := env.do(t, http.MethodPost, "/tickets", alice, body, "Idempotency-Key", "k-1")
	if code != http.StatusOK || replay.Ticket.TicketID != first.Ticket.TicketID {
		t.Fatalf("replay: expected 200 with %s, got %d %+v", first.Ticket.TicketID, code, replay.Ticket)
	}

	code, _ = env.do(t, http.MethodPost, "/tickets", alice, gin.H{"amount": 43, "description": "hotel"}, "Idempotency-Key", "k-1")
	if code != http.StatusConflict {
		t.Fatalf("reused key: expected 409, got %d", code)
	}

	code, resp := env.do(t, http.MethodGet, "/tickets/alice", alice, nil)
	if code != http.StatusOK || len(resp.Tickets) != 1 {
		t.Fatalf("expected exactly one stored ticket, got %d %+v", code, resp.Tickets)
	}
}

func TestQueries_EmptyAndBackendFailure(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice-pw")
	alice := env.login(t, "alice", "alice-pw")

	code, resp := env.do(t, http.MethodGet, "/tickets/alice", alice, nil)
	if code != http.StatusNotFound || resp.Message != "No tickets found for this user" {
		t.Fatalf("empty: expected 404, got %d %q", code, resp.Message)
	}

	env.db.SetError(awstest.OpQuery, errors.New("throttled"))
	code, _ = env.do(t, http.MethodGet, "/tickets/alice", alice, nil)
	if code != http.StatusInternalServerError {
		t.Fatalf("backend failure: expected 500, got %d", code)
	}
}

func TestLoginAndRegister(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice-pw")

	code, resp := env.do(t, http.MethodPost, "/login/register", "", gin.H{"username": "alice", "password": "other"})
	if code != http.StatusBadRequest {
		t.Fatalf("duplicate register: expected 400, got %d %q", code, resp.Message)
	}

	code, _ = env.do(t, http.MethodPost, "/login/register", "", gin.H{"username": "dave"})
	if code != http.StatusBadRequest {
		t.Fatalf("register without password: expected 400, got %d", code)
	}

	code, resp = env.do(t, http.MethodPost, "/login", "", gin.H{"username": "alice", "password": "wrong"})
	if code != http.StatusUnauthorized || resp.Token != "" {
		t.Fatalf("bad password: expected 401 without token, got %d", code)
	}

	code, _ = env.do(t, http.MethodPost, "/login", "", gin.H{"username": "nobody", "password": "x"})
	if code != http.StatusUnauthorized {
		t.Fatalf("unknown user: expected 401, got %d", code)
	}
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t)
	env.router.GET("/panic", func(c *gin.Context) { panic("boom") })

	code, resp := env.do(t, http.MethodGet, "/panic", "", nil)
	if code != http.StatusInternalServerError || resp.Message != "Internal server error" {
		t.Fatalf("expected 500 Internal server error, got %d %q", code, resp.Message)
	}
}

func TestTicketsByUser_ReadableByAnyCaller(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice-pw")
	env.register(t, "carol", "carol-pw")
	alice := env.login(t, "alice", "alice-pw")
	carol := env.login(t, "carol", "carol-pw")
	bob := env.login(t, "bob", "bob-pw")

	code, resp := env.do(t, http.MethodPost, "/tickets", alice, gin.H{"amount": 30, "description": "train"})
	if code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", code, resp.Message)
	}

	for name, token := range map[string]string{"carol": carol, "bob": bob} {
		code, resp := env.do(t, http.MethodGet, "/tickets/alice", token, nil)
		if code != http.StatusOK || len(resp.Tickets) != 1 || resp.Tickets[0].Username != "alice" {
			t.Fatalf("%s GET /tickets/alice: expected 200 with alice's ticket, got %d %+v", name, code, resp.Tickets)
		}
	}

	code, resp = env.do(t, http.MethodGet, "/tickets/history/alice", carol, nil)
	if code != http.StatusForbidden || resp.Message != auth.MsgForbidden {
		t.Fatalf("carol GET /tickets/history/alice: expected 403, got %d %q", code, resp.Message)
	}
}

func TestCreateTicket_ConcurrentSameKey(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice-pw")
	alice := env.login(t, "alice", "alice-pw")

	env.db.SetError(awstest.OpTransactWriteItems, &types.TransactionCanceledException{
		Message: sdkaws.String("Transaction cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: sdkaws.String("TransactionConflict")},
			{Code: sdkaws.String("None")},
		},
	})

	code, _ := env.do(t, http.MethodPost, "/tickets", alice, gin.H{"amount": 42, "description": "hotel"}, "Idempotency-Key", "k-1")
	if code != http.StatusConflict {
		t.Fatalf("expected 409 while the same key is in flight, got %d", code)
	}
}
