package idempotency

import "time"

const (
	ItemType = "IDEMPOTENCY"

	keyPrefix = "IDEMPOTENCY#"
	sortKey   = "IDEMPOTENCY"
)

// Record is persisted next to the ticket it produced. It lets a retried create
// with the same key return the original ticket instead of filing a second one.
type Record struct {
	PK             string    `dynamodbav:"PK"` // IDEMPOTENCY#<owner>#<key>
	SK             string    `dynamodbav:"SK"`
	ItemType       string    `dynamodbav:"itemType"`
	Owner          string    `dynamodbav:"username"`
	IdempotencyKey string    `dynamodbav:"idempotency_key"`
	TicketID       string    `dynamodbav:"ticket_id"`
	Fingerprint    string    `dynamodbav:"fingerprint"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}

// PartitionKey scopes key to owner, so two employees may use the same key.
func PartitionKey(owner, key string) string {
	return keyPrefix + owner + "#" + key
}
