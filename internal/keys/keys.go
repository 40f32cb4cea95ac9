// Package keys holds the single-table key scheme. Tickets and user profiles
// share the USER#<username> partition.
package keys

import "strings"

const (
	UserPrefix   = "USER#"
	TicketPrefix = "TICKET#"
	ProfileSK    = "PROFILE"
)

// User is the partition key value for username.
func User(username string) string { return UserPrefix + username }

// Ticket is the sort key value for ticketID.
func Ticket(ticketID string) string { return TicketPrefix + ticketID }

// UsernameFrom strips the user prefix from a partition key.
func UsernameFrom(pk string) string { return strings.TrimPrefix(pk, UserPrefix) }

// TicketIDFrom strips the ticket prefix from a sort key.
func TicketIDFrom(sk string) string { return strings.TrimPrefix(sk, TicketPrefix) }
