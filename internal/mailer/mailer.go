// Package mailer is the delivery gateway consumed by the dispatch pipeline.
// Implementations may be slow and may fail per call; no batching is assumed.
package mailer

import "context"

type Email struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}
