package adapter

import (
	"context"
	"fmt"
	"net/smtp"
	"sync"

	"github.com/vaultwork/orchestrator/internal/retry"
	"github.com/vaultwork/orchestrator/internal/vault"
	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

// EmailTransport sends one rendered message. Production code wires
// SMTPTransport; tests wire RecordingTransport. Per spec.md §1's
// Non-goals ("does not ... provide a network API" and the adapters'
// transports being "opaque to the core"), the SMTP wire protocol itself
// is out of scope — SMTPTransport exists only as the one in-scope
// reference implementation exercising the contract end-to-end.
type EmailTransport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPTransport sends mail via net/smtp. stdlib is used deliberately
// here: a third-party SMTP client would duplicate exactly the wire-level
// detail spec.md places out of scope, so no such dependency is warranted.
type SMTPTransport struct {
	Addr string
	From string
	Auth smtp.Auth
}

// Send dials Addr and sends one plain-text message.
func (t *SMTPTransport) Send(ctx context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", t.From, to, subject, body)
	if err := smtp.SendMail(t.Addr, t.Auth, t.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("%w: smtp send: %v", vaulterrors.ErrUnavailable, err)
	}
	return nil
}

// RecordingTransport records every call instead of performing a
// side-effect, for tests and dry-run operation.
type RecordingTransport struct {
	mu   sync.Mutex
	Sent []RecordedSend
	Err  error
}

// RecordedSend captures one call to a RecordingTransport.
type RecordedSend struct {
	To, Subject, Body string
}

func (t *RecordingTransport) Send(ctx context.Context, to, subject, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.Sent = append(t.Sent, RecordedSend{To: to, Subject: subject, Body: body})
	return nil
}

// EmailAdapter dispatches notes of type "email" / action "send_email".
type EmailAdapter struct {
	transport EmailTransport
	bucket    *retry.TokenBucket

	mu        sync.Mutex
	dispatched map[string]bool
}

// NewEmailAdapter builds an EmailAdapter sending through transport,
// gated by bucket (the "email" channel, 10/hour per spec.md §4.3).
func NewEmailAdapter(transport EmailTransport, bucket *retry.TokenBucket) *EmailAdapter {
	return &EmailAdapter{transport: transport, bucket: bucket, dispatched: make(map[string]bool)}
}

// Applies matches on action alone: per spec.md §3.2, `action` is "the
// verb for dispatch" and `type` is a business category (invoice, email,
// security_review, ...) that can ride alongside any dispatch verb — an
// invoice note and a plain email note both dispatch via send_email.
func (a *EmailAdapter) Applies(noteType, action string) bool {
	return action == "send_email"
}

// Dispatch sends the note's body to the recipient named in its
// "to"/"sender" extra field, acquiring a rate-limit token first.
func (a *EmailAdapter) Dispatch(ctx context.Context, entry vault.Entry, note vault.Note) (Outcome, error) {
	a.mu.Lock()
	if a.dispatched[entry.Stem] {
		a.mu.Unlock()
		return Sent, nil
	}
	a.mu.Unlock()

	to, _ := note.Preamble.Extra["to"].(string)
	if to == "" {
		to, _ = note.Preamble.Extra["sender"].(string)
	}
	if to == "" {
		return Rejected, fmt.Errorf("%w: email note missing recipient", vaulterrors.ErrParseFailed)
	}

	if a.bucket != nil {
		if err := a.bucket.TryAcquire("email"); err != nil {
			return Deferred, err
		}
	}

	subject, _ := note.Preamble.Extra["subject"].(string)
	if err := a.transport.Send(ctx, to, subject, note.Body); err != nil {
		if vaulterrors.Classify(err) == vaulterrors.KindTransient {
			return Deferred, err
		}
		return Rejected, err
	}

	a.mu.Lock()
	a.dispatched[entry.Stem] = true
	a.mu.Unlock()
	return Sent, nil
}
