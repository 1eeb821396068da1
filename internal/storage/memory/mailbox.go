package memory

import (
	"context"
	"sync"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/google/uuid"
)

// Mailbox is an EmailSender that keeps every message instead of delivering it.
// FailFor makes sends to the given addresses fail with the given error.
type Mailbox struct {
	mu      sync.Mutex
	sent    []models.OutgoingEmail
	failFor map[string]error
}

func NewMailbox() *Mailbox {
	return &Mailbox{failFor: make(map[string]error)}
}

func (m *Mailbox) FailFor(address string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[address] = err
}

func (m *Mailbox) Send(ctx context.Context, msg models.OutgoingEmail) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[msg.To]; ok {
		return "", err
	}
	m.sent = append(m.sent, msg)
	return "mem-" + uuid.NewString(), nil
}

// Sent returns a copy of the delivered messages in send order.
func (m *Mailbox) Sent() []models.OutgoingEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OutgoingEmail(nil), m.sent...)
}
