// Package mail queues outgoing email in a Firestore collection that a mail
// delivery extension watches.
package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
)

// OutboxMessage is the document shape the delivery extension reads.
type OutboxMessage struct {
	To        []string          `firestore:"to"`
	From      string            `firestore:"from,omitempty"`
	ReplyTo   string            `firestore:"replyTo,omitempty"`
	Message   MessageBody       `firestore:"message"`
	Metadata  map[string]string `firestore:"metadata,omitempty"`
	CreatedAt time.Time         `firestore:"createdAt"`
}

type MessageBody struct {
	Subject     string             `firestore:"subject"`
	HTML        string             `firestore:"html,omitempty"`
	Text        string             `firestore:"text,omitempty"`
	Attachments []OutboxAttachment `firestore:"attachments,omitempty"`
}

type OutboxAttachment struct {
	Filename string `firestore:"filename"`
	Content  string `firestore:"content"`
	Encoding string `firestore:"encoding"`
}

// Outbox implements services.EmailSender.
type Outbox struct {
	client     *firestore.Client
	collection string
	from       string
	now        func() time.Time
}

func NewOutbox(client *firestore.Client, collection, from string) (*Outbox, error) {
	if client == nil {
		return nil, fmt.Errorf("mail outbox requires a firestore client")
	}
	if collection == "" {
		collection = "mail"
	}
	return &Outbox{client: client, collection: collection, from: from, now: time.Now}, nil
}

// BuildMessage converts an outgoing email into an outbox document, reading
// every attachment from disk.
func BuildMessage(msg models.OutgoingEmail, from string, now time.Time) (*OutboxMessage, error) {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return nil, fmt.Errorf("recipient address is empty")
	}
	if msg.ToName != "" {
		to = fmt.Sprintf("%s <%s>", msg.ToName, to)
	}

	out := &OutboxMessage{
		To:   []string{to},
		From: from,
		Message: MessageBody{
			Subject: msg.Subject,
			HTML:    msg.HTML,
			Text:    msg.Text,
		},
		Metadata:  msg.Metadata,
		CreatedAt: now,
	}
	for _, a := range msg.Attachments {
		data, err := os.ReadFile(a.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", a.Path, err)
		}
		name := a.Filename
		if name == "" {
			name = filepath.Base(a.Path)
		}
		out.Message.Attachments = append(out.Message.Attachments, OutboxAttachment{
			Filename: name,
			Content:  base64.StdEncoding.EncodeToString(data),
			Encoding: "base64",
		})
	}
	return out, nil
}

// Send queues msg and returns the outbox document id as the message id.
func (o *Outbox) Send(ctx context.Context, msg models.OutgoingEmail) (string, error) {
	doc, err := BuildMessage(msg, o.from, o.now())
	if err != nil {
		return "", err
	}
	ref, _, err := o.client.Collection(o.collection).Add(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to queue email to %s: %w", msg.To, err)
	}
	return ref.ID, nil
}
