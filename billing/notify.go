package billing

import (
	"context"
)

// =============================================================================
// NOTIFICATION COLLABORATORS
// =============================================================================

// Attachment is a rendered binary document.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one outbound notification.
type Message struct {
	To          string
	FromName    string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Sender delivers a message or reports why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// InvoiceDocument is the invoice plus the context a reader needs to pay it.
type InvoiceDocument struct {
	Invoice        Invoice
	TenantName     string
	PropertyName   string
	PaymentDetails PaymentDetails
}

// Renderer turns an invoice into an attachable document.
type Renderer interface {
	Render(doc InvoiceDocument) (Attachment, error)
}
