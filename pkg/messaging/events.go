package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Goods receipt events
	EventReceiptCreated   = "document.receipt.created"
	EventReceiptSubmitted = "document.receipt.submitted"
	EventReceiptApproved  = "document.receipt.approved"
	EventReceiptRejected  = "document.receipt.rejected"
	EventReceiptPosted    = "document.receipt.posted"
	EventReceiptReopened  = "document.receipt.reopened"

	// Inventory transfer events
	EventTransferCreated   = "document.transfer.created"
	EventTransferSubmitted = "document.transfer.submitted"
	EventTransferApproved  = "document.transfer.approved"
	EventTransferRejected  = "document.transfer.rejected"
	EventTransferPosted    = "document.transfer.posted"
	EventTransferReopened  = "document.transfer.reopened"
)

// Exchange names
const (
	ExchangeDocumentEvents = "wms.document.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// DocumentStatusChangedEvent is published on every document workflow
// transition. Consumers key off the event type for the specific transition.
type DocumentStatusChangedEvent struct {
	DocumentID   string `json:"document_id"`
	DocumentType string `json:"document_type"`
	DocNumber    string `json:"doc_number"`
	FromStatus   string `json:"from_status"`
	ToStatus     string `json:"to_status"`
	ActorID      string `json:"actor_id"`
	ActorName    string `json:"actor_name"`
	Reason       string `json:"reason,omitempty"`
}

// DocumentPostedEvent is published when a document is posted to the ERP
type DocumentPostedEvent struct {
	DocumentID        string `json:"document_id"`
	DocumentType      string `json:"document_type"`
	DocNumber         string `json:"doc_number"`
	ERPDocEntry       int    `json:"erp_doc_entry"`
	ERPDocNumber      string `json:"erp_doc_number"`
	ExternalReference string `json:"external_reference"`
	ActorID           string `json:"actor_id"`
}
