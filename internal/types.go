package internal

import "time"

// Origin says how a queue item entered the system.
type Origin string

const (
	OriginInboundMessage Origin = "inbound-message"
	OriginManual         Origin = "manual"
)

// Status is the processing state of a queue item. Transitions are
// restricted to the edges listed in statusTransitions; everything else
// is rejected at the storage boundary.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ExportStatus tracks the export lifecycle of a completed item. Items
// that never completed carry ExportNone.
type ExportStatus string

const (
	ExportNone     ExportStatus = ""
	ExportPending  ExportStatus = "pending"
	ExportExported ExportStatus = "exported"
)

var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ExportStatus) CanTransitionTo(next ExportStatus) bool {
	return s == ExportPending && next == ExportExported
}

// FailureType tags a parsing_failures row so an operator knows what to
// fix before re-queueing.
type FailureType string

const (
	FailureCustomerNotFound FailureType = "customer_not_found"
	FailureNoItemsExtracted FailureType = "no_items_extracted"
	FailureExportValidation FailureType = "export_validation_failed"
	FailureParsingError     FailureType = "parsing_error"
	FailureUnmappedProducts FailureType = "unmapped_products"
)

// MatchReason records which resolution strategy produced a line item's
// mapping. Ordered strongest to weakest.
type MatchReason string

const (
	ReasonExact       MatchReason = "EXACT"
	ReasonContainment MatchReason = "CONTAINMENT"
	ReasonTokens      MatchReason = "TOKENS"
	ReasonFuzzy       MatchReason = "FUZZY"
	ReasonNone        MatchReason = "NONE"
)

// Customer is reference data administered outside the pipeline. The
// contact email is not unique: several branches of one organization may
// share it and are told apart by BranchIdentifier tokens.
type Customer struct {
	Email            string
	Alias            string
	Name             string
	CustomerNumber   string
	TRN              string
	BillingAddress   string
	ShippingAddress  string
	PaymentTermsDays int
	Currency         string
	DeliveryCalendar string // JSON, seven weekday booleans
	Active           bool
}

// BranchIdentifier is a token expected to appear literally in a
// document addressed to a specific branch of a multi-location customer.
type BranchIdentifier struct {
	ID              int64
	CustomerEmail   string
	Token           string
	BranchName      string
	DeliveryAddress string
}

// ProductMapping translates a partner's raw product text into a priced
// catalog item. Unique per (customer, raw name).
type ProductMapping struct {
	ID            int64
	CustomerEmail string
	LPOName       string
	SystemName    string
	UnitPrice     float64
	Unit          string
	VATRate       float64
	Active        bool
}

// LineItem is one resolved (or unresolved) order line.
type LineItem struct {
	LPOName      string      `json:"lpoProductName"`
	SystemName   string      `json:"systemProductName"`
	Quantity     float64     `json:"quantity"`
	Unit         string      `json:"unit"`
	UnitPrice    float64     `json:"unitPrice"`
	VATRate      float64     `json:"vatRate"`
	Total        float64     `json:"total"`
	NeedsMapping bool        `json:"needsMapping,omitempty"`
	MatchReason  MatchReason `json:"matchReason"`
	RawContext   string      `json:"rawContext,omitempty"`
}

// ResolvedCustomer is the branch-disambiguation outcome. ByFallback is
// set when no branch token matched and the first stored record was
// chosen, so operators can tell best-effort results from exact ones.
type ResolvedCustomer struct {
	Customer   Customer          `json:"customer"`
	Branch     *BranchIdentifier `json:"branch,omitempty"`
	ByFallback bool              `json:"byFallback,omitempty"`
}

// Totals summarizes an order for the accounting export.
type Totals struct {
	Subtotal  float64 `json:"subtotal"`
	VATAmount float64 `json:"vatAmount"`
	Total     float64 `json:"total"`
}

// ParseResult is the structured payload persisted on a completed or
// failed queue item.
type ParseResult struct {
	Customer    *ResolvedCustomer `json:"customer,omitempty"`
	PONumber    string            `json:"poNumber,omitempty"`
	Items       []LineItem        `json:"items"`
	Totals      Totals            `json:"totals"`
	Errors      []string          `json:"errors,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
	TextPreview string            `json:"textPreview,omitempty"`
}

// UnmappedNames lists the raw product names that failed resolution.
func (r ParseResult) UnmappedNames() []string {
	var out []string
	for _, item := range r.Items {
		if item.NeedsMapping {
			out = append(out, item.LPOName)
		}
	}
	return out
}

// QueueItem is one document's unit of work. Rows are never deleted,
// only transitioned, so the queue doubles as an audit trail.
type QueueItem struct {
	ID            int64
	Origin        Origin
	OriginRef     string
	Filename      string
	FilePath      string
	CustomerEmail string
	Status        Status
	ExportStatus  ExportStatus
	ParseResult   *ParseResult
	ErrorMessage  string
	ContentHash   string
	ExportRef     string
	ExportPath    string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	ExportedAt    *time.Time
}

// QueueRequest asks storage to create a pending queue item.
type QueueRequest struct {
	Origin        Origin
	OriginRef     string
	Filename      string
	FilePath      string
	CustomerEmail string
	ContentHash   string
}

// ParsingFailure captures enough raw context from a failed item for a
// human to add the missing mappings.
type ParsingFailure struct {
	ID               int64
	Filename         string
	CustomerEmail    string
	FailureType      FailureType
	ErrorMessage     string
	TextPreview      string
	UnmappedProducts []string
	CreatedAt        time.Time
	Resolved         bool
}

// QueueStats is the per-status breakdown exposed to callers.
type QueueStats struct {
	Total          int
	ByStatus       map[Status]int
	ByExportStatus map[ExportStatus]int
}

// Attachment is a persisted file pulled out of an inbound message, or
// the synthesized body file when a message has none.
type Attachment struct {
	Filename    string
	Path        string
	ContentType string
}

// InboundMessage is a parsed mail message as seen by the ingestion
// filter.
type InboundMessage struct {
	Provider    string
	MessageID   string
	Subject     string
	From        string
	SenderEmail string
	Date        string
	BodyText    string
	Attachments []Attachment
}

// FetchedMailMessage is a raw message handed over by a mail connector.
type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
