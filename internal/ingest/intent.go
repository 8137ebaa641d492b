package ingest

import "strings"

// Intent is the classification of an inbound message's first lines.
type Intent string

const (
	IntentOrder    Intent = "order"
	IntentRejected Intent = "rejected"
)

// Reject keywords are checked before accept keywords: a newsletter
// mentioning "order" is still a newsletter.
var rejectKeywords = []string{
	"newsletter", "marketing", "promotion", "unsubscribe",
	"meeting", "calendar", "reminder", "notification",
	"receipt", "thank you", "confirmation", "welcome",
	"password reset", "account", "login", "security",
}

var acceptKeywords = []string{
	"lpo", "purchase order", "order", "po #", "po#", "po number",
	"purchase", "quote", "quotation", "invoice", "supply",
	"delivery", "urgent", "requirement", "needed", "request",
}

// attachmentHints are weak signals: they only accept a message that
// also carries at least one attachment.
var attachmentHints = []string{
	"attached", "attachment", "please find", "pdf", "excel",
}

// ClassifyIntent decides from the subject and a bounded body preview
// whether a message looks like a purchase order.
func ClassifyIntent(subject, bodyPreview string, hasAttachments bool) Intent {
	text := strings.ToLower(subject + " " + BodyPreview(bodyPreview))

	for _, kw := range rejectKeywords {
		if strings.Contains(text, kw) {
			return IntentRejected
		}
	}
	for _, kw := range acceptKeywords {
		if strings.Contains(text, kw) {
			return IntentOrder
		}
	}
	if hasAttachments {
		for _, kw := range attachmentHints {
			if strings.Contains(text, kw) {
				return IntentOrder
			}
		}
	}
	return IntentRejected
}
