package export

import (
	"fmt"
	"strconv"
	"time"

	"lpoflow/internal"
	"lpoflow/internal/schedule"
)

const dateLayout = "2006-01-02"

// Header is the accounting-import column set, one row per line item.
var Header = []string{
	"Invoice Number",
	"Invoice Date",
	"Due Date",
	"Customer Name",
	"Customer ID",
	"TRN",
	"Order Number",
	"Terms",
	"Billing Address",
	"Shipping Address",
	"Item Name",
	"Quantity",
	"Rate",
	"Unit",
	"Tax",
	"Currency Code",
}

// Invoice is one exportable queue item with its computed dates.
type Invoice struct {
	Item        internal.QueueItem
	Customer    internal.Customer
	InvoiceDate time.Time
	DueDate     time.Time
	Warnings    []string
}

// buildInvoice computes the invoice schedule for one completed item.
// The invoice date is the nearest delivery day the customer's calendar
// allows on or after now; a calendar with no allowed days degrades to
// now itself with a warning. The due date is the end of the invoice
// month plus the customer's payment terms.
func buildInvoice(item internal.QueueItem, now time.Time) Invoice {
	customer := item.ParseResult.Customer.Customer

	calendar, err := schedule.ParseCalendar(customer.DeliveryCalendar)
	if err != nil || customer.DeliveryCalendar == "" {
		calendar = schedule.DefaultCalendar()
	}

	inv := Invoice{Item: item, Customer: customer}
	invoiceDate, ok := calendar.NearestAllowedDay(now)
	if !ok {
		inv.Warnings = append(inv.Warnings, "delivery calendar allows no days, invoice dated today")
	}
	inv.InvoiceDate = invoiceDate
	inv.DueDate = schedule.DueDate(invoiceDate, customer.PaymentTermsDays)

	for _, line := range item.ParseResult.Items {
		if line.UnitPrice == 0 {
			inv.Warnings = append(inv.Warnings, fmt.Sprintf("item %q has no unit price", line.LPOName))
		}
		if line.Quantity == 0 {
			inv.Warnings = append(inv.Warnings, fmt.Sprintf("item %q has no quantity", line.LPOName))
		}
	}
	return inv
}

// validateInvoice rejects invoices that cannot be imported at all.
// Missing prices and quantities stay warnings; a missing customer or
// an empty item list is a hard exclusion.
func validateInvoice(item internal.QueueItem) error {
	if item.ParseResult == nil {
		return fmt.Errorf("item %d has no parse result", item.ID)
	}
	if item.ParseResult.Customer == nil || item.ParseResult.Customer.Customer.Name == "" {
		return fmt.Errorf("item %d has no customer name", item.ID)
	}
	if len(item.ParseResult.Items) == 0 {
		return fmt.Errorf("item %d has no line items", item.ID)
	}
	return nil
}

// Rows renders the invoice into accounting-import rows, one per line
// item, all sharing the invoice-level columns.
func (inv Invoice) Rows() [][]string {
	customer := inv.Customer
	terms := fmt.Sprintf("Net %d", customer.PaymentTermsDays)
	currency := customer.Currency
	if currency == "" {
		currency = "AED"
	}

	rows := make([][]string, 0, len(inv.Item.ParseResult.Items))
	for _, line := range inv.Item.ParseResult.Items {
		rows = append(rows, []string{
			"", // assigned by the accounting system on import
			inv.InvoiceDate.Format(dateLayout),
			inv.DueDate.Format(dateLayout),
			customer.Name,
			customer.CustomerNumber,
			customer.TRN,
			inv.Item.ParseResult.PONumber,
			terms,
			customer.BillingAddress,
			shippingAddress(inv.Item.ParseResult.Customer, customer),
			line.SystemName,
			formatFloat(line.Quantity),
			formatFloat(line.UnitPrice),
			line.Unit,
			formatFloat(line.VATRate),
			currency,
		})
	}
	return rows
}

// shippingAddress prefers the resolved branch's delivery address over
// the customer record's default.
func shippingAddress(resolved *internal.ResolvedCustomer, customer internal.Customer) string {
	if resolved != nil && resolved.Branch != nil && resolved.Branch.DeliveryAddress != "" {
		return resolved.Branch.DeliveryAddress
	}
	return customer.ShippingAddress
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
