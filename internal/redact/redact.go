// Package redact projects orders into views safe to show on shared screens.
package redact

import (
	"delivery-dispatch-service/internal/domain"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DisplaySafeOrder omits contact details and keeps only what a driver needs
// to pick the next stop.
type DisplaySafeOrder struct {
	ID             int64                 `json:"id"`
	Customer       string                `json:"customer"`
	Phone          string                `json:"phone,omitempty"`
	Email          string                `json:"email,omitempty"`
	Area           string                `json:"area"`
	Priority       domain.Priority       `json:"priority"`
	Status         domain.DeliveryStatus `json:"status"`
	AssignedDriver string                `json:"assigned_driver,omitempty"`
	CODDue         string                `json:"cod_due"`
	WindowStart    time.Time             `json:"window_start"`
}

// Redactor formats amounts for one display locale.
type Redactor struct {
	printer *message.Printer
}

func New(tag language.Tag) *Redactor {
	return &Redactor{printer: message.NewPrinter(tag)}
}

// Order builds the display projection of o.
func (r *Redactor) Order(o *domain.DeliveryOrder) DisplaySafeOrder {
	due := o.CODDueAmount
	if due.IsZero() {
		due = o.CODAmount
	}
	return DisplaySafeOrder{
		ID:             o.ID,
		Customer:       Name(o.Customer.Name),
		Phone:          Phone(o.Customer.Phone),
		Email:          Email(o.Customer.Email),
		Area:           Area(o.DeliveryAddress),
		Priority:       o.Priority,
		Status:         o.DeliveryStatus,
		AssignedDriver: o.AssignedDriver,
		CODDue:         r.Amount(due),
		WindowStart:    o.WindowStart(),
	}
}

func (r *Redactor) Orders(orders []*domain.DeliveryOrder) []DisplaySafeOrder {
	out := make([]DisplaySafeOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, r.Order(o))
	}
	return out
}

// Amount renders d with the locale's separators and two decimals.
func (r *Redactor) Amount(d decimal.Decimal) string {
	return r.printer.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}

// Name keeps the first name and the initial of the last word.
func Name(full string) string {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	last, _ := utf8.DecodeRuneInString(parts[len(parts)-1])
	return parts[0] + " " + string(last) + "."
}

// Phone masks all but the last four digits.
func Phone(p string) string {
	var digits []rune
	for _, r := range p {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) == 0 {
		return ""
	}
	keep := min(4, len(digits))
	return strings.Repeat("*", len(digits)-keep) + string(digits[len(digits)-keep:])
}

func Email(e string) string {
	at := strings.LastIndexByte(e, '@')
	if at <= 0 {
		return ""
	}
	first, _ := utf8.DecodeRuneInString(e)
	return string(first) + "***" + e[at:]
}

// Area drops the house number from an address.
func Area(addr string) string {
	parts := strings.Split(addr, ",")
	street := strings.Fields(strings.TrimSpace(parts[0]))
	if len(street) > 1 && strings.ContainsAny(street[0], "0123456789") {
		street = street[1:]
	}
	out := []string{strings.Join(street, " ")}
	for _, p := range parts[1:] {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
