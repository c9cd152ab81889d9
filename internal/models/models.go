package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// Deduction represents an unexplained short-payment a customer made against an invoice.
// Optional values are modeled explicitly: an invalid NullDecimal, a nil date or an
// empty string all mean "absent" and score zero for the matching factor.
type Deduction struct {
	ID              string              `json:"id,omitempty"`
	Amount          decimal.NullDecimal `json:"amount"`
	CustomerID      string              `json:"customerId,omitempty"`
	DeductionDate   *time.Time          `json:"deductionDate,omitempty"`
	ReferenceNumber string              `json:"referenceNumber,omitempty"`
	Description     string              `json:"description,omitempty"`
}

// NewDeduction creates a Deduction with the required amount set
func NewDeduction(id string, amount decimal.Decimal, customerID string, date time.Time) *Deduction {
	return &Deduction{
		ID:            id,
		Amount:        decimal.NewNullDecimal(amount),
		CustomerID:    customerID,
		DeductionDate: &date,
	}
}

// Validate checks the fields the engine needs before it can score a deduction
func (d *Deduction) Validate() error {
	if d == nil {
		return fmt.Errorf("deduction is required")
	}
	if !d.Amount.Valid {
		return fmt.Errorf("deduction amount is required")
	}
	return nil
}

// String returns a string representation of the Deduction
func (d *Deduction) String() string {
	return fmt.Sprintf("Deduction{ID: %s, Amount: %s, Customer: %s, Date: %s, Ref: %s}",
		d.ID, formatNullDecimal(d.Amount), d.CustomerID, FormatDate(d.DeductionDate), d.ReferenceNumber)
}

// MarshalJSON writes the deduction date as YYYY-MM-DD
func (d Deduction) MarshalJSON() ([]byte, error) {
	type Alias Deduction
	return json.Marshal(&struct {
		DeductionDate string `json:"deductionDate,omitempty"`
		*Alias
	}{
		DeductionDate: FormatDate(d.DeductionDate),
		Alias:         (*Alias)(&d),
	})
}

// UnmarshalJSON accepts the deduction date in any layout supported by ParseDate
func (d *Deduction) UnmarshalJSON(data []byte) error {
	type Alias Deduction
	aux := &struct {
		DeductionDate *string `json:"deductionDate"`
		*Alias
	}{
		Alias: (*Alias)(d),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	date, err := parseOptionalDate(aux.DeductionDate)
	if err != nil {
		return fmt.Errorf("invalid deductionDate: %w", err)
	}
	d.DeductionDate = date
	return nil
}

// Transaction represents a posted accounting transaction that may explain a deduction
type Transaction struct {
	ID                string              `json:"id"`
	NetAmount         decimal.NullDecimal `json:"netAmount"`
	CustomerID        string              `json:"customerId,omitempty"`
	TransactionDate   *time.Time          `json:"transactionDate,omitempty"`
	TransactionNumber string              `json:"transactionNumber,omitempty"`
	Description       string              `json:"description,omitempty"`
}

// NewTransaction creates a Transaction with its amount and date set
func NewTransaction(id string, netAmount decimal.Decimal, customerID string, date time.Time) *Transaction {
	return &Transaction{
		ID:              id,
		NetAmount:       decimal.NewNullDecimal(netAmount),
		CustomerID:      customerID,
		TransactionDate: &date,
	}
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if t == nil {
		return fmt.Errorf("transaction is required")
	}
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	return nil
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, NetAmount: %s, Customer: %s, Date: %s, Number: %s}",
		t.ID, formatNullDecimal(t.NetAmount), t.CustomerID, FormatDate(t.TransactionDate), t.TransactionNumber)
}

// MarshalJSON writes the transaction date as YYYY-MM-DD
func (t Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		TransactionDate string `json:"transactionDate,omitempty"`
		*Alias
	}{
		TransactionDate: FormatDate(t.TransactionDate),
		Alias:           (*Alias)(&t),
	})
}

// UnmarshalJSON accepts the transaction date in any layout supported by ParseDate
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type Alias Transaction
	aux := &struct {
		TransactionDate *string `json:"transactionDate"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	date, err := parseOptionalDate(aux.TransactionDate)
	if err != nil {
		return fmt.Errorf("invalid transactionDate: %w", err)
	}
	t.TransactionDate = date
	return nil
}

// Utility functions for type conversion and validation

var dateFormats = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"2006/01/02",
}

// ParseDate attempts to parse a calendar date using the supported layouts
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	var lastErr error
	for _, format := range dateFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// FormatDate renders an optional date as YYYY-MM-DD, or "" when absent
func FormatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// CalendarDay drops the time of day, keeping the date as written in t's own location
func CalendarDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseOptionalDecimal parses an amount cell; an empty string yields an invalid NullDecimal.
// Currency symbols and thousand separators are stripped.
func ParseOptionalDecimal(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	return decimal.NewNullDecimal(d), nil
}

// ParseOptionalDate parses a date cell; an empty string yields nil
func ParseOptionalDate(s string) (*time.Time, error) {
	return parseOptionalDate(&s)
}

func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatNullDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return "<nil>"
	}
	return d.Decimal.String()
}
