package parsers

import (
	"fmt"
	"strings"
)

// Standard field names used with GetColumnName
const (
	FieldID          = "id"
	FieldAmount      = "amount"
	FieldCustomer    = "customer"
	FieldDate        = "date"
	FieldReference   = "reference"
	FieldDescription = "description"
)

// ColumnConfig maps the standard record fields onto CSV column names
type ColumnConfig struct {
	IDColumn          string            `json:"id_column" mapstructure:"id_column"`
	AmountColumn      string            `json:"amount_column" mapstructure:"amount_column"`
	CustomerColumn    string            `json:"customer_column" mapstructure:"customer_column"`
	DateColumn        string            `json:"date_column" mapstructure:"date_column"`
	ReferenceColumn   string            `json:"reference_column" mapstructure:"reference_column"`
	DescriptionColumn string            `json:"description_column" mapstructure:"description_column"`
	HasHeader         bool              `json:"has_header" mapstructure:"has_header"`
	Delimiter         rune              `json:"delimiter" mapstructure:"delimiter"`
	ColumnAliases     map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
}

// Validate checks if the column configuration is valid
func (cc *ColumnConfig) Validate() error {
	if strings.TrimSpace(cc.AmountColumn) == "" {
		return fmt.Errorf("amount column cannot be empty")
	}

	if strings.TrimSpace(cc.IDColumn) == "" {
		return fmt.Errorf("id column cannot be empty")
	}

	if cc.Delimiter == 0 || cc.Delimiter == '\n' || cc.Delimiter == '\r' || cc.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", cc.Delimiter)
	}

	return nil
}

// GetColumnName returns the actual column name, checking aliases first
func (cc *ColumnConfig) GetColumnName(standardName string) string {
	if alias, exists := cc.ColumnAliases[standardName]; exists {
		return alias
	}

	switch standardName {
	case FieldID:
		return cc.IDColumn
	case FieldAmount:
		return cc.AmountColumn
	case FieldCustomer:
		return cc.CustomerColumn
	case FieldDate:
		return cc.DateColumn
	case FieldReference:
		return cc.ReferenceColumn
	case FieldDescription:
		return cc.DescriptionColumn
	default:
		return standardName
	}
}

// columns returns the positional layout used when the file has no header row
func (cc *ColumnConfig) columns() []string {
	return []string{
		cc.GetColumnName(FieldID),
		cc.GetColumnName(FieldAmount),
		cc.GetColumnName(FieldCustomer),
		cc.GetColumnName(FieldDate),
		cc.GetColumnName(FieldReference),
		cc.GetColumnName(FieldDescription),
	}
}

func (cc *ColumnConfig) parseConfig() *ParseConfig {
	config := DefaultParseConfig()
	config.HasHeader = cc.HasHeader
	config.Delimiter = cc.Delimiter
	return config
}

// DefaultDeductionColumns returns the standard deduction CSV layout:
// id,amount,customerId,deductionDate,referenceNumber,description
func DefaultDeductionColumns() *ColumnConfig {
	return &ColumnConfig{
		IDColumn:          "id",
		AmountColumn:      "amount",
		CustomerColumn:    "customerId",
		DateColumn:        "deductionDate",
		ReferenceColumn:   "referenceNumber",
		DescriptionColumn: "description",
		HasHeader:         true,
		Delimiter:         ',',
		ColumnAliases:     make(map[string]string),
	}
}

// DefaultTransactionColumns returns the standard transaction CSV layout:
// id,netAmount,customerId,transactionDate,transactionNumber,description
func DefaultTransactionColumns() *ColumnConfig {
	return &ColumnConfig{
		IDColumn:          "id",
		AmountColumn:      "netAmount",
		CustomerColumn:    "customerId",
		DateColumn:        "transactionDate",
		ReferenceColumn:   "transactionNumber",
		DescriptionColumn: "description",
		HasHeader:         true,
		Delimiter:         ',',
		ColumnAliases:     make(map[string]string),
	}
}
