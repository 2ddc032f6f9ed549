package handlers

import (
	"errors"
	"strings"
	"testing"

	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestValidator_ColumnWidths(t *testing.T) {
	v := newRequestValidator()

	tests := []struct {
		name  string
		req   any
		field string
	}{
		{
			name:  "bank name wider than its column",
			req:   &bankTransferRequest{Kind: "deposit", Amount: 100, BankName: strings.Repeat("b", 121)},
			field: "bank_name",
		},
		{
			name:  "carried by wider than its column",
			req:   &bankTransferRequest{Kind: "deposit", Amount: 100, CarriedBy: strings.Repeat("c", 121)},
			field: "carried_by",
		},
		{
			name: "reference id wider than its column",
			req: &recordTransactionRequest{Type: "student_payment", Amount: 100,
				Metadata: model.Metadata{ReferenceID: strings.Repeat("r", 300)}},
			field: "reference_id",
		},
		{
			name: "payer name wider than its column",
			req: &recordTransactionRequest{Type: "student_payment", Amount: 100,
				Metadata: model.Metadata{PayerName: strings.Repeat("p", 1000)}},
			field: "payer_name",
		},
		{
			name: "category wider than its column",
			req: &recordTransactionRequest{Type: "expense_payment", Amount: 100,
				Metadata: model.Metadata{Category: strings.Repeat("k", 81)}},
			field: "category",
		},
		{
			name: "reference type wider than its column",
			req: &recordTransactionRequest{Type: "adjustment", Amount: 100,
				Metadata: model.Metadata{ReferenceType: strings.Repeat("t", 41)}},
			field: "reference_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.req)
			var validation *model.ValidationError
			require.True(t, errors.As(err, &validation), "got %v", err)
			assert.Equal(t, tt.field, validation.Field)
		})
	}
}

func TestRequestValidator_AcceptsFullWidthValues(t *testing.T) {
	v := newRequestValidator()

	assert.NoError(t, v.Struct(&bankTransferRequest{
		Kind:      "withdrawal",
		Amount:    100,
		BankName:  strings.Repeat("b", 120),
		CarriedBy: strings.Repeat("é", 120),
	}))
	assert.NoError(t, v.Struct(&recordTransactionRequest{
		Type:   "student_payment",
		Amount: 100,
		Metadata: model.Metadata{
			ReferenceID: strings.Repeat("r", 64),
			PayerName:   strings.Repeat("p", 255),
		},
	}))
}
