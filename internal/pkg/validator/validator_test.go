package validator

import "testing"

type sample struct {
	Provider string   `json:"provider" validate:"required,oneof=aws gcp azure"`
	Date     string   `json:"cost_date" validate:"required,datetime=2006-01-02"`
	Currency string   `json:"currency,omitempty" validate:"omitempty,len=3"`
	Rows     []string `json:"rows" validate:"max=2"`
}

func TestValidate(t *testing.T) {
	v := New()

	tests := []struct {
		name      string
		in        sample
		wantField string
		wantMsg   string
	}{
		{
			name: "valid",
			in:   sample{Provider: "aws", Date: "2024-03-01"},
		},
		{
			name:      "missing provider",
			in:        sample{Date: "2024-03-01"},
			wantField: "provider",
			wantMsg:   "provider is required",
		},
		{
			name:      "unknown provider",
			in:        sample{Provider: "oracle", Date: "2024-03-01"},
			wantField: "provider",
			wantMsg:   "provider must be one of [aws gcp azure]",
		},
		{
			name:      "bad date",
			in:        sample{Provider: "gcp", Date: "03/01/2024"},
			wantField: "cost_date",
			wantMsg:   "cost_date must be a date in 2006-01-02 format",
		},
		{
			name:      "currency length",
			in:        sample{Provider: "azure", Date: "2024-03-01", Currency: "EURO"},
			wantField: "currency",
			wantMsg:   "currency must be exactly 3 characters long",
		},
		{
			name:      "too many rows",
			in:        sample{Provider: "aws", Date: "2024-03-01", Rows: []string{"a", "b", "c"}},
			wantField: "rows",
			wantMsg:   "rows must contain at most 2 items",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := v.Validate(tt.in)
			if tt.wantField == "" {
				if len(errs) != 0 {
					t.Fatalf("unexpected errors: %+v", errs)
				}
				return
			}
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %+v", len(errs), errs)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.wantField)
			}
			if errs[0].Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", errs[0].Message, tt.wantMsg)
			}
		})
	}
}
