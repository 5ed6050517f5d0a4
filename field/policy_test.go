package field

import (
	"errors"
	"testing"

	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

func TestNewPolicySet(t *testing.T) {
	tests := []struct {
		name     string
		policies []types.FieldPolicy
		wantErr  error
	}{
		{
			name: "valid set",
			policies: []types.FieldPolicy{
				{Name: "phone_number", Sensitive: true},
				{Name: "email", Sensitive: true},
				{Name: "display_name", Sensitive: false},
			},
		},
		{
			name:    "empty set rejected",
			wantErr: ErrEmptyPolicySet,
		},
		{
			name: "identical duplicate tolerated",
			policies: []types.FieldPolicy{
				{Name: "email", Sensitive: true},
				{Name: "email", Sensitive: true},
			},
		},
		{
			name: "conflicting duplicate rejected",
			policies: []types.FieldPolicy{
				{Name: "email", Sensitive: true},
				{Name: "email", Sensitive: false},
			},
			wantErr: ErrConflictingPolicy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := NewPolicySet(tt.policies)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if set == nil {
				t.Fatal("expected a policy set")
			}
		})
	}
}

func TestPolicySetEmptyName(t *testing.T) {
	_, err := NewPolicySet([]types.FieldPolicy{{Name: "", Sensitive: true}})
	if err == nil {
		t.Fatal("expected an error for empty field name")
	}
}

func TestPolicySetLookup(t *testing.T) {
	set, err := NewPolicySet([]types.FieldPolicy{
		{Name: "phone_number", Sensitive: true},
		{Name: "display_name", Sensitive: false},
	})
	if err != nil {
		t.Fatalf("NewPolicySet: %v", err)
	}

	if !set.Sensitive("phone_number") {
		t.Error("phone_number should be sensitive")
	}
	if set.Sensitive("display_name") {
		t.Error("display_name should not be sensitive")
	}
	if set.Sensitive("unknown_field") {
		t.Error("unknown fields should not be sensitive")
	}

	if _, known := set.Lookup("unknown_field"); known {
		t.Error("unknown field should not resolve")
	}

	sensitive := set.SensitiveFields()
	if len(sensitive) != 1 || sensitive[0] != "phone_number" {
		t.Errorf("SensitiveFields = %v, want [phone_number]", sensitive)
	}
}
