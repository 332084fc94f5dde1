package policy

import (
	"reflect"
	"testing"
)

func TestNewRosterPrefersConfiguredOperators(t *testing.T) {
	r := NewRoster([]string{" 200 ", "100", ""}, []string{"300"})
	if got, want := r.IDs(), []string{"100", "200"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("IDs() = %v, want %v", got, want)
	}
	if r.IsOperator("300") {
		t.Fatalf("admin should not be an operator when operators are configured")
	}
}

func TestNewRosterFallsBackToNumericAdmins(t *testing.T) {
	r := NewRoster(nil, []string{"123", "astrbot", "456", "12a"})
	if got, want := r.IDs(), []string{"123", "456"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("IDs() = %v, want %v", got, want)
	}
	if !r.IsOperator("123") || r.IsOperator("astrbot") {
		t.Fatalf("unexpected operator membership")
	}
}

func TestEmptyRoster(t *testing.T) {
	r := NewRoster(nil, nil)
	if r.Len() != 0 || r.IsOperator("") {
		t.Fatalf("expected empty roster, got %v", r.IDs())
	}
}
