package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassified(t *testing.T) {
	cause := errors.New("boom")

	if Classified(ClassTransient, nil) != nil {
		t.Error("Classified(nil) should stay nil")
	}

	err := Unrecoverable(cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if got := err.Error(); got != "unrecoverable: boom" {
		t.Errorf("Error() = %q, want %q", got, "unrecoverable: boom")
	}
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   Class
		wantOK bool
	}{
		{"transient", Transient(errors.New("x")), ClassTransient, true},
		{"permanent", Permanent(errors.New("x")), ClassPermanent, true},
		{"wrapped", fmt.Errorf("download: %w", Unrecoverable(errors.New("x"))), ClassUnrecoverable, true},
		{"plain", errors.New("x"), "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClassOf(tt.err)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ClassOf() = %v, %v; want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestIsUnrecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct", Unrecoverable(errors.New("gone")), true},
		{"wrapped with fmt", fmt.Errorf("analyze: %w", Unrecoverable(errors.New("gone"))), true},
		{"nested under transient", Transient(Unrecoverable(errors.New("gone"))), true},
		{"transient", Transient(errors.New("502")), false},
		{"coded", New(ErrCodePackageNotFound, "left-pad"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUnrecoverable(tt.err); got != tt.want {
				t.Errorf("IsUnrecoverable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(Transient(errors.New("x"))) {
		t.Error("IsTransient(Transient) = false")
	}
	if IsTransient(Permanent(errors.New("x"))) {
		t.Error("IsTransient(Permanent) = true")
	}
}
