package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassification(t *testing.T) {
	base := errors.New("boom")
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"transient", Transient(base), KindTransient},
		{"transientf", Transientf("rate limited after %d tries", 3), KindTransient},
		{"auth", Auth(base), KindAuth},
		{"validation", Validation(base), KindValidation},
		{"validationf", Validationf("bad payload"), KindValidation},
		{"not found", NotFound(base), KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k, ok := KindOf(tc.err)
			if !ok || k != tc.kind {
				t.Errorf("KindOf = %v, %v; want %v, true", k, ok, tc.kind)
			}
		})
	}
}

func TestPredicatesAreExclusive(t *testing.T) {
	err := Auth(errors.New("bad credentials"))
	if !IsAuth(err) {
		t.Error("IsAuth = false")
	}
	if IsTransient(err) || IsValidation(err) || IsNotFound(err) {
		t.Error("auth error matched another class")
	}
}

func TestUnclassifiedCountsAsTransient(t *testing.T) {
	if !IsTransient(errors.New("connection reset")) {
		t.Error("plain error should be transient")
	}
	if IsTransient(nil) {
		t.Error("nil should not be transient")
	}
	if IsAuth(errors.New("x")) || IsValidation(errors.New("x")) || IsNotFound(errors.New("x")) {
		t.Error("plain error matched a specific class")
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("fetch posts: %w", NotFound(errors.New("no such community")))
	if !IsNotFound(err) {
		t.Error("classification lost through wrapping")
	}
	if k, ok := KindOf(err); !ok || k != KindNotFound {
		t.Errorf("KindOf = %v, %v", k, ok)
	}
}

func TestErrorMessageIncludesKind(t *testing.T) {
	err := Validation(errors.New("truncated json"))
	if got := err.Error(); got != "validation: truncated json" {
		t.Errorf("Error() = %q", got)
	}
}
