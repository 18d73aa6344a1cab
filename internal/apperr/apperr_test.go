package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("run: %w", Timeout("sleeper", 2*time.Second))

	if !errors.Is(err, ErrAppTimeout) {
		t.Error("Expected wrapped timeout to match ErrAppTimeout")
	}
	if errors.Is(err, ErrBashExitFailure) {
		t.Error("Timeout must not match ErrBashExitFailure")
	}
	if KindOf(err) != AppTimeout {
		t.Errorf("KindOf = %s, want %s", KindOf(err), AppTimeout)
	}
}

func TestErrorMessageCarriesContext(t *testing.T) {
	tests := []struct {
		err  error
		want []string
	}{
		{Timeout("a", 3*time.Second), []string{"[a]", "AppTimeout", "3s"}},
		{ExitFailure("b", 7), []string{"[b]", "BashExitFailure", "exit code 7"}},
		{Missing("c", []string{"/x/out.txt"}), []string{"[c]", "MissingOutputs", "/x/out.txt"}},
		{Wrap(DirectoryCreationFailure, "d", "mkdir", errors.New("boom")), []string{"[d]", "boom"}},
	}

	for _, tt := range tests {
		msg := tt.err.Error()
		for _, w := range tt.want {
			if !strings.Contains(msg, w) {
				t.Errorf("Error() = %q, want it to contain %q", msg, w)
			}
		}
	}
}

func TestWithTask(t *testing.T) {
	err := WithTask(New(MalformedLocator, "", "bad"), "B")

	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("Expected *Error")
	}
	if e.Task != "B" {
		t.Errorf("Task = %q, want B", e.Task)
	}

	plain := errors.New("plain")
	if WithTask(plain, "B") != plain {
		t.Error("WithTask should return unclassified errors unchanged")
	}
	if KindOf(plain) != "" {
		t.Errorf("KindOf(plain) = %q, want empty", KindOf(plain))
	}
}
