package locator

import (
	"errors"
	"testing"

	"github.com/fentz26/wfsandbox/internal/apperr"
	"github.com/fentz26/wfsandbox/internal/models"
)

func TestScan(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []models.Locator
		raw  []string
	}{
		{
			name: "single",
			text: "cat workflow://helloworld/A/outA.txt",
			want: []models.Locator{{Workflow: "helloworld", Task: "A", RelativePath: "outA.txt"}},
			raw:  []string{"workflow://helloworld/A/outA.txt"},
		},
		{
			name: "current workflow",
			text: "wc -l workflow:///A/data/part-0.csv > lines",
			want: []models.Locator{{Task: "A", RelativePath: "data/part-0.csv"}},
			raw:  []string{"workflow:///A/data/part-0.csv"},
		},
		{
			name: "empty relative path",
			text: "ls workflow://wf/A",
			want: []models.Locator{{Workflow: "wf", Task: "A"}},
			raw:  []string{"workflow://wf/A"},
		},
		{
			name: "single quoted",
			text: "cat 'workflow://wf/A/a.txt' | sort",
			want: []models.Locator{{Workflow: "wf", Task: "A", RelativePath: "a.txt"}},
			raw:  []string{"'workflow://wf/A/a.txt'"},
		},
		{
			name: "duplicates retained in order",
			text: "diff workflow://wf/A/x workflow://wf/B/y\tworkflow://wf/A/x",
			want: []models.Locator{
				{Workflow: "wf", Task: "A", RelativePath: "x"},
				{Workflow: "wf", Task: "B", RelativePath: "y"},
				{Workflow: "wf", Task: "A", RelativePath: "x"},
			},
			raw: []string{"workflow://wf/A/x", "workflow://wf/B/y", "workflow://wf/A/x"},
		},
		{
			name: "none",
			text: "echo hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Scan(tt.text)
			if err != nil {
				t.Fatalf("Scan failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Scan returned %d matches, want %d", len(got), len(tt.want))
			}
			for i, m := range got {
				if m.Locator != tt.want[i] {
					t.Errorf("match %d locator = %+v, want %+v", i, m.Locator, tt.want[i])
				}
				if m.Raw != tt.raw[i] {
					t.Errorf("match %d raw = %q, want %q", i, m.Raw, tt.raw[i])
				}
				if tt.text[m.Start:m.End] != m.Raw {
					t.Errorf("match %d span %q does not match raw %q", i, tt.text[m.Start:m.End], m.Raw)
				}
			}
		})
	}
}

func TestScan_Malformed(t *testing.T) {
	for _, text := range []string{"cat workflow://wf", "cat workflow://wf/ x", "workflow://"} {
		_, err := Scan(text)
		if !errors.Is(err, apperr.ErrMalformedLocator) {
			t.Errorf("Scan(%q) error = %v, want MalformedLocator", text, err)
		}
	}
}

func TestRoundTripRewrite(t *testing.T) {
	text := "paste workflow://wf/A/one.txt workflow://wf/A/one.txt.bak 'workflow://wf/A/two.txt' > out"
	matches, err := Scan(text)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	var subs []Substitution
	for _, m := range matches {
		subs = append(subs, Substitution{Start: m.Start, End: m.End, Text: m.Replacement("/in/" + m.Locator.RelativePath)})
	}
	got, err := Rewrite(text, subs)
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}

	want := "paste /in/one.txt /in/one.txt.bak '/in/two.txt' > out"
	if got != want {
		t.Errorf("Rewrite = %q, want %q", got, want)
	}
}

func TestRewrite_Overlap(t *testing.T) {
	_, err := Rewrite("abcdef", []Substitution{{Start: 0, End: 3, Text: "x"}, {Start: 2, End: 4, Text: "y"}})
	if err == nil {
		t.Error("Expected error for overlapping spans")
	}
}

func TestParseAndFormat(t *testing.T) {
	l, err := Parse("workflow://helloworld/20240101Z000000_a_ff/out/x.txt")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if l.Workflow != "helloworld" || l.Task != "20240101Z000000_a_ff" || l.RelativePath != "out/x.txt" {
		t.Errorf("Parse = %+v", l)
	}
	if Format(l) != "workflow://helloworld/20240101Z000000_a_ff/out/x.txt" {
		t.Errorf("Format = %s", Format(l))
	}

	if _, err := Parse("file:///tmp/x"); !errors.Is(err, apperr.ErrMalformedLocator) {
		t.Errorf("Parse without scheme error = %v, want MalformedLocator", err)
	}
}
