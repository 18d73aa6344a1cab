package command

import (
	"errors"
	"testing"

	"github.com/fentz26/wfsandbox/internal/apperr"
)

func TestRender(t *testing.T) {
	data := Data{
		Workflow: "helloworld",
		Task:     "app3",
		Inputs:   []string{"workflow:///B/out.txt", "workflow:///C/out.txt"},
		Outputs:  []string{"/tmp/output.txt"},
		Params:   map[string]string{"n": "5"},
	}

	tests := []struct {
		name string
		text string
		want string
		kind apperr.Kind
	}{
		{"plain", `echo "A" > outA.txt`, `echo "A" > outA.txt`, ""},
		{"inputs", `echo B:"{{index .Inputs 0}}" C:"{{index .Inputs 1}}" > {{index .Outputs 0}}`,
			`echo B:"workflow:///B/out.txt" C:"workflow:///C/out.txt" > /tmp/output.txt`, ""},
		{"params", `sleep {{.Params.n}}`, `sleep 5`, ""},
		{"index out of range", `cat {{index .Inputs 5}}`, "", apperr.AppBadFormatting},
		{"missing param", `sleep {{.Params.missing}}`, "", apperr.AppBadFormatting},
		{"unknown field", `echo {{.Nope}}`, "", apperr.AppBadFormatting},
		{"parse error", `echo {{`, "", apperr.AppBadFormatting},
		{"empty", `{{/* nothing */}}  `, "", apperr.BashAppNoReturn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.text, data)
			if tt.kind != "" {
				if apperr.KindOf(err) != tt.kind {
					t.Fatalf("Render error = %v, want kind %s", err, tt.kind)
				}
				var e *apperr.Error
				if errors.As(err, &e) && e.Task != "app3" {
					t.Errorf("error task = %q, want app3", e.Task)
				}
				return
			}
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Render = %q, want %q", got, tt.want)
			}
		})
	}
}
