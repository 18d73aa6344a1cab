package staging

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fentz26/wfsandbox/internal/models"
	"github.com/fentz26/wfsandbox/internal/script"
)

func TestForMode(t *testing.T) {
	tests := []struct {
		mode string
		name string
		ok   bool
	}{
		{"", "copy", true},
		{"copy", "copy", true},
		{"link", "link", true},
		{"none", "none", true},
		{"rsync", "", false},
	}
	for _, tt := range tests {
		s, err := ForMode(tt.mode)
		if (err == nil) != tt.ok {
			t.Errorf("ForMode(%q) error = %v, want ok=%v", tt.mode, err, tt.ok)
			continue
		}
		if tt.ok && s.Name() != tt.name {
			t.Errorf("ForMode(%q).Name() = %s, want %s", tt.mode, s.Name(), tt.name)
		}
	}
}

func TestStageIn_RunsInBash(t *testing.T) {
	for _, st := range []Stager{Copy{}, Link{}} {
		t.Run(st.Name(), func(t *testing.T) {
			srcDir := t.TempDir()
			if err := os.MkdirAll(filepath.Join(srcDir, "sub"), 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(srcDir, "sub", "data.txt"), []byte("payload"), 0644); err != nil {
				t.Fatal(err)
			}
			dst := filepath.Join(t.TempDir(), "inputs", "wf", "A")

			frags, err := st.StageIn(context.Background(), &models.Task{}, &models.Task{WorkingDir: srcDir}, dst, "sub/data.txt")
			if err != nil {
				t.Fatalf("StageIn failed: %v", err)
			}

			s := &script.Script{}
			s.Add(script.Assign("code", "0"), script.DirOp(filepath.Join(dst, "sub")), script.Check())
			s.Add(frags...)
			s.Add(script.Exit())

			out, err := exec.Command("/bin/bash", "-c", s.Render()).CombinedOutput()
			if err != nil {
				t.Fatalf("staging script failed: %v\n%s\n%s", err, s.Render(), out)
			}
			got, err := os.ReadFile(filepath.Join(dst, "sub", "data.txt"))
			if err != nil {
				t.Fatalf("staged file missing: %v", err)
			}
			if string(got) != "payload" {
				t.Errorf("staged content = %q", got)
			}
		})
	}
}

func TestStageIn_NoSource(t *testing.T) {
	_, err := Copy{}.StageIn(context.Background(), &models.Task{}, &models.Task{}, "/dst", "a.txt")
	if err == nil || !strings.Contains(err.Error(), "working directory") {
		t.Errorf("error = %v, want missing working directory", err)
	}

	frags, err := Noop{}.StageIn(context.Background(), nil, nil, "/dst", "a.txt")
	if err != nil || len(frags) != 0 {
		t.Errorf("Noop = %v, %v", frags, err)
	}
}

func TestLink_UsesProbedHost(t *testing.T) {
	src := &models.Task{Name: "A", WorkingDir: "/scratch/a", Info: map[string]string{HostKey: "node1"}}

	tests := []struct {
		name string
		host string
		cmd  string
	}{
		{"same host", "node1", "ln -sfn "},
		{"unprobed consumer", "", "ln -sfn "},
		{"other host", "node2", "cp -r "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumer := &models.Task{Name: "B", Info: map[string]string{HostKey: tt.host}}
			frags, err := Link{}.StageIn(context.Background(), consumer, src, "/scratch/b/.control/inputs/wf/A", "out.txt")
			if err != nil {
				t.Fatalf("StageIn failed: %v", err)
			}
			if len(frags) == 0 || !strings.HasPrefix(frags[0].Text, tt.cmd) {
				t.Errorf("fragments = %+v, want a command starting %q", frags, tt.cmd)
			}
		})
	}
}
