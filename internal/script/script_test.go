package script

import (
	"strings"
	"testing"
)

func TestLauncherOrder(t *testing.T) {
	b := NewBuilder("")
	staging := []Fragment{
		DirOp("/wd/.control/inputs/wf/A/."), Check(),
		StageOp("cp -r /src/a.txt /wd/.control/inputs/wf/A/."), Check(),
	}
	s := b.Launcher("/wd", staging, "cat /wd/.control/inputs/wf/A/a.txt")

	text := s.Render()
	if !strings.HasPrefix(text, "#!/bin/bash\n"+HeaderMarker+"\n") {
		t.Errorf("script does not start with interpreter and marker:\n%s", text)
	}

	order := []string{"code=0", "cd /wd", "mkdir -p /wd/.control/inputs/wf/A/.", "cp -r", "cat /wd/.control", "exit $code"}
	last := -1
	for _, want := range order {
		i := strings.Index(text, want)
		if i < 0 {
			t.Fatalf("script missing %q:\n%s", want, text)
		}
		if i < last {
			t.Errorf("%q appears out of order", want)
		}
		last = i
	}

	if n := len(s.OfKind(KindCheck)); n != 4 {
		t.Errorf("Check fragments = %d, want 4", n)
	}
	if inv := s.OfKind(KindInvoke); len(inv) != 1 || inv[0].Text != "cat /wd/.control/inputs/wf/A/a.txt" {
		t.Errorf("Invoke fragments = %+v", inv)
	}
	if !strings.HasSuffix(text, "if [ $? -ne 0 ]; then code=1; fi\nexit $code\n") {
		t.Errorf("script does not end with check and exit:\n%s", text)
	}
}

func TestContextScript(t *testing.T) {
	s := NewBuilder("/usr/bin/env bash").Context("/wd/.control", `echo '{}'`)
	text := s.Render()

	if !strings.HasPrefix(text, "#!/usr/bin/env bash\n") {
		t.Errorf("unexpected interpreter line:\n%s", text)
	}
	if !strings.Contains(text, "cd /wd/.control\n") || !strings.Contains(text, "echo '{}'\n") {
		t.Errorf("context script missing cd or probe body:\n%s", text)
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/tmp/a-b_c.txt", "/tmp/a-b_c.txt"},
		{"/tmp/with space", "'/tmp/with space'"},
		{"it's", `'it'\''s'`},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
