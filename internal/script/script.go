// Package script assembles launcher and context scripts from typed fragments.
//
// Scripts are built as an ordered list of fragments and only rendered to shell
// text at the boundary, so callers can inspect what a script will do without
// matching on its text.
package script

import (
	"strings"
)

// DefaultInterpreter is used when a Builder has none configured.
const DefaultInterpreter = "/bin/bash"

// HeaderMarker identifies scripts produced by this package.
const HeaderMarker = "# wfsandbox launcher script"

// Kind is the type of a fragment.
type Kind string

const (
	KindComment Kind = "comment"
	KindAssign  Kind = "assign"
	KindCd      Kind = "cd"
	KindDirOp   Kind = "dir"
	KindStageOp Kind = "stage"
	KindInvoke  Kind = "invoke"
	KindCheck   Kind = "check"
	KindExit    Kind = "exit"
	KindRaw     Kind = "raw"
)

// Fragment is one step of a script.
type Fragment struct {
	Kind Kind
	// Text is the comment, command, body or raw text.
	Text string
	// Path is the target of cd and dir fragments.
	Path string
	// Name and Value are set on assign fragments.
	Name  string
	Value string
}

// Fragment constructors.
func Comment(text string) Fragment { return Fragment{Kind: KindComment, Text: text} }
func Assign(name, value string) Fragment { return Fragment{Kind: KindAssign, Name: name, Value: value} }
func Cd(path string) Fragment { return Fragment{Kind: KindCd, Path: path} }
func DirOp(path string) Fragment { return Fragment{Kind: KindDirOp, Path: path} }
func StageOp(cmd string) Fragment { return Fragment{Kind: KindStageOp, Text: cmd} }
func Invoke(body string) Fragment { return Fragment{Kind: KindInvoke, Text: body} }
func Check() Fragment { return Fragment{Kind: KindCheck} }
func Exit() Fragment { return Fragment{Kind: KindExit} }
func Raw(text string) Fragment { return Fragment{Kind: KindRaw, Text: text} }

// Render returns the shell text of a single fragment.
func (f Fragment) Render() string {
	switch f.Kind {
	case KindComment:
		return "# " + f.Text
	case KindAssign:
		return f.Name + "=" + f.Value
	case KindCd:
		return "cd " + Quote(f.Path)
	case KindDirOp:
		return "mkdir -p " + Quote(f.Path)
	case KindCheck:
		return "if [ $? -ne 0 ]; then code=1; fi"
	case KindExit:
		return "exit $code"
	default:
		return f.Text
	}
}

// Script is an ordered list of fragments.
type Script struct {
	Fragments []Fragment
}

// Add appends fragments.
func (s *Script) Add(f ...Fragment) {
	s.Fragments = append(s.Fragments, f...)
}

// OfKind returns the fragments of the given kind in order.
func (s *Script) OfKind(k Kind) []Fragment {
	var out []Fragment
	for _, f := range s.Fragments {
		if f.Kind == k {
			out = append(out, f)
		}
	}
	return out
}

// Render returns the executable script text.
func (s *Script) Render() string {
	var b strings.Builder
	for _, f := range s.Fragments {
		b.WriteString(f.Render())
		b.WriteByte('\n')
	}
	return b.String()
}

// Builder produces launcher and context scripts.
type Builder struct {
	Interpreter string
}

// NewBuilder creates a Builder for the given interpreter.
func NewBuilder(interpreter string) *Builder {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	return &Builder{Interpreter: interpreter}
}

func (b *Builder) header() []Fragment {
	return []Fragment{
		Raw("#!" + b.Interpreter),
		Raw(HeaderMarker),
		Raw(""),
		Assign("code", "0"),
	}
}

// Context builds the script that runs a probe body inside the control directory.
func (b *Builder) Context(controlDir, probeBody string) *Script {
	s := &Script{}
	s.Add(b.header()...)
	s.Add(Cd(controlDir), Check())
	s.Add(Raw(probeBody), Check())
	s.Add(Exit())
	return s
}

// Launcher builds the script that stages inputs and invokes body in workingDir.
// staging is emitted in the given order.
func (b *Builder) Launcher(workingDir string, staging []Fragment, body string) *Script {
	s := &Script{}
	s.Add(b.header()...)
	s.Add(Comment("Change the current directory to the working directory"))
	s.Add(Cd(workingDir), Check())
	s.Add(Comment("Start staging in"))
	s.Add(staging...)
	s.Add(Comment("Invoke the command"))
	s.Add(Invoke(body), Check())
	s.Add(Exit())
	return s
}

// Quote single-quotes s for the shell.
func Quote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("/._-+:@%,=", r)
}
