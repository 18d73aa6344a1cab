// Package resolver turns workflow:// references in a command into staged local paths.
package resolver

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fentz26/wfsandbox/internal/apperr"
	"github.com/fentz26/wfsandbox/internal/locator"
	"github.com/fentz26/wfsandbox/internal/models"
	"github.com/fentz26/wfsandbox/internal/sandbox"
	"github.com/fentz26/wfsandbox/internal/script"
	"github.com/fentz26/wfsandbox/internal/staging"
)

// Registry looks up tasks that produced outputs.
type Registry interface {
	// FindTaskByName returns nil, nil when no task matches.
	FindTaskByName(ctx context.Context, workflow, name string) (*models.Task, error)
}

// Policy decides what happens to references the registry cannot resolve.
type Policy string

const (
	// PolicyFail aborts preprocessing with UnresolvedReference.
	PolicyFail Policy = "fail"
	// PolicyPassthrough leaves the reference text in the command unchanged.
	PolicyPassthrough Policy = "passthrough"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFail:
		return PolicyFail, nil
	case PolicyPassthrough:
		return PolicyPassthrough, nil
	}
	return "", fmt.Errorf("unknown unresolved policy %q", s)
}

// Reference is one resolved locator.
type Reference struct {
	Match          locator.Match
	Workflow       string
	Source         *models.Task
	DestinationDir string
	// Path is what the locator is rewritten to.
	Path string
}

// Plan is the result of resolving a command.
type Plan struct {
	Staging    []script.Fragment
	Body       string
	References []Reference
	Unresolved []locator.Match
}

// Resolver resolves references against a registry and stages them with a stager.
type Resolver struct {
	registry Registry
	stager   staging.Stager
	policy   Policy
}

// New creates a new Resolver.
func New(reg Registry, st staging.Stager, policy Policy) *Resolver {
	if st == nil {
		st = staging.Noop{}
	}
	if policy == "" {
		policy = PolicyFail
	}
	return &Resolver{registry: reg, stager: st, policy: policy}
}

// Resolve scans command for locators and plans their staging into task's sandbox.
// Locators without a workflow resolve against currentWorkflow.
func (r *Resolver) Resolve(ctx context.Context, command string, task *models.Task, currentWorkflow string) (*Plan, error) {
	if task.WorkingDir == "" {
		return nil, fmt.Errorf("task %s has no working directory", task.Name)
	}

	matches, err := locator.Scan(command)
	if err != nil {
		return nil, apperr.WithTask(err, task.Name)
	}

	plan := &Plan{}
	var subs []locator.Substitution
	for _, m := range matches {
		wf := m.Locator.Workflow
		if wf == "" {
			wf = currentWorkflow
		}

		source, err := r.registry.FindTaskByName(ctx, wf, m.Locator.Task)
		if err != nil {
			return nil, fmt.Errorf("find task %s/%s: %w", wf, m.Locator.Task, err)
		}
		if source == nil {
			if r.policy == PolicyFail {
				return nil, &apperr.Error{
					Kind: apperr.UnresolvedReference,
					Task: task.Name,
					Msg:  fmt.Sprintf("no task %q in workflow %q", m.Locator.Task, wf),
					Path: m.Raw,
				}
			}
			log.Printf("Leaving unresolved reference %s in task %s", m.Raw, task.Name)
			plan.Unresolved = append(plan.Unresolved, m)
			continue
		}

		rel := m.Locator.RelativePath
		dst := sandbox.InputsDir(task, wf, m.Locator.Task)
		plan.Staging = append(plan.Staging,
			script.Comment("Create the destination directory"),
			script.DirOp(filepath.Join(dst, filepath.Dir(rel))),
			script.Check(),
		)

		frags, err := r.stager.StageIn(ctx, task, source, dst, rel)
		if err != nil {
			return nil, fmt.Errorf("stage in %s: %w", m.Raw, err)
		}
		plan.Staging = append(plan.Staging, frags...)

		target := filepath.Join(dst, rel)
		text := m.Replacement(target)
		if m.Quote == 0 {
			text = script.Quote(target)
		}
		subs = append(subs, locator.Substitution{Start: m.Start, End: m.End, Text: text})
		plan.References = append(plan.References, Reference{
			Match:          m,
			Workflow:       wf,
			Source:         source,
			DestinationDir: dst,
			Path:           target,
		})
	}

	body, err := locator.Rewrite(command, subs)
	if err != nil {
		return nil, fmt.Errorf("rewrite command: %w", err)
	}
	plan.Body = body
	return plan, nil
}
