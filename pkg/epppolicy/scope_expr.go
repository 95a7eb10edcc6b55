// Package epppolicy implements the additive policy extensions SPEC_FULL.md
// layers on top of the trust registry's allowed_scopes list: a CEL scope
// expression and a JSON Schema capability validator. Both are purely
// restrictive — neither can admit an envelope that allowed_scopes alone
// would reject.
package epppolicy

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// ScopeEvaluator compiles and runs a trust entry's optional scope_expr: a
// CEL boolean expression over the admitted envelope's scope, sender, and
// payload, for policies that need more than a static allow-list (e.g.
// "scope.startsWith('tool.') && sender != recipient").
type ScopeEvaluator struct {
	env *cel.Env
}

// NewScopeEvaluator builds the CEL environment shared by every compiled
// expression.
func NewScopeEvaluator() (*ScopeEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("scope", cel.StringType),
		cel.Variable("sender", cel.StringType),
		cel.Variable("recipient", cel.StringType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("epppolicy: create CEL env: %w", err)
	}
	return &ScopeEvaluator{env: env}, nil
}

// Compile parses and type-checks a scope expression ahead of use.
func (se *ScopeEvaluator) Compile(expr string) (cel.Program, error) {
	ast, issues := se.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("epppolicy: compile scope_expr: %w", issues.Err())
	}
	prg, err := se.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("epppolicy: build program: %w", err)
	}
	return prg, nil
}

// Eval runs a compiled expression against an envelope's scope-gating
// inputs. A non-boolean result or an evaluation error fails closed (false).
func (se *ScopeEvaluator) Eval(prg cel.Program, scope, sender, recipient string, payload map[string]any) bool {
	out, _, err := prg.Eval(map[string]interface{}{
		"scope":     scope,
		"sender":    sender,
		"recipient": recipient,
		"payload":   payload,
	})
	if err != nil {
		return false
	}
	allowed, ok := out.Value().(bool)
	return ok && allowed
}
