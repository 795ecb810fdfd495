// Package policy admits or denies completion requests with an OPA policy.
package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/rego"

	"github.com/xiaot623/gogo/chatd/internal/domain"
)

// Limits are the operator-configured bounds handed to the policy.
type Limits struct {
	MaxTokens     int
	AllowedModels []string
}

// Request describes a completion request for admission.
type Request struct {
	Model        string
	MaxTokens    *int
	Stream       bool
	MessageCount int
}

// Engine is the OPA policy engine.
type Engine struct {
	query  rego.PreparedEvalQuery
	limits Limits
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string, limits Limits) (*Engine, error) {
	r := rego.New(
		rego.Query("data.chat_policy.deny"),
		rego.Module("chat_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query, limits: limits}, nil
}

// Evaluate returns the denial reasons for req, sorted. An empty result
// admits the request.
func (e *Engine) Evaluate(ctx context.Context, req Request) ([]string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(e.input(req)))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	set, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}
	reasons := make([]string, 0, len(set))
	for _, v := range set {
		reasons = append(reasons, fmt.Sprint(v))
	}
	sort.Strings(reasons)
	return reasons, nil
}

// Check is Evaluate folded into an error wrapping domain.ErrPolicyDenied.
func (e *Engine) Check(ctx context.Context, req Request) error {
	reasons, err := e.Evaluate(ctx, req)
	if err != nil {
		return err
	}
	if len(reasons) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrPolicyDenied, strings.Join(reasons, "; "))
	}
	return nil
}

// input builds the policy document. Absent request fields stay absent so
// rules over them are undefined rather than compared against null.
func (e *Engine) input(req Request) map[string]interface{} {
	allowed := make([]interface{}, 0, len(e.limits.AllowedModels))
	for _, m := range e.limits.AllowedModels {
		allowed = append(allowed, m)
	}
	in := map[string]interface{}{
		"model":         req.Model,
		"stream":        req.Stream,
		"message_count": req.MessageCount,
		"limits": map[string]interface{}{
			"max_tokens":     e.limits.MaxTokens,
			"allowed_models": allowed,
		},
	}
	if req.MaxTokens != nil {
		in["max_tokens"] = *req.MaxTokens
	}
	return in
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package chat_policy

# Reject completions asking for more tokens than the operator allows.
deny[msg] {
	input.limits.max_tokens > 0
	input.max_tokens > input.limits.max_tokens
	msg := sprintf("max_tokens %v exceeds limit %v", [input.max_tokens, input.limits.max_tokens])
}

deny[msg] {
	input.max_tokens < 0
	msg := "max_tokens must not be negative"
}

# An empty allow-list admits every model.
deny[msg] {
	count(input.limits.allowed_models) > 0
	input.model != ""
	not model_allowed
	msg := sprintf("model %q is not allowed", [input.model])
}

model_allowed {
	input.limits.allowed_models[_] == input.model
}
`
