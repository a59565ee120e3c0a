// Package engine evaluates login admission with OPA Rego. The policy decides
// whether an account that presented valid credentials may proceed, and whether
// an unverified email blocks the login or only annotates it.
package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"github.com/DowellHd/smart-stock-auth/internal/account/domain"
)

// Denial reasons surfaced by the default policy.
const (
	ReasonAccountDisabled  = "account_disabled"
	ReasonEmailNotVerified = "email_not_verified"
)

// Default Rego policy: disabled accounts are always denied, unverified email
// is allowed through but flagged so the deployment can tighten it by shipping
// a replacement policy.
const defaultRegoPolicy = `package smartstock.login

default allow = false
default reason = ""

allow if {
	input.account.status == "active"
}

reason = "account_disabled" if {
	input.account.status != "active"
}
`

// AdmissionResult is the policy's verdict for one login attempt.
type AdmissionResult struct {
	Allow  bool
	Reason string
}

// LoginEvaluator evaluates login-admission policies using in-process OPA Rego.
type LoginEvaluator struct {
	policy string
	log    *zap.Logger
}

// NewLoginEvaluator returns an evaluator for the given Rego source. An empty
// source falls back to the built-in default policy.
func NewLoginEvaluator(policy string, log *zap.Logger) *LoginEvaluator {
	if policy == "" {
		policy = defaultRegoPolicy
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LoginEvaluator{policy: policy, log: log}
}

// HealthCheck verifies that the configured policy compiles and evaluates.
// Returns nil on success.
func (e *LoginEvaluator) HealthCheck(ctx context.Context) error {
	compiler, err := ast.CompileModules(map[string]string{"login_admission.rego": e.policy})
	if err != nil {
		return fmt.Errorf("compile login policy: %w", err)
	}
	q := rego.New(
		rego.Query("data.smartstock.login.allow"),
		rego.Compiler(compiler),
		rego.Input(minimalInput()),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval login policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// Evaluate runs the admission policy for an account that has already passed
// credential verification. Fails open: if the policy cannot be compiled or
// evaluated the attempt is admitted and the failure is logged, so a broken
// policy push does not lock every user out.
func (e *LoginEvaluator) Evaluate(ctx context.Context, a *domain.Account) AdmissionResult {
	input := buildInput(a)

	compiler, err := ast.CompileModules(map[string]string{"login_admission.rego": e.policy})
	if err != nil {
		e.log.Error("login policy compile failed, admitting", zap.Error(err))
		return AdmissionResult{Allow: true}
	}

	out := AdmissionResult{Allow: false}

	allowQuery := rego.New(
		rego.Query("data.smartstock.login.allow"),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	allowRS, err := allowQuery.Eval(ctx)
	if err != nil {
		e.log.Error("login policy eval failed, admitting", zap.Error(err))
		return AdmissionResult{Allow: true}
	}
	if len(allowRS) > 0 && len(allowRS[0].Expressions) > 0 {
		if v, ok := allowRS[0].Expressions[0].Value.(bool); ok {
			out.Allow = v
		}
	}

	reasonQuery := rego.New(
		rego.Query("data.smartstock.login.reason"),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	reasonRS, err := reasonQuery.Eval(ctx)
	if err == nil && len(reasonRS) > 0 && len(reasonRS[0].Expressions) > 0 {
		if v, ok := reasonRS[0].Expressions[0].Value.(string); ok {
			out.Reason = v
		}
	}

	return out
}

func buildInput(a *domain.Account) map[string]interface{} {
	acct := map[string]interface{}{
		"status":         "",
		"email_verified": false,
		"mfa_enabled":    false,
	}
	if a != nil {
		acct["status"] = string(a.Status)
		acct["email_verified"] = a.EmailVerified
		acct["mfa_enabled"] = a.MFAEnabled
	}
	return map[string]interface{}{"account": acct}
}

func minimalInput() map[string]interface{} {
	return map[string]interface{}{
		"account": map[string]interface{}{
			"status":         "active",
			"email_verified": true,
			"mfa_enabled":    false,
		},
	}
}
