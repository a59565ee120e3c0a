package engine

import (
	"context"
	"testing"

	"github.com/DowellHd/smart-stock-auth/internal/account/domain"
)

func TestLoginEvaluator_HealthCheck(t *testing.T) {
	e := NewLoginEvaluator("", nil)
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("default policy health check: %v", err)
	}
}

func TestLoginEvaluator_DefaultPolicy(t *testing.T) {
	e := NewLoginEvaluator("", nil)
	ctx := context.Background()

	active := &domain.Account{Status: domain.StatusActive, EmailVerified: true}
	if res := e.Evaluate(ctx, active); !res.Allow {
		t.Fatalf("active verified account denied: %+v", res)
	}

	// Unverified email passes the default policy.
	unverified := &domain.Account{Status: domain.StatusActive, EmailVerified: false}
	if res := e.Evaluate(ctx, unverified); !res.Allow {
		t.Fatalf("unverified account denied by default policy: %+v", res)
	}

	disabled := &domain.Account{Status: domain.StatusDisabled, EmailVerified: true}
	res := e.Evaluate(ctx, disabled)
	if res.Allow {
		t.Fatal("disabled account admitted")
	}
	if res.Reason != ReasonAccountDisabled {
		t.Fatalf("reason = %q, want %q", res.Reason, ReasonAccountDisabled)
	}
}

func TestLoginEvaluator_StrictVerificationPolicy(t *testing.T) {
	const strict = `package smartstock.login

default allow = false
default reason = ""

allow if {
	input.account.status == "active"
	input.account.email_verified
}

reason = "account_disabled" if {
	input.account.status != "active"
}

reason = "email_not_verified" if {
	input.account.status == "active"
	not input.account.email_verified
}
`
	e := NewLoginEvaluator(strict, nil)
	ctx := context.Background()

	res := e.Evaluate(ctx, &domain.Account{Status: domain.StatusActive, EmailVerified: false})
	if res.Allow {
		t.Fatal("strict policy admitted unverified account")
	}
	if res.Reason != ReasonEmailNotVerified {
		t.Fatalf("reason = %q, want %q", res.Reason, ReasonEmailNotVerified)
	}

	if res := e.Evaluate(ctx, &domain.Account{Status: domain.StatusActive, EmailVerified: true}); !res.Allow {
		t.Fatalf("strict policy denied verified account: %+v", res)
	}
}

func TestLoginEvaluator_BrokenPolicyFailsOpen(t *testing.T) {
	e := NewLoginEvaluator("package smartstock.login\n\nallow if {", nil)
	res := e.Evaluate(context.Background(), &domain.Account{Status: domain.StatusActive})
	if !res.Allow {
		t.Fatal("broken policy should fail open")
	}
}
