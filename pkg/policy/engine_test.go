package policy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/berthd/berthd/pkg/runtime"
)

func TestNewEngine(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	if eng == nil {
		t.Fatal("Engine is nil")
	}

	// Check that built-in policies are loaded
	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("No built-in policies loaded")
	}

	expectedPolicies := []string{
		"source-guardrails",
		"frozen-server",
		"production-deploy-warning",
	}

	for _, expected := range expectedPolicies {
		found := false
		for _, p := range policies {
			if p.Name == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected built-in policy not found: %s", expected)
		}
	}
}

func TestEvaluateDeploy_SourceGuardrails(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name            string
		source          string
		expectAllowed   bool
		expectViolation bool
	}{
		{
			name:            "valid source",
			source:          "dist/app.tar.gz",
			expectAllowed:   true,
			expectViolation: false,
		},
		{
			name:            "empty source",
			source:          "",
			expectAllowed:   false,
			expectViolation: true,
		},
		{
			name:            "path traversal",
			source:          "../../etc/passwd",
			expectAllowed:   false,
			expectViolation: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := &Input{
				Server: &ServerInput{
					Name:    "web-1",
					Address: "web-1.internal:22",
					Labels:  map[string]string{"env": "staging"},
				},
				Source: tt.source,
				Context: &Context{
					Timestamp: time.Now(),
					Operation: "deploy",
				},
			}

			result, err := eng.EvaluateDeploy(context.Background(), input)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}

			hasViolation := len(result.Violations) > 0
			if hasViolation != tt.expectViolation {
				t.Errorf("Expected violation=%v, got %v violations: %+v",
					tt.expectViolation, hasViolation, result.Violations)
			}
		})
	}
}

func TestEvaluateDeploy_FrozenServer(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	input := &Input{
		Server: &ServerInput{
			Name:    "db-1",
			Address: "db-1.internal:22",
			Labels:  map[string]string{"frozen": "true"},
		},
		Source: "dist/app.tar.gz",
		Context: &Context{
			Timestamp: time.Now(),
			Operation: "deploy",
		},
	}

	result, err := eng.EvaluateDeploy(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if result.Allowed {
		t.Error("Expected deploy to a frozen server to be blocked")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "frozen-server" {
			found = true
			if v.Server != "db-1" {
				t.Errorf("Expected violation server db-1, got %q", v.Server)
			}
			if v.Severity != SeverityError {
				t.Errorf("Expected error severity, got %s", v.Severity)
			}
		}
	}
	if !found {
		t.Errorf("Expected a frozen-server violation, got: %+v", result.Violations)
	}
}

func TestEvaluateDeploy_ProductionWarningDoesNotBlock(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	input := &Input{
		Server: &ServerInput{
			Name:    "web-prod-1",
			Address: "web-prod-1.internal:22",
			Labels:  map[string]string{"env": "production"},
		},
		Source: "dist/app.tar.gz",
		Context: &Context{
			Timestamp: time.Now(),
			Operation: "deploy",
		},
	}

	result, err := eng.EvaluateDeploy(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Errorf("Warning-severity violations must not block. Violations: %+v", result.Violations)
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "production-deploy-warning" {
			found = true
			if v.Severity != SeverityWarning {
				t.Errorf("Expected warning severity, got %s", v.Severity)
			}
		}
	}
	if !found {
		t.Errorf("Expected a production-deploy-warning violation, got: %+v", result.Violations)
	}
}

func TestAdmitDeploy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	server := &runtime.Server{
		Name:    "web-1",
		Address: "web-1.internal:22",
		Labels:  map[string]string{"env": "staging"},
	}

	if err := eng.AdmitDeploy(server, "dist/app.tar.gz"); err != nil {
		t.Errorf("Expected deploy to be admitted, got: %v", err)
	}

	frozen := &runtime.Server{
		Name:    "db-1",
		Address: "db-1.internal:22",
		Labels:  map[string]string{"frozen": "true"},
	}

	err = eng.AdmitDeploy(frozen, "dist/app.tar.gz")
	if err == nil {
		t.Fatal("Expected deploy to a frozen server to be rejected")
	}
	if !strings.Contains(err.Error(), "frozen") {
		t.Errorf("Expected the error to carry the violation message, got: %v", err)
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policyName := "frozen-server"

	// Disable the policy
	err = eng.DisablePolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	policy, err := eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}

	if policy.Enabled {
		t.Error("Policy should be disabled")
	}

	// A frozen server now passes admission
	frozen := &runtime.Server{
		Name:   "db-1",
		Labels: map[string]string{"frozen": "true"},
	}
	if err := eng.AdmitDeploy(frozen, "dist/app.tar.gz"); err != nil {
		t.Errorf("Disabled policy should not block deploys: %v", err)
	}

	// Re-enable the policy
	err = eng.EnablePolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}

	policy, err = eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}

	if !policy.Enabled {
		t.Error("Policy should be enabled")
	}
}

func TestApplyPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	custom := Policy{
		Name:      "owner-label",
		Severity:  SeverityError,
		Enabled:   true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Rego: `package berth.policies.owner

import rego.v1

deny contains violation if {
	input.server
	not input.server.labels.owner
	violation := {
		"message": "server has no owner label",
		"severity": "error",
		"server": input.server.name,
	}
}
`,
	}

	if err := eng.ApplyPolicies([]Policy{custom}); err != nil {
		t.Fatalf("Failed to apply policies: %v", err)
	}

	if _, err := eng.GetPolicy("owner-label"); err != nil {
		t.Fatalf("Applied policy not found: %v", err)
	}

	unowned := &runtime.Server{Name: "web-1", Labels: map[string]string{}}
	if err := eng.AdmitDeploy(unowned, "dist/app.tar.gz"); err == nil {
		t.Error("Expected the custom policy to block the deploy")
	}

	owned := &runtime.Server{Name: "web-1", Labels: map[string]string{"owner": "platform"}}
	if err := eng.AdmitDeploy(owned, "dist/app.tar.gz"); err != nil {
		t.Errorf("Expected the deploy to pass with an owner label: %v", err)
	}
}

func TestReloadPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	initialCount := len(eng.ListPolicies())

	custom := Policy{
		Name:    "scratch",
		Enabled: true,
		Rego:    "package berth.policies.scratch\n\nimport rego.v1\n",
	}
	if err := eng.ApplyPolicies([]Policy{custom}); err != nil {
		t.Fatalf("Failed to apply policy: %v", err)
	}

	// Reload drops custom policies and restores built-ins
	err = eng.ReloadPolicies()
	if err != nil {
		t.Fatalf("Failed to reload policies: %v", err)
	}

	afterReloadCount := len(eng.ListPolicies())

	if initialCount != afterReloadCount {
		t.Errorf("Expected %d policies after reload, got %d", initialCount, afterReloadCount)
	}

	if _, err := eng.GetPolicy("scratch"); err == nil {
		t.Error("Expected the custom policy to be gone after reload")
	}
}

func TestListPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policies := eng.ListPolicies()

	if len(policies) == 0 {
		t.Fatal("No policies returned")
	}

	// Check that all policies have required fields
	for _, p := range policies {
		if p.Name == "" {
			t.Error("Policy has empty name")
		}
		if p.Rego == "" {
			t.Error("Policy has empty Rego code")
		}
		if p.CreatedAt.IsZero() {
			t.Error("Policy has zero CreatedAt")
		}
	}
}
