package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		sourceGuardrailsPolicy(),
		frozenServerPolicy(),
		productionLabelPolicy(),
	}
}

// sourceGuardrailsPolicy rejects malformed deployment sources.
func sourceGuardrailsPolicy() Policy {
	return Policy{
		Name:        "source-guardrails",
		Description: "Rejects empty deployment sources and sources containing path traversal",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"deploy", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package berth.policies.source

import rego.v1

# Every deploy needs a source artifact
deny contains violation if {
	input.source == ""
	violation := {
		"message": "deployment source must not be empty",
		"severity": "error",
	}
}

deny contains violation if {
	contains(input.source, "..")
	violation := {
		"message": sprintf("deployment source '%s' must not contain path traversal", [input.source]),
		"severity": "error",
	}
}
`,
	}
}

// frozenServerPolicy blocks deploys to servers labeled frozen.
func frozenServerPolicy() Policy {
	return Policy{
		Name:        "frozen-server",
		Description: "Blocks deployments to servers carrying the frozen=true label",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"deploy", "labels"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package berth.policies.frozen

import rego.v1

deny contains violation if {
	input.server.labels.frozen == "true"
	violation := {
		"message": sprintf("server '%s' is frozen and does not accept deployments", [input.server.name]),
		"severity": "error",
		"server": input.server.name,
	}
}
`,
	}
}

// productionLabelPolicy warns about deploys to production-labeled servers.
func productionLabelPolicy() Policy {
	return Policy{
		Name:        "production-deploy-warning",
		Description: "Flags deployments targeting servers labeled env=production",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"deploy", "labels"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package berth.policies.production

import rego.v1

deny contains violation if {
	input.server.labels.env == "production"
	violation := {
		"message": sprintf("deploying to production server '%s'", [input.server.name]),
		"severity": "warning",
		"server": input.server.name,
	}
}
`,
	}
}
