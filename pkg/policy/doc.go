// Package policy provides Open Policy Agent (OPA) integration for berthd.
//
// This package implements deploy admission control using the Rego policy
// language. Before an artifact is pushed to a remote server the engine
// evaluates every enabled policy against the target server and the artifact
// source, and blocks the deploy when a policy denies it. It includes
// built-in guardrail policies and supports custom policy loading.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Loader - Loads policies from files and directories
//  3. Types - Data structures for policies, violations, and results
//  4. Built-in Policies - Pre-defined guardrails
//
// # Usage
//
// Creating a policy engine:
//
//	logger := zerolog.New(os.Stdout)
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Gating a deploy:
//
//	server := &runtime.Server{
//	    Name:    "web-1",
//	    Address: "web-1.internal:22",
//	    Labels:  map[string]string{"env": "production"},
//	}
//
//	if err := engine.AdmitDeploy(server, "dist/app.tar.gz"); err != nil {
//	    fmt.Printf("deploy blocked: %v\n", err)
//	}
//
// Loading custom policies:
//
//	paths := []string{
//	    "/etc/berth/policies",
//	    "/opt/policies/custom.rego",
//	}
//
//	err = engine.LoadPolicies(ctx, paths)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. source-guardrails - Rejects empty or path-traversing artifact sources
//  2. frozen-server - Blocks deploys to servers labeled frozen=true
//  3. production-deploy-warning - Flags deploys to production-labeled servers
//
// # Custom Policies
//
// Custom policies can be written in Rego and loaded from files:
//
//	package custom.policies.owner
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.server
//	    not input.server.labels.owner
//
//	    violation := {
//	        "message": "Servers must carry an owner label before deploys",
//	        "severity": "error",
//	        "server": input.server.name,
//	    }
//	}
//
// # Severity Levels
//
// Violations have four severity levels:
//
//  - info: Informational messages
//  - warning: Issues that should be reviewed but don't block deploys
//  - error: Issues that block deploys
//  - critical: Severe issues requiring immediate attention
//
// Only error and critical violations cause AdmitDeploy to fail; warnings
// are reported in the Result but do not block.
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading
// automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, engine.ApplyPolicies)
//
// # Context Injection
//
// Policy evaluations can include context information:
//
//  - User: Who initiated the deploy
//  - Environment: Target environment (production, staging, etc.)
//  - Operation: Type of operation (deploy)
//  - Timestamp: When the evaluation occurred
//
// This context allows policies to make environment-aware decisions.
package policy
