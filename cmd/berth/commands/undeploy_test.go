package commands

import (
	"context"
	"strings"
	"testing"

	"github.com/berthd/berthd/pkg/runtime"
)

// stubLookupRuntime is a server runtime that can also resolve deployments
// by name.
type stubLookupRuntime struct {
	stubServerRuntime
	lookedUp string
}

func (r *stubLookupRuntime) LookupDeployment(name string) runtime.DeploymentRuntime {
	r.lookedUp = name
	return &stubDeploymentRuntime{}
}

func TestLookupDeploymentRuntimeTeardown(t *testing.T) {
	inst := &stubLookupRuntime{}
	connector := &stubConnector{instance: inst}

	rt, teardown, err := lookupDeploymentRuntime(context.Background(), connector, "web-1", "app.tar.gz")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if rt == nil {
		t.Fatal("expected a deployment runtime")
	}
	if inst.lookedUp != "app.tar.gz" {
		t.Errorf("expected lookup of app.tar.gz, got %q", inst.lookedUp)
	}
	if inst.isDisconnected() {
		t.Fatal("session closed before teardown")
	}

	teardown()
	if !inst.isDisconnected() {
		t.Error("expected teardown to close the session")
	}
}

func TestLookupDeploymentRuntimeConnectFailure(t *testing.T) {
	connector := &stubConnector{failMsg: "dial tcp: connection refused"}

	rt, _, err := lookupDeploymentRuntime(context.Background(), connector, "web-1", "app.tar.gz")
	if err == nil {
		t.Fatal("expected an error for a failed connect")
	}
	if rt != nil {
		t.Fatal("expected no deployment runtime")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected the connect diagnostic in the error, got %q", err.Error())
	}
}

func TestLookupDeploymentRuntimeUnsupportedTransport(t *testing.T) {
	inst := &stubServerRuntime{}
	connector := &stubConnector{instance: inst}

	rt, _, err := lookupDeploymentRuntime(context.Background(), connector, "web-1", "app.tar.gz")
	if err == nil {
		t.Fatal("expected an error for a transport without lookup support")
	}
	if rt != nil {
		t.Fatal("expected no deployment runtime")
	}
	if !inst.isDisconnected() {
		t.Error("expected the session to be closed on failure")
	}
}
