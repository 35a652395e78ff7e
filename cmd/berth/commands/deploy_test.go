package commands

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/berthd/berthd/pkg/events"
	"github.com/berthd/berthd/pkg/runtime"
)

// stubConnector settles every connect attempt with a fixed outcome, either
// on the calling goroutine or from a background one.
type stubConnector struct {
	instance runtime.ServerRuntime
	failMsg  string
	async    bool
}

func (c *stubConnector) Connect(callback runtime.ConnectionCallback) {
	settle := func() {
		if c.failMsg != "" {
			callback.ConnectionFailed(c.failMsg)
			return
		}
		callback.Connected(c.instance)
	}
	if c.async {
		go func() {
			time.Sleep(20 * time.Millisecond)
			settle()
		}()
		return
	}
	settle()
}

// stubServerRuntime deploys everything successfully and records teardown.
type stubServerRuntime struct {
	mu           sync.Mutex
	disconnected bool
}

func (r *stubServerRuntime) DeploymentName(source string) string {
	return filepath.Base(source)
}

func (r *stubServerRuntime) Deploy(task *runtime.DeploymentTask, callback runtime.DeploymentCallback) {
	callback.Succeeded(&stubDeploymentRuntime{})
}

func (r *stubServerRuntime) ComputeDeployments(callback runtime.ComputeDeploymentsCallback) {
	callback.Succeeded()
}

func (r *stubServerRuntime) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = true
}

func (r *stubServerRuntime) isDisconnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnected
}

type stubDeploymentRuntime struct{}

func (r *stubDeploymentRuntime) Undeploy(callback runtime.UndeployCallback) {
	callback.Succeeded()
}

func newTestConnection(t *testing.T, connector runtime.Connector) (*runtime.Connection, *events.Bus) {
	t.Helper()
	bus := events.NewBus(events.Config{BufferSize: 16})
	t.Cleanup(func() { _ = bus.Close(context.Background()) })
	manager := runtime.NewManager(bus, zerolog.Nop())
	conn := manager.GetOrCreateConnection(&runtime.Server{Name: "web-1", Address: "10.0.0.1:22"}, connector)
	return conn, bus
}

func pingOnChange(t *testing.T, bus *events.Bus, connection string) <-chan struct{} {
	t.Helper()
	ch := make(chan struct{}, 1)
	id := bus.Subscribe(func(events.Event) {
		select {
		case ch <- struct{}{}:
		default:
		}
	}, events.FilterByConnection(connection))
	t.Cleanup(func() { bus.Unsubscribe(id) })
	return ch
}

func TestAwaitDeploymentSuccess(t *testing.T) {
	conn, bus := newTestConnection(t, &stubConnector{instance: &stubServerRuntime{}})
	changed := pingOnChange(t, bus, "web-1")

	started := make(chan string, 1)
	conn.Deploy(&runtime.DeploymentTask{Source: "dist/app.tar.gz"}, func(name string) {
		started <- name
	})

	d, outcome, err := awaitDeployment(context.Background(), conn, "web-1", "app.tar.gz", started, changed, time.After(10*time.Second))
	if err != nil {
		t.Fatalf("awaitDeployment failed: %v", err)
	}
	if outcome != "" {
		t.Errorf("expected no error outcome, got %q", outcome)
	}
	if d.Status() != runtime.DeploymentDeployed {
		t.Errorf("expected status %s, got %s", runtime.DeploymentDeployed, d.Status())
	}
}

func TestAwaitDeploymentConnectFailure(t *testing.T) {
	conn, bus := newTestConnection(t, &stubConnector{failMsg: "dial tcp 10.0.0.1:22: connection refused"})
	changed := pingOnChange(t, bus, "web-1")

	started := make(chan string, 1)
	conn.Deploy(&runtime.DeploymentTask{Source: "dist/app.tar.gz"}, func(name string) {
		started <- name
	})

	d, outcome, err := awaitDeployment(context.Background(), conn, "web-1", "app.tar.gz", started, changed, time.After(10*time.Second))
	if err == nil {
		t.Fatal("expected an error for a failed connect")
	}
	if d != nil {
		t.Fatalf("expected no deployment record, got %s", d.Name())
	}
	if outcome != "failed" {
		t.Errorf("expected outcome failed, got %q", outcome)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected the connect diagnostic in the error, got %q", err.Error())
	}
}

// A connect attempt that fails after the wait has already started must end
// the wait when the status event lands, well before the deadline.
func TestAwaitDeploymentConnectFailureAsync(t *testing.T) {
	conn, bus := newTestConnection(t, &stubConnector{failMsg: "ssh: handshake failed", async: true})
	changed := pingOnChange(t, bus, "web-1")

	started := make(chan string, 1)
	conn.Deploy(&runtime.DeploymentTask{Source: "dist/app.tar.gz"}, func(name string) {
		started <- name
	})

	begin := time.Now()
	d, outcome, err := awaitDeployment(context.Background(), conn, "web-1", "app.tar.gz", started, changed, time.After(30*time.Second))
	if err == nil {
		t.Fatal("expected an error for a failed connect")
	}
	if d != nil {
		t.Fatalf("expected no deployment record, got %s", d.Name())
	}
	if outcome != "failed" {
		t.Errorf("expected outcome failed, got %q", outcome)
	}
	if !strings.Contains(err.Error(), "handshake failed") {
		t.Errorf("expected the connect diagnostic in the error, got %q", err.Error())
	}
	if elapsed := time.Since(begin); elapsed > 10*time.Second {
		t.Errorf("wait did not end on the failure event, took %s", elapsed)
	}
}
