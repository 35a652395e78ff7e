// Package runtime coordinates connections to remote servers and the
// deployment state observed on them. It reconciles three independently
// arriving signals into one consistent view: connection state changes,
// locally initiated deploy/undeploy operations, and periodically polled
// remote inventories.
//
// All operations are callback-driven and non-blocking. Every continuation a
// caller supplies is invoked exactly once on every path, success or failure,
// and no failure crosses the callback boundary as an error value or panic;
// failures become observable state instead.
//
// One known simplification: the decision of whether a connect attempt is
// needed reads the live handle at a single instant, so concurrent callers may
// both invoke the connector. Connectors are required to tolerate this; the
// connection settles to the last completed attempt.
package runtime
