// Package core holds the value types shared by every other package: the
// immutable Event published on the bus, the AgentOutput produced by an agent
// execution, reserved sender ids and small helpers for the loosely typed
// JSON maps agents exchange.
//
// The package has no behaviour beyond construction and copying so that the
// bus, agents, administrator and engine can depend on it without cycles.
package core
