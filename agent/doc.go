// Package agent defines the contract every analysis agent fulfils and the
// model backed implementation shared by all agent kinds. The package
// focuses on four concerns:
//
//  1. The Agent capability set {React, Execute, Summarize, Consult}
//  2. Identity and topic wiring (Descriptor, BaseAgent, Registry)
//  3. Prompt assembly with collaborative clarification history (ModelAgent)
//  4. Defensive parsing of untrusted model text (ParseOutput)
//
// Design principles:
//   - No global state; agents receive their model through the constructor
//   - Modeled failures are outputs with StatusError, never returned errors
//   - Summaries and predicates tolerate missing or mistyped fields
//
// Concrete agent kinds live in sub-packages and are registered into a
// Registry in a fixed order at startup.
package agent
