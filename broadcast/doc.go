// Package broadcast carries the user-visible notifications of a run (team
// chat lines, agent status changes and workflow lifecycle markers) to
// whoever is watching.
//
// Delivery is best effort: a Broadcaster never blocks the engine and never
// reports failure back to it.
package broadcast
