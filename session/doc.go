// Package session holds per-session orchestration state and its stores.
//
// State is the blackboard of one run: the shared context keyed by agent id,
// the lifecycle status, the ordered clarification log and the cancellation
// handle used on termination. InMemoryStore keeps live sessions for the
// lifetime of the process; RedisArchive persists finished records.
package session
