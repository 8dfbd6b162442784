// Package audit records the append-only trail of a session: every event,
// agent start and completion, context snapshot, administrator ruling,
// clarification exchange and workflow marker.
//
// A Logger numbers entries per session and hands them to a Sink. Three
// sinks are provided:
//
//   - MemorySink keeps entries in process (tests, the run command)
//   - FileSink writes <dir>/<session>/blackboard.jsonl plus context_snapshots/
//     and agent_outputs/ side files
//   - RedisSink appends to one Redis stream per session
//
// Sink failures are logged and never interrupt a run.
package audit
