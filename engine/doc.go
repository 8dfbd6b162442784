// Package engine implements the dispatch loop of crucible.
//
// The Engine owns the live sessions of one agent registry. Every run of a
// session gets a fresh event bus and a fresh Administrator; the agents react
// to published events, write their results into the session's shared
// context and publish follow-up events until the Administrator declares the
// run complete, a clarification pauses it or the user terminates it.
//
// # Core Responsibilities
//
// Session Lifecycle:
//   - StartRun/Run create a session and kick off its run
//   - SubmitClarification records an answer and replays the run
//   - Terminate is a one-way hard stop that cancels in-flight executions
//   - Remove archives and forgets a session
//
// Dispatch:
//   - One context snapshot per event shared by all reacting agents
//   - Concurrent agent branches, each aborted alone when its agent faults
//   - Merge, safety check and administrator ruling under the session mutex
//   - Outbound events queued FIFO and published one at a time
//
// Collaborators:
//   - broadcast.Broadcaster receives chat, agent and workflow notifications
//   - audit.Logger records the audit trail
//   - metrics.Metrics and the CallbackManager observe the lifecycle
//   - session.Archiver stores final records
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────┐
//	│                        Engine                         │
//	│  StartRun · Run · SubmitClarification · Terminate     │
//	├───────────────────────────────────────────────────────┤
//	│                    run (per pass)                     │
//	│  ┌────────────┐  ┌─────────────┐  ┌────────────────┐  │
//	│  │ work queue │→ │  bus.Bus    │→ │   dispatch     │  │
//	│  └────────────┘  └─────────────┘  └───────┬────────┘  │
//	│        ↑                                  │ branches  │
//	│        └──── admin.Administrator ←────────┘           │
//	├───────────────────────────────────────────────────────┤
//	│         session.State (context, status, log)          │
//	└───────────────────────────────────────────────────────┘
//
// # Branch Steps
//
// For every agent whose React accepts an event:
//
//  1. Announce the agent and execute it against the snapshot
//  2. On error or panic: audit, broadcast agent_update{error}, stop
//  3. Merge the output under the agent id and broadcast its summary
//  4. On a clarification request: record the question, pause, stop
//  5. Map the agent to its topic and apply the safety override
//  6. Ask the Administrator: STOP completes the session, PAUSE stops the
//     branch, RESOLVED lets only the winner publish, CONTINUE publishes
//
// # Usage
//
//	team, err := clinical.Team(llm)
//	if err != nil {
//	    return err
//	}
//
//	hub := broadcast.NewHub()
//	eng := engine.New(team, func(o *engine.Options) {
//	    o.Topics = clinical.Topics()
//	    o.Broadcaster = hub
//	    o.Logger = logger
//	})
//	defer eng.Close()
//
//	rec, err := eng.Run(ctx, map[string]any{"transcript": transcript})
//	if err != nil {
//	    return err
//	}
//
//	if rec.Status == session.StatusPaused {
//	    q := rec.Clarifications[len(rec.Clarifications)-1]
//	    _ = eng.SubmitClarification(ctx, rec.ID, q.AgentID, "yes")
//	    _ = eng.Wait(rec.ID)
//	}
//
// # Thread Safety
//
// All Engine methods are safe for concurrent use. Runs of the same session
// never overlap: a resumed run waits for the previous one to drain.
package engine
