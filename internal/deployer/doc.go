// Package deployer schedules the futures of a validated module against a
// ledger and records every transition in the deployment journal.
//
// ARCHITECTURE:
//
// Single-Writer Scheduler:
// One goroutine owns dispatch. It decides which futures start, and it
// records their completion or failure. Each started future runs in its own
// worker goroutine, which builds the future's requests and hands them to
// the transaction manager. Workers report back through an outcome queue.
//
// Run Flow:
//  1. Replay the journal into a DeploymentState
//  2. Reconcile the state against the module
//  3. Seed sender nonce floors from the journal
//  4. Loop: fail futures whose dependencies failed, dispatch in-progress
//     futures, then ready futures in topological order, settle outcomes
//  5. Stop when nothing is ready and nothing is in flight
//
// Every message is appended to the journal first and then applied to the
// in-memory state with the same DeploymentState.Apply used by replay, so
// the projection a run builds equals what a later run will fold.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Journal messages are stamped with a strictly increasing seq from Clock.
// Appends are serialized by the recorder lock, so seq order and journal
// order agree.
//
// Write-Ahead:
// execution-started is durable before a worker begins, and the transaction
// manager records each request before it is sent. A killed run resumes
// from the journal without resubmitting confirmed work.
package deployer
