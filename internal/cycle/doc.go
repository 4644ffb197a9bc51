// Package cycle implements the per-account daily task state machine.
//
// One cycle walks an account through FetchingStats, EvaluatingActions, an
// optional TransferLooping phase, Reporting and finally WaitingForReset. Every
// action is guarded so its failure is recorded as an ActionOutcome instead of
// aborting the cycle; errors escaping the cycle body restart it from the
// first state after a backoff. At the UTC day boundary the orchestrator mints
// a fresh account and continues with it in the same execution unit.
package cycle
