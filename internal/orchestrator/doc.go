// Package orchestrator drives batches of plan nodes through agents.
//
// Both the breakdown and the execution systems share one control loop:
// ask the plan for work, take at most N items, run them on a bounded
// worker pool, wait for every worker, then ask again. The loop ends when
// no work remains, when the iteration limit is reached, or when the user
// interrupts. Interrupts are only honoured between batches.
//
// Example usage:
//
//	sys := orchestrator.NewBreakdownSystem(deps)
//	loop := orchestrator.NewLoop(sys, orchestrator.LoopConfig{Workers: 2})
//	outcome, err := loop.Run(ctx)
package orchestrator
