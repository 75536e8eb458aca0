// Package validation scores agent-proposed breakdowns against the strategic
// context they were requested with, and parses agent replies.
//
// # Checks
//
// Validate runs five independent checks:
//
//  1. Strategic alignment: every child shares a significant word with the goal
//     of the node being broken down.
//  2. Boundary compliance: no child mentions a must-not-include constraint.
//  3. Coordination coverage: when siblings exist, some child covers integration.
//  4. Architectural consistency: at least half of the project's principles
//     appear in the combined text.
//  5. Expert perspectives: performance, security and architecture are each
//     addressed. Domain, conflict and risk gaps are advisory only.
//
// # Scoring
//
// The score is 80*passed/5 minus 5 per issue (at most 20), floored at 0. A
// result is Valid only when all five checks pass. The checks are keyword
// heuristics; their output is reproducible for fixed keyword lists but is not
// a semantic judgement.
//
// # Parsing
//
// ParseBreakdown accepts {"phases": [...]} or a bare array and tolerates
// surrounding prose. ParseFailure builds the zero-score result used when a
// reply cannot be parsed. ParseVerdict maps a task validator reply to PASS,
// PARTIAL or FAIL.
package validation
