// Package gate classifies proposed tool calls against a project's policy
// constraints.
//
// The gate is a pure evaluator: it holds no state, performs no I/O and never
// returns an error. Each call is checked in strict order:
//
//  1. Arguments are parsed as JSON (malformed arguments are treated as {}).
//  2. File targets are read from the argument keys the tool declares
//     (DefaultTargetKeys when it declares none).
//  3. A target matching a never_touch pattern blocks the evaluation and
//     skips every remaining check for that call.
//  4. A call is exempt when its tool has an always_allow tool rule, or when
//     it has targets and every one of them matches an always_allow path rule.
//  5. Each require_approval_for pattern may emit a path warning per matching
//     target and, separately, a tool warning when the tool name contains it.
//
// # Pattern Semantics
//
//	secrets/**     "**" spans any number of path segments
//	src/*.go       "*" spans exactly one segment
//	.env           no wildcard: matches any target containing ".env"
//
// # Basic Usage
//
//	verdict := gate.New(gate.WithTargetResolver(registry)).Evaluate(calls, constraints)
//	if verdict.Blocked {
//	    // never executes, whatever the operator says
//	}
package gate
