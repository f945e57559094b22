// Keel is the operator command line for the keel decision-governance core.
//
// It inspects and edits the project memory of the repository it runs in:
//   - the RAO ledger of runs, audits and overrides
//   - the project-memory event log, with exact undo
//   - the policy gate, evaluated against ad-hoc tool calls
//   - YAML policy seed files, imported once or watched
//   - the decision log of successful tool executions
//
// Usage:
//
//	# Show the latest run, audit and override
//	keel rao status
//
//	# Evaluate a proposed call against the current constraints
//	keel gate check --tool write_file --args '{"path":"secrets/key.txt"}'
//
//	# Import a policy file and keep it in sync
//	keel policy import keel-policy.yaml
//	keel policy watch keel-policy.yaml
//
//	# Undo the last policy change
//	keel pm undo
package main

func main() {
	Execute()
}
