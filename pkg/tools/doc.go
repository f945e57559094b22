// Package tools defines the contract between the agent and the tools it
// can call, and a thread-safe registry of tool implementations.
//
// Concrete tools (file I/O, shell, git) live outside this module. A tool
// that touches files implements TargetDeclarer so the policy gate knows
// which argument keys hold paths:
//
//	type writeFile struct{}
//
//	func (writeFile) TargetKeys() []string { return []string{"path"} }
//
// The Registry satisfies gate.TargetResolver and can be passed straight
// to gate.WithTargetResolver.
package tools
