// Package policyfile seeds project memory from a YAML policy file.
//
// A policy file sets any of charter, constraints and preferences:
//
//	charter: Internal billing service. Never touch production configs.
//	constraints:
//	  never_touch: ["secrets/**", ".env"]
//	  require_approval_for: ["shell", "deploy/**"]
//	  always_allow:
//	    - {kind: tool, pattern: read_file}
//	preferences:
//	  risk: low
//	  verbosity: terse
//
// Sections left out of the file are not touched. Import writes one
// "import" event through pm.Store.Save, and only when the file actually
// changes something, so re-importing an unchanged file is a no-op. The
// import is undoable like any operator update.
//
// Watcher re-imports the file whenever it changes on disk, debouncing
// editor write bursts.
package policyfile
