package agent

const systemPreamble = `You are keel, a coding agent working inside the user's repository.
Propose tool calls to make progress. Every call is checked against the project's constraints before it runs.`

// workNotesPrompt asks for the task's work notes. The reply must match
// worknotes.Notes exactly; unknown fields are rejected.
const workNotesPrompt = `Before doing anything, reply with work notes for this task as a single JSON object and nothing else:
{
  "intent": {"what": "", "why": ""},
  "hypothesis": {"expected": "", "metrics": []},
  "plan": {"steps": [], "alternatives": [], "rationale": ""},
  "scope": {"files": [], "max_files": 0, "max_loc": 0},
  "assumptions": [],
  "risks": {"technical": [], "behavioral": []},
  "status": "planned"
}`
