package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/phaser/internal/strategy"
	"github.com/ShayCichocki/phaser/pkg/models"
)

// Project context and agent working files, relative to the project root.
const (
	StructureFile      = ".ai/structure/structure.md"
	SchemaFile         = ".ai/schema/index.json"
	BrainTasksDir      = ".ai/brain/tasks"
	BrainValidationDir = ".ai/brain/validation"
	BrainStatusDir     = ".ai/brain/status"
)

// maxRepairContent caps how much of a broken document is quoted back to the
// repair agent.
const maxRepairContent = 64 * 1024

// Prompts builds the prompt for each agent. Project context files are read
// fresh on every call so agents see what earlier batches produced.
type Prompts struct {
	root    string
	planDir string
}

// NewPrompts creates a prompt builder. root is the project root used to find
// the context files, planDir is the plan directory as agents should see it.
func NewPrompts(root, planDir string) *Prompts {
	if planDir == "" {
		planDir = ".ai/plan"
	}
	return &Prompts{root: root, planDir: filepath.ToSlash(planDir)}
}

func (p *Prompts) readContextFile(rel string) ([]byte, bool) {
	data, err := os.ReadFile(filepath.Join(p.root, rel))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return nil, false
	}
	return data, true
}

// ProjectContext renders the structure and schema files. When reportMissing
// is set, absent files are named so the agent knows not to look for them.
func (p *Prompts) ProjectContext(reportMissing bool) string {
	var b strings.Builder

	if data, ok := p.readContextFile(StructureFile); ok {
		fmt.Fprintf(&b, "\n## PROJECT STRUCTURE CONTEXT\nCurrent implementation patterns and architecture organization:\n\n%s\n", strings.TrimSpace(string(data)))
	} else if reportMissing {
		fmt.Fprintf(&b, "\n## PROJECT STRUCTURE CONTEXT\nNo project structure file found at %s\n", StructureFile)
	}

	if data, ok := p.readContextFile(SchemaFile); ok {
		schema := string(data)
		var out bytes.Buffer
		if json.Indent(&out, data, "", "  ") == nil {
			schema = out.String()
		}
		fmt.Fprintf(&b, "\n## DATABASE SCHEMA CONTEXT\nCurrent database schema and data models:\n\n```json\n%s\n```\n", strings.TrimSpace(schema))
	} else if reportMissing {
		fmt.Fprintf(&b, "\n## DATABASE SCHEMA CONTEXT\nNo database schema file found at %s\n", SchemaFile)
	}

	return b.String()
}

func body(tmpl *Template) string {
	if tmpl == nil {
		return ""
	}
	return strings.TrimSpace(tmpl.Body)
}

// BreakdownPrompt asks the breakdown agent to split node into sub-phases of
// under an hour each. source is the plan file the node was found in.
func (p *Prompts) BreakdownPrompt(tmpl *Template, sc *strategy.Context, node models.Node, source string) string {
	var b strings.Builder
	b.WriteString("You are plan-breakdown-analyzer agent with strategic context awareness.\n\n")
	b.WriteString(body(tmpl))
	b.WriteString("\n\n## STRATEGIC CONTEXT (MANDATORY ANALYSIS REQUIRED)\n\n")
	b.WriteString(strategy.Format(sc))
	b.WriteString("\n")
	b.WriteString(p.ProjectContext(false))

	fmt.Fprintf(&b, `
## TASK: Strategic-Guided Breakdown

**Target Phase Information:**
- Phase ID: %s
- Title: %s
- Duration: %s minutes
- Status: %s
- Source File: @%s/%s

**BREAKDOWN RULES:**
1. Read the strategic context above before splitting the phase.
2. Every sub-phase must serve the project vision and the parent goals.
3. Respect every MUST INCLUDE and MUST NOT INCLUDE constraint and the scope limits.
4. Add coordination work for sibling phases where their outputs meet.
5. Keep the architectural principles visible in sub-phase descriptions.
6. Each sub-phase must take less than %d minutes.
7. Number sub-phases %s.1, %s.2, ... and express dependencies with those ids.

**OUTPUT:**
Reply with a single JSON object and nothing else:
{"id": "%s", "title": "...", "phases": [{"id": "%s.1", "title": "...", "description": "...", "duration": 45, "status": "pending", "priority": "high", "dependencies": [], "deliverables": ["..."]}], "breakdown_complete": true}

Do not write any files; phaser validates the reply and saves %s/%s.json itself.
`,
		node.ID, node.Title, node.Duration, node.Status.OrPending(), p.planDir, source,
		60, node.ID, node.ID,
		node.ID, node.ID,
		p.planDir, node.ID)

	return b.String()
}

// TaskAnalyzerPrompt asks the analyzer to write a context file for each task.
// contexts is keyed by task id; tasks without a context are still listed.
func (p *Prompts) TaskAnalyzerPrompt(tmpl *Template, tasks []models.Node, contexts map[string]*strategy.Context) string {
	type taskEntry struct {
		ID           string   `json:"id"`
		Title        string   `json:"title"`
		Description  string   `json:"description,omitempty"`
		Duration     string   `json:"duration,omitempty"`
		Priority     string   `json:"priority,omitempty"`
		Dependencies []string `json:"dependencies,omitempty"`
		Deliverables []string `json:"deliverables,omitempty"`
	}
	entries := make([]taskEntry, 0, len(tasks))
	for _, t := range tasks {
		e := taskEntry{
			ID:           t.ID,
			Title:        t.Title,
			Description:  t.Description,
			Priority:     string(t.Priority),
			Dependencies: t.Dependencies,
			Deliverables: t.Deliverables,
		}
		if !t.Duration.IsZero() {
			e.Duration = t.Duration.String()
		}
		entries = append(entries, e)
	}
	tasksJSON, _ := json.MarshalIndent(entries, "", "  ")

	var b strings.Builder
	b.WriteString("You are task-analyzer-executor agent with enhanced strategic context capabilities.\n\n")
	b.WriteString(body(tmpl))
	b.WriteString("\n")
	for _, t := range tasks {
		if sc := contexts[t.ID]; sc != nil {
			fmt.Fprintf(&b, "\n## STRATEGIC CONTEXT FOR TASK %s\n\n%s\n", t.ID, strategy.Format(sc))
		}
	}
	b.WriteString(p.ProjectContext(true))

	fmt.Fprintf(&b, `
## TASK: Analyze available tasks and create context files

**Available Tasks:**
`+"```json\n%s\n```"+`

**INSTRUCTIONS:**
1. All context is provided above; do not go looking for plan files.
2. For each task, place it in its parent hierarchy, respect the boundary constraints, align it with the project vision and architectural principles, and note sibling coordination.
3. Write one context file per task to %s/<TASK_ID>.md containing the analysis, the relevant strategic context and an implementation plan.
4. Do not change task statuses; phaser tracks them.
5. Finish with a JSON list of the context file paths you created.
`, tasksJSON, BrainTasksDir)

	return b.String()
}

// TaskExecutionPrompt asks an agent to implement one analyzed task.
func (p *Prompts) TaskExecutionPrompt(task models.Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Using the full context in %s/%s.md, implement task %s: %s.\n\n", BrainTasksDir, task.ID, task.ID, task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "Task description: %s\n\n", task.Description)
	}
	if len(task.Deliverables) > 0 {
		fmt.Fprintf(&b, "Deliverables: %s\n\n", strings.Join(task.Deliverables, ", "))
	}
	fmt.Fprintf(&b, "Project structure: %s\nDatabase schema: %s\n", StructureFile, SchemaFile)
	b.WriteString(p.ProjectContext(false))
	b.WriteString(`
Follow the recommendations and existing patterns from the analysis.
Keep files under 300 lines with AI-friendly names; split larger modules into submodules.

Execute the task now.
`)
	return b.String()
}

// ValidatorPrompt asks the validator to check one executed task and end with
// a PASS, PARTIAL or FAIL verdict.
func (p *Prompts) ValidatorPrompt(tmpl *Template, taskID string) string {
	var b strings.Builder
	b.WriteString("You are task-validator agent.\n\n")
	b.WriteString(body(tmpl))
	fmt.Fprintf(&b, `

## TASK: Validate task implementation quality

**Task Context:**
- Task ID: %[1]s
- Task context file: %[2]s/%[1]s.md

**INSTRUCTIONS:**
1. Read the task context from %[2]s/%[1]s.md.
2. Check the implementation against its requirements and scope.
3. Run the project's linters and fix what they report until they pass cleanly.
4. Check file size limits (max 300 lines) and naming.
5. Write a validation report to %[3]s/%[1]s_report.md.
6. End your reply with exactly one line: VERDICT: PASS, VERDICT: PARTIAL or VERDICT: FAIL.
`, taskID, BrainTasksDir, BrainValidationDir)
	b.WriteString(p.ProjectContext(false))
	return b.String()
}

// StatusUpdaterPrompt asks the status agent to log the outcome of a task.
// The status itself has already been written by phaser.
func (p *Prompts) StatusUpdaterPrompt(tmpl *Template, taskID string, verdict string, status models.Status) string {
	var b strings.Builder
	b.WriteString("You are task-status-updater agent.\n\n")
	b.WriteString(body(tmpl))
	fmt.Fprintf(&b, `

## TASK: Record task status

**Task Context:**
- Task ID: %[1]s
- Validation Result: %[2]s
- Recorded Status: %[3]s
- Validation Report: %[4]s/%[1]s_report.md

**INSTRUCTIONS:**
1. Read the validation report.
2. The plan status is already %[3]s (PASS means completed, anything else stays in-progress). Do not edit plan files.
3. Write a status log to %[5]s/%[1]s_log.md explaining the outcome and any follow-up work.
`, taskID, verdict, status, BrainValidationDir, BrainStatusDir)
	return b.String()
}

// PlanAnalyzerPrompt asks the plan analyzer to turn a requirements document
// into the aggregate plan. target is an existing project folder, or empty
// for a new project.
func (p *Prompts) PlanAnalyzerPrompt(tmpl *Template, planFile, target string) string {
	existing := "Treat this as a new project."
	if target != "" {
		existing = "Analyze the existing project in: " + target
	}
	var b strings.Builder
	b.WriteString("You are plan-analyzer agent.\n\n")
	b.WriteString(body(tmpl))
	fmt.Fprintf(&b, `

## TASK: Analyze the requirements and generate development phases

**Input Information:**
- Plan File: %s
- Target Folder: %s

**INSTRUCTIONS:**
1. Read and analyze the plan file: %s
2. %s
3. Generate development phases with ids "1", "2", ..., durations in minutes, priorities and dependencies.
4. Write index.json and phases.json to %s/. phases.json must hold {"project": {...}, "phases": [...]}.
5. Follow the output format in the agent instructions above.
`, planFile, orNotSpecified(target), planFile, existing, p.planDir)
	return b.String()
}

// SchemaDesignerPrompt asks for a phase-aware database schema.
func (p *Prompts) SchemaDesignerPrompt(tmpl *Template, target string) string {
	var b strings.Builder
	b.WriteString("You are database-schema-designer agent.\n\n")
	b.WriteString(body(tmpl))
	fmt.Fprintf(&b, `

## TASK: Generate phase-aware database schema

**Input Context:**
- Plan analysis available in: %[1]s/
- Target Folder: %[2]s

**INSTRUCTIONS:**
1. Read the plan analysis from %[1]s/index.json and %[1]s/phases.json.
2. Derive data requirements phase by phase.
3. Write the schema to %[3]s and any supporting files next to it.
`, p.planDir, orNotSpecified(target), SchemaFile)
	return b.String()
}

// StructureGeneratorPrompt asks for a phase-aware project layout.
func (p *Prompts) StructureGeneratorPrompt(tmpl *Template, target string) string {
	root := target
	if root == "" {
		root = "project"
	}
	scan := "Design a new project structure."
	if target != "" {
		scan = "Scan the existing project structure in: " + target
	}
	var b strings.Builder
	b.WriteString("You are project-structure-generator agent.\n\n")
	b.WriteString(body(tmpl))
	fmt.Fprintf(&b, `

## TASK: Generate phase-aware project structure

**Input Context:**
- Plan analysis available in: %[1]s/
- Target Folder: %[2]s

**INSTRUCTIONS:**
1. Read the plan analysis from %[1]s/index.json and %[1]s/phases.json.
2. %[3]s
3. Use "%[2]s" as the root directory name.
4. Write the structure to %[4]s.
`, p.planDir, root, scan, StructureFile)
	return b.String()
}

// RepairPrompt asks an agent to fix a malformed plan document.
func RepairPrompt(path string, content []byte, parseErr error) string {
	quoted := string(content)
	if len(quoted) > maxRepairContent {
		quoted = quoted[:maxRepairContent]
	}
	return fmt.Sprintf(`The plan file %s is not valid JSON.

Parse error: %v

Return the corrected document as a single JSON object and nothing else.
Keep every id, title, status, duration, dependency and deliverable that can be recovered.
Do not invent new phases.

Current content:
`+"```\n%s\n```\n", path, parseErr, quoted)
}

func orNotSpecified(s string) string {
	if s == "" {
		return "Not specified"
	}
	return s
}
