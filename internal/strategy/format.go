package strategy

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/phaser/internal/plan"
	"github.com/ShayCichocki/phaser/pkg/models"
)

var coreExperts = []string{
	"Performance Expert: computational efficiency, scalability, resource use",
	"Security Expert: attack surface, vulnerability assessment, data protection",
	"Architecture Expert: structural consistency, maintainability, design patterns",
}

// Format renders the context as the markdown block embedded in agent prompts.
func Format(ctx *Context) string {
	if ctx == nil {
		return ""
	}
	var sb strings.Builder
	dna := ctx.ProjectDNA

	sb.WriteString("### PROJECT STRATEGIC DNA\n")
	fmt.Fprintf(&sb, "**Vision**: %s\n", dna.Vision)
	fmt.Fprintf(&sb, "**Goal**: %s\n", dna.Goal)
	fmt.Fprintf(&sb, "**Type**: %s\n", dna.Type)
	fmt.Fprintf(&sb, "**Complexity**: %s\n", dna.Complexity)
	if len(dna.ArchitecturalPrinciples) > 0 {
		fmt.Fprintf(&sb, "**Architectural Principles**: %s\n", strings.Join(dna.ArchitecturalPrinciples, ", "))
	}
	if len(dna.CriticalSuccessFactors) > 0 {
		fmt.Fprintf(&sb, "**Critical Success Factors**: %s\n", strings.Join(dna.CriticalSuccessFactors, ", "))
	}

	sb.WriteString("\n### EXPERT ANALYSIS CONTEXT\n")
	sb.WriteString("**Core Experts (Always Active)**:\n")
	for _, e := range coreExperts {
		fmt.Fprintf(&sb, "  - %s\n", e)
	}
	if len(dna.DomainExperts) > 0 {
		sb.WriteString("**Domain Experts (Based on Project Type)**:\n")
		for _, e := range dna.DomainExperts {
			fmt.Fprintf(&sb, "  - %s\n", e)
		}
	}
	if concerns := priorityConcerns(dna); len(concerns) > 0 {
		sb.WriteString("\n**Expert Priority Concerns**:\n")
		for _, c := range concerns {
			fmt.Fprintf(&sb, "  - %s\n", c)
		}
	}

	if len(ctx.ParentChain) > 0 {
		sb.WriteString("\n### PARENT CHAIN (Hierarchy of Goals)\n")
		for _, a := range ctx.ParentChain {
			indent := strings.Repeat("  ", a.Level)
			fmt.Fprintf(&sb, "%s**Level %d**: @%s - %s\n", indent, a.Level, ctx.docRef(a.ID), a.Title)
			fmt.Fprintf(&sb, "%s  Goal: %s\n", indent, orDefault(a.Goal, "No goal specified"))
			if len(a.Deliverables) > 0 {
				fmt.Fprintf(&sb, "%s  Key Deliverables: %s\n", indent, strings.Join(firstN(a.Deliverables, 3), ", "))
			}
		}
	}

	if ctx.Siblings.HasSiblings {
		sb.WriteString("\n### SIBLING COORDINATION REQUIREMENTS\n")
		for _, p := range ctx.Siblings.Points {
			fmt.Fprintf(&sb, "**Sibling @%s**: %s\n", ctx.docRef(p.SiblingID), p.SiblingTitle)
			fmt.Fprintf(&sb, "  - Coordination Type: %s\n", p.Kind)
			fmt.Fprintf(&sb, "  - Notes: %s\n", p.Note)
		}
		sb.WriteString("\n**Expert Coordination Guidance**:\n")
		sb.WriteString("  - INTEGRATION Expert: keep API contracts and data flow compatible across siblings\n")
		sb.WriteString("  - ARCHITECTURE Expert: use the same patterns as sibling implementations\n")
	}

	b := ctx.Boundary
	sb.WriteString("\n### BOUNDARY CONSTRAINTS\n")
	if len(b.MustInclude) > 0 {
		fmt.Fprintf(&sb, "**MUST INCLUDE**: %s\n", strings.Join(b.MustInclude, ", "))
	}
	if len(b.MustNotInclude) > 0 {
		fmt.Fprintf(&sb, "**MUST NOT INCLUDE**: %s\n", strings.Join(b.MustNotInclude, ", "))
	}
	if len(b.ScopeLimits) > 0 {
		fmt.Fprintf(&sb, "**SCOPE LIMITS**: %s\n", strings.Join(b.ScopeLimits, ", "))
	}
	if len(b.MustInclude)+len(b.MustNotInclude)+len(b.ScopeLimits) == 0 {
		sb.WriteString("No explicit constraints inherited from the parent.\n")
	}

	cur := ctx.Current
	sb.WriteString("\n### CURRENT PHASE CONTEXT\n")
	fmt.Fprintf(&sb, "**Phase**: @%s - %s\n", ctx.docRef(cur.ID), orDefault(cur.Title, "Unknown"))
	fmt.Fprintf(&sb, "**Description**: %s\n", orDefault(cur.Description, "No description available"))
	if len(cur.Deliverables) > 0 {
		fmt.Fprintf(&sb, "**Expected Deliverables**: %s\n", strings.Join(cur.Deliverables, ", "))
	}
	sb.WriteString("\n**Expert Analysis Focus for This Phase**:\n")
	for _, f := range phaseFocus(cur.Description) {
		fmt.Fprintf(&sb, "  - %s\n", f)
	}

	return sb.String()
}

func (c *Context) docRef(id string) string {
	dir := c.PlanDir
	if dir == "" {
		dir = plan.DefaultDir
	}
	if id == models.ProjectRootID {
		return filepath.ToSlash(filepath.Join(dir, plan.AggregateFile))
	}
	return filepath.ToSlash(filepath.Join(dir, id+".json"))
}

func priorityConcerns(dna ProjectDNA) []string {
	principles := strings.ToLower(strings.Join(dna.ArchitecturalPrinciples, " "))
	factors := strings.ToLower(strings.Join(dna.CriticalSuccessFactors, " "))
	enterprise := strings.Contains(strings.ToLower(dna.Complexity), "enterprise")

	var out []string
	if strings.Contains(principles, "performance") || strings.Contains(factors, "scalability") {
		out = append(out, "PERFORMANCE Expert has HIGH priority")
	}
	if strings.Contains(principles, "security") || strings.Contains(factors, "security") {
		out = append(out, "SECURITY Expert has HIGH priority")
	}
	if enterprise {
		out = append(out, "ARCHITECTURE Expert has HIGH priority (enterprise complexity)")
		out = append(out, "TESTING Expert has elevated priority (enterprise complexity)")
	}
	return out
}

func phaseFocus(description string) []string {
	out := []string{
		"PERFORMANCE Expert: scalability and efficiency implications",
		"SECURITY Expert: security risks and required mitigations",
		"ARCHITECTURE Expert: structural consistency and integration points",
	}
	d := strings.ToLower(description)
	if strings.Contains(d, "database") {
		out = append(out, "DATABASE Expert: schema design and query optimization")
	}
	if strings.Contains(d, "api") {
		out = append(out, "API Expert: contract design and versioning")
	}
	if strings.Contains(d, "test") {
		out = append(out, "TESTING Expert: test strategy and coverage")
	}
	return out
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
