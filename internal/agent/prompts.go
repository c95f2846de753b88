package agent

import (
	"fmt"
	"strings"
)

const workflowPrompt = "You are a software Engineer. Your task is to get a task from the following list. " +
	"Complete it. Cover with test. Run test. Fix any related issues if any. Re-run test. " +
	"Reflect. Review git diff. Reflect. Fix if any issues."

// ReviewPrompt builds the prompt for a code review.
func ReviewPrompt(code, language, context string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please review this %s code:\n\n```%s\n%s\n```\n\n", language, language, code)
	if context != "" {
		fmt.Fprintf(&b, "Context: %s\n\n", context)
	}
	b.WriteString("Provide a detailed code review including:\n" +
		"1. Code quality assessment\n" +
		"2. Potential bugs or issues\n" +
		"3. Suggestions for improvement\n" +
		"4. Security considerations")
	return b.String()
}

// GeneratePrompt builds the prompt for code generation.
func GeneratePrompt(specification, language, styleGuide string) string {
	p := fmt.Sprintf("Generate %s code for: %s", language, specification)
	if styleGuide != "" {
		p += "\n\nFollow this style guide: " + styleGuide
	}
	return p
}

// FixPrompt builds the prompt for fixing broken code.
func FixPrompt(code, errorMessage, language string) string {
	return fmt.Sprintf("Fix the following %s code.\n\nError:\n%s\n\nCode:\n```%s\n%s\n```",
		language, errorMessage, language, code)
}

// TestsPrompt builds the prompt for writing tests.
func TestsPrompt(code, language, framework string) string {
	return fmt.Sprintf("Write unit tests using %s for the following %s code:\n\n```%s\n%s\n```",
		framework, language, language, code)
}

// ManagePrompt builds the prompt for coordinating a project.
func ManagePrompt(description string, teamSize int) string {
	return fmt.Sprintf("You are an engineering manager coordinating %d engineers. "+
		"Break the following project into tasks, assign them, and drive them to completion:\n\n%s",
		teamSize, description)
}

// WorkflowPrompt builds the full task workflow prompt for one task.
func WorkflowPrompt(task string, autoCommit bool) string {
	p := workflowPrompt
	if autoCommit {
		p += " Commit"
	}
	return p + "\n\nTask to complete: " + task
}

// ParseCheckbox reports whether line is an open checkbox task ("[ ] ...")
// and returns its description.
func ParseCheckbox(line string) (string, bool) {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, "- ")
	if !strings.HasPrefix(s, "[ ]") {
		return "", false
	}
	return strings.TrimSpace(s[3:]), true
}
