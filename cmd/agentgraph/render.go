package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hupe1980/agentgraph/core"
)

type styles struct {
	step    lipgloss.Style
	node    lipgloss.Style
	muted   lipgloss.Style
	tool    lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	answer  lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		step:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		node:    lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
		tool:    lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
		answer: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#10B981")).
			Padding(0, 1),
	}
}

// renderEvent formats one engine event as a single styled line. Terminal
// events are rendered by renderResult instead.
func (s styles) renderEvent(ev core.Event) string {
	prefix := s.step.Render(fmt.Sprintf("[%02d]", ev.Step))

	switch p := ev.Payload.(type) {
	case core.NodeEnteredPayload:
		line := fmt.Sprintf("%s %s %s", prefix, s.node.Render(ev.Node), s.muted.Render(strings.ToLower(p.State)))
		if p.Instructions != "" {
			line += s.muted.Render(": " + truncate(p.Instructions, 80))
		}
		return line
	case core.DecisionPayload:
		line := fmt.Sprintf("%s %s decided %s", prefix, s.node.Render(ev.Node), describeDecision(p.Decision))
		if p.Next != "" {
			line += " " + s.muted.Render("("+strings.ToLower(p.Next)+")")
		}
		return line
	case core.ToolStartedPayload:
		return fmt.Sprintf("%s %s %s", prefix, s.tool.Render("→ "+p.Call.Name), s.muted.Render(truncate(fmt.Sprint(p.Call.Arguments), 60)))
	case core.ToolFinishedPayload:
		mark := s.success.Render("✓")
		detail := truncate(p.Result.Text(), 60)
		if !p.Result.OK {
			mark = s.failure.Render("✗")
			detail = string(p.Result.ErrorKind) + ": " + truncate(p.Result.Error, 60)
		}
		return fmt.Sprintf("%s %s %s %s %s", prefix, mark, s.tool.Render(p.Result.Name), s.step.Render(fmt.Sprintf("(%dms)", p.DurationMS)), s.muted.Render(detail))
	default:
		return fmt.Sprintf("%s %s %s", prefix, s.node.Render(ev.Node), ev.Kind)
	}
}

// renderResult formats the outcome of a finished run.
func (s styles) renderResult(res core.RunResult, err error) string {
	if err != nil {
		var b strings.Builder
		b.WriteString(s.failure.Render(fmt.Sprintf("Run failed (%s): %v", core.KindOf(err), err)))
		if partial := partialAnswer(err); partial != "" {
			b.WriteString("\n")
			b.WriteString(s.muted.Render("Partial answer:"))
			b.WriteString("\n")
			b.WriteString(s.answer.BorderForeground(lipgloss.Color("#F59E0B")).Render(partial))
		}
		return b.String()
	}

	footer := fmt.Sprintf("steps: %d", res.Steps)
	if len(res.ToolsUsed) > 0 {
		footer += "  tools: " + strings.Join(res.ToolsUsed, ", ")
	}
	return s.answer.Render(res.FinalAnswer) + "\n" + s.muted.Render(footer)
}

func describeDecision(w core.DecisionWire) string {
	switch {
	case w.FinalAnswer != nil:
		return "final answer"
	case w.Delegate != nil:
		return "delegate → " + w.Delegate.Target
	case w.ToolCalls != nil:
		names := make([]string, len(w.ToolCalls))
		for i, c := range w.ToolCalls {
			names[i] = c.Name
		}
		return "tool calls " + strings.Join(names, ", ")
	default:
		return "nothing"
	}
}

func partialAnswer(err error) string {
	var runErr *core.RunError
	if errors.As(err, &runErr) {
		return runErr.PartialAnswer
	}
	return ""
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}
