package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

type specialist struct {
	id         domain.AgentID
	system     string
	confidence float64
	prepare    prepareFunc
}

// specialists lists the agents that only differ by prompt. FAQ and
// ticketing have their own files.
var specialists = []specialist{
	{
		id: domain.AgentErrorAnalysis,
		system: `You are the error-analysis specialist of a customer support team.
Diagnose software errors, error codes and failed operations the customer reports, and give concrete next steps.` + specialistFormat,
		confidence: 0.6,
		prepare:    plainPrompt,
	},
	{
		id: domain.AgentHardwareDiagnosis,
		system: `You are the hardware-diagnosis specialist of a customer support team.
Work out likely device faults from the symptoms and guide the customer through safe checks before suggesting repair.` + specialistFormat,
		confidence: 0.6,
		prepare:    plainPrompt,
	},
	{
		id: domain.AgentPolicyCompliance,
		system: `You are the policy-compliance specialist of a customer support team.
Answer questions about refunds, warranties, contracts and privacy strictly within company policy. Never promise exceptions.` + specialistFormat,
		confidence: 0.55,
		prepare:    plainPrompt,
	},
	{
		id: domain.AgentReporting,
		system: `You are the reporting specialist of a customer support team.
Summarise support activity and usage figures for staff in a short, factual report.` + specialistFormat,
		confidence: 0.5,
		prepare:    reportingPrompt,
	},
	{
		id: domain.AgentUXFeedback,
		system: `You are the UX-feedback specialist of a customer support team.
Acknowledge product and usability feedback, restate it precisely, and tell the customer how it will be passed on.` + specialistFormat,
		confidence: 0.5,
		prepare:    plainPrompt,
	},
}

func reportingPrompt(ctx context.Context, in *domain.AgentInput) (string, map[string]any, error) {
	var b strings.Builder
	b.WriteString(messageContext(in))

	rc := in.Context.Report
	if rc == nil || len(rc.Usage) == 0 {
		b.WriteString("\nNo usage figures are available for this report.\n")
		return b.String(), nil, nil
	}

	fmt.Fprintf(&b, "\nUsage for %s:\n", rc.Date)
	for _, u := range rc.Usage {
		fmt.Fprintf(&b, "- %s: %d calls, %d input tokens, %d output tokens, %d messages, $%.4f\n",
			u.AgentID, u.Calls, u.TokenInput, u.TokenOutput, u.Messages, u.EstimatedCostUSD)
	}
	return b.String(), map[string]any{"report_date": rc.Date}, nil
}
