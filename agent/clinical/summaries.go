package clinical

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/crucible/agent"
	"github.com/hupe1980/crucible/core"
	"github.com/hupe1980/crucible/model"
)

func summarizeSafety(data map[string]any) string {
	if core.Truthy(data[core.KeyRiskDetected]) {
		summary := core.StringValue(data, core.KeySummary)
		if summary == "" {
			summary = "Safety concerns detected."
		}
		return fmt.Sprintf("**SAFETY RISK DETECTED**: %s\n\n*Action required immediately.*", summary)
	}

	return "**SAFE**: No immediate safety risks identified in the *transcript*."
}

func summarizeOrientation(data map[string]any) string {
	summary := core.StringValue(data, core.KeySummary)
	if summary == "" {
		summary = "Clinical orientation complete."
	}

	return fmt.Sprintf("**ORIENTATION COMPLETE**: %s\n\n*Reasoning*: %s", summary, core.StringValue(data, core.KeyReasoning))
}

func summarizeClinical(data map[string]any) string {
	var parts []string

	if symptoms := core.ListValue(data, "presenting_symptoms"); len(symptoms) > 0 {
		parts = append(parts, fmt.Sprintf("Extracted %d symptoms, including %s.", len(symptoms), highlight(symptoms, "symptom", 3)))
	}

	if meds := core.ListValue(data, "current_medications"); len(meds) > 0 {
		parts = append(parts, fmt.Sprintf("Identified %d medications, including %s.", len(meds), highlight(meds, "name", 3)))
	}

	if len(parts) == 0 {
		return "Clinical entities extracted."
	}

	return strings.Join(parts, " ")
}

func summarizeDiagnosis(data map[string]any) string {
	primary := core.MapValue(data, "primary_diagnosis")
	code := core.StringValue(primary, "code")
	desc := core.StringValue(primary, "description")

	switch {
	case code != "" && desc != "":
		return fmt.Sprintf("**DIAGNOSIS PROPOSED**: *%s* (*%s*)", code, desc)
	case core.Truthy(data[core.KeyClarificationNeeded]):
		return "**PAUSED**: Insufficient data for definitive diagnosis. Clarification requested."
	default:
		return "Diagnosis analysis complete."
	}
}

func summarizeRisk(data map[string]any) string {
	level := core.StringValue(data, "risk_level")
	if level == "" {
		level = "Unknown"
	}

	status := "**STABLE**"
	if level == "High" || level == "Imminent" {
		status = "**HIGH RISK**"
	}

	ideation := "NOT PRESENT"
	if core.Truthy(data["suicidal_ideation_present"]) {
		ideation = "PRESENT"
	}

	return fmt.Sprintf("%s: C-SSRS Level *%s*. Suicidal ideation is *%s*.", status, level, ideation)
}

func summarizeProcedure(data map[string]any) string {
	if primary := core.MapValue(data, "primary_code"); len(primary) > 0 {
		desc := core.StringValue(primary, "description")
		if desc == "" {
			desc = "Procedure"
		}
		return fmt.Sprintf("**CODE ASSIGNED**: *%s* (*%s*).", core.StringValue(primary, "code"), desc)
	}

	if core.Truthy(data[core.KeyClarificationNeeded]) {
		return "**PAUSED**: Time/Duration missing. *Manual verification* required for CPT mapping."
	}

	return "Procedure analysis complete."
}

func summarizeMedication(data map[string]any) string {
	var parts []string

	if meds := core.ListValue(data, "medications"); len(meds) > 0 {
		parts = append(parts, fmt.Sprintf("Monitoring %d active medications, including %s.", len(meds), highlight(meds, "name", 2)))
	}

	var changes []string
	for _, c := range core.ListValue(data, "changes_made") {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		kind := core.StringValue(m, "change_type")
		if kind == "No Change" {
			continue
		}
		if len(changes) < 2 {
			changes = append(changes, fmt.Sprintf("*%s* (%s)", agent.TitleCase(core.StringValue(m, "medication")), kind))
		}
	}

	if len(changes) > 0 {
		parts = append(parts, fmt.Sprintf("**ADJUSTMENTS**: %s.", strings.Join(changes, ", ")))
	}

	if len(parts) == 0 {
		return "Medication review complete."
	}

	return strings.Join(parts, " ")
}

func summarizeTreatment(data map[string]any) string {
	followUp := core.StringValue(data, "follow_up_plan")
	if followUp == "" {
		followUp = "TBD"
	}

	return fmt.Sprintf("**PLAN DEVELOPED**: %d *Clinical Goals* and %d *Interventions*. **FOLLOW-UP**: *%s*.",
		len(core.ListValue(data, "treatment_goals")), len(core.ListValue(data, "interventions")), followUp)
}

func summarizeOutput(data map[string]any) string {
	if _, failed := data[core.KeyError]; failed {
		return fmt.Sprintf("**FAILED**: Note synthesis incomplete. *%s*", core.StringValue(data, core.KeyError))
	}

	summary := core.StringValue(data, core.KeySummary)
	if summary == "" {
		summary = "Final SOAP note synthesized."
	}

	return fmt.Sprintf("**SYNTHESIS COMPLETE**: %s\n\n*Review the full SOAP report in the 'View Result' dialog.*", summary)
}

// highlight renders up to n entries of items as *Title Case* names read
// from field. Entries without the field are skipped.
func highlight(items []any, field string, n int) string {
	names := make([]string, 0, n)
	for _, it := range items {
		if len(names) == n {
			break
		}
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if name := core.StringValue(m, field); name != "" {
			names = append(names, "*"+agent.TitleCase(name)+"*")
		}
	}

	return strings.Join(names, ", ")
}

// parseOrientation is lenient: the orientation gates the safety override,
// so an unreadable response still yields an approved orientation.
func parseOrientation(raw string) (map[string]any, bool) {
	text := raw
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		text = raw[start : end+1]
	}

	var data map[string]any
	err := json.Unmarshal([]byte(text), &data)
	if err == nil && data != nil {
		return data, true
	}
	if err == nil {
		err = fmt.Errorf("orientation is not a JSON object")
	}

	return map[string]any{
		core.KeySummary:     "orientation complete",
		KeyValidationResult: "approved",
		core.KeyReasoning:   "Fallback due to parse error: " + err.Error(),
	}, true
}

func scoreDiagnosis(data map[string]any) float64 {
	primary := core.MapValue(data, "primary_diagnosis")
	if c, ok := primary["confidence"].(float64); ok && c > 0 {
		return c
	}

	return agent.DefaultConfidence
}

func scoreProcedure(data map[string]any) float64 {
	switch strings.ToLower(core.StringValue(data, "confidence")) {
	case "low":
		return 0.4
	case "medium":
		return 0.75
	default:
		return agent.DefaultConfidence
	}
}

// consultTranscript answers factual peer questions from the transcript.
func consultTranscript(ctx context.Context, llm model.Model, question string, input, _ map[string]any) (string, bool) {
	transcript := core.StringValue(input, "transcript")
	if transcript == "" {
		return "", false
	}

	answer, err := llm.Generate(ctx, fmt.Sprintf(consultPrompt, question, transcript))
	if err != nil {
		return "", false
	}

	answer = strings.TrimSpace(answer)
	if answer == "" || strings.Contains(answer, "NONE") || strings.Contains(answer, "None") {
		return "", false
	}

	return answer, true
}
