package clinical

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crucible/core"
	"github.com/hupe1980/crucible/model"
)

func TestTeam_OrderAndWiring(t *testing.T) {
	reg, err := Team(model.NewMock())
	require.NoError(t, err)
	require.Equal(t, 9, reg.Len())

	var ids []string
	for _, a := range reg.Agents() {
		ids = append(ids, a.Descriptor().ID)
	}
	assert.Equal(t, []string{
		SafetyTriage, ClinicalEntity, DiagnosisMapping, RiskAssessment, ProcedureCoding,
		MedicationManagement, TreatmentPlanning, OutputGeneration, UserAssist,
	}, ids)

	safety, ok := reg.Get(SafetyTriage)
	require.True(t, ok)
	assert.Equal(t, 100, safety.Descriptor().Priority)
	assert.True(t, safety.React(core.NewEvent(TopicOrientationComplete, UserAssist, nil, 10), nil))
	assert.False(t, safety.React(core.NewEvent(TopicTranscriptReady, core.SystemSender, nil, 1), nil))

	med, ok := reg.Get(MedicationManagement)
	require.True(t, ok)
	assert.True(t, med.Descriptor().Listens(TopicDiagnosisProposed))
	assert.True(t, med.Descriptor().Listens(TopicProcedureCoded))
}

func TestTopics(t *testing.T) {
	topics := Topics()
	assert.Len(t, topics, 9)
	assert.Equal(t, TopicOrientationComplete, topics[UserAssist])
	assert.Equal(t, TopicSafetyCleared, topics[SafetyTriage])
	assert.Equal(t, TopicMedicationChecked, topics[MedicationManagement])
	assert.Equal(t, TopicOutputGenerated, topics[OutputGeneration])
}

func TestSafetyTriage_ExecuteAndSummary(t *testing.T) {
	m := model.NewMock().
		AddResponse("psychiatric safety specialist", "```json\n{\"risk_detected\": true, \"summary\": \"Passive ideation.\"}\n```")

	reg, err := Team(m)
	require.NoError(t, err)
	safety, _ := reg.Get(SafetyTriage)

	out, err := safety.Execute(context.Background(), map[string]any{"transcript": "I sometimes wish I could disappear."}, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, out.Status)
	assert.Equal(t, SafetyTriage, out.AgentID)
	assert.True(t, core.Truthy(out.Data[core.KeyRiskDetected]))

	assert.Equal(t, "**SAFETY RISK DETECTED**: Passive ideation.\n\n*Action required immediately.*", safety.Summarize(out.Data))
	assert.Equal(t, "**SAFE**: No immediate safety risks identified in the *transcript*.", safety.Summarize(map[string]any{}))

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "THE MEDICAL AI TEAM:")
	assert.Contains(t, calls[0], "I sometimes wish I could disappear.")
}

func TestTranscriptRequired(t *testing.T) {
	m := model.NewMock()
	reg, err := Team(m)
	require.NoError(t, err)
	risk, _ := reg.Get(RiskAssessment)

	out, err := risk.Execute(context.Background(), map[string]any{}, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, out.Status)
	assert.Contains(t, core.StringValue(out.Data, core.KeyError), "transcript")
	assert.Empty(t, m.Calls())
}

func TestUserAssist_LenientParse(t *testing.T) {
	m := model.NewMock().AddResponse("Clinical Orientation Agent", "I could not produce JSON today")

	reg, err := Team(m)
	require.NoError(t, err)
	ua, _ := reg.Get(UserAssist)

	out, err := ua.Execute(context.Background(), map[string]any{"transcript": "t"}, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, out.Status)
	assert.Equal(t, "approved", out.Data[KeyValidationResult])
	assert.Contains(t, core.StringValue(out.Data, core.KeyReasoning), "Fallback due to parse error")
	assert.Contains(t, ua.Summarize(out.Data), "**ORIENTATION COMPLETE**: orientation complete")
}

func TestDiagnosis_UsesClinicalContextAndConfidence(t *testing.T) {
	m := model.NewMock().AddResponse("diagnosis coding specialist",
		`{"primary_diagnosis": {"code": "F32.1", "description": "Major depressive disorder, moderate", "confidence": 0.3}}`)

	reg, err := Team(m)
	require.NoError(t, err)
	dx, _ := reg.Get(DiagnosisMapping)

	view := map[string]any{ClinicalEntity: map[string]any{"presenting_symptoms": []any{map[string]any{"symptom": "anhedonia"}}}}
	out, err := dx.Execute(context.Background(), map[string]any{"transcript": "t"}, view)
	require.NoError(t, err)

	assert.Equal(t, core.StatusNeedsReview, out.Status)
	assert.InDelta(t, 0.3, out.Confidence, 1e-9)
	assert.Equal(t, "**DIAGNOSIS PROPOSED**: *F32.1* (*Major depressive disorder, moderate*)", dx.Summarize(out.Data))
	assert.Contains(t, m.Calls()[0], "anhedonia")
}

func TestSummaries(t *testing.T) {
	tests := []struct {
		name string
		fn   func(map[string]any) string
		data map[string]any
		want string
	}{
		{"clinical empty", summarizeClinical, map[string]any{}, "Clinical entities extracted."},
		{
			"clinical entities", summarizeClinical,
			map[string]any{
				"presenting_symptoms": []any{map[string]any{"symptom": "low mood"}, map[string]any{"symptom": "insomnia"}},
				"current_medications": []any{map[string]any{"name": "sertraline"}},
			},
			"Extracted 2 symptoms, including *Low Mood*, *Insomnia*. Identified 1 medications, including *Sertraline*.",
		},
		{"diagnosis paused", summarizeDiagnosis, map[string]any{"clarification_needed": true}, "**PAUSED**: Insufficient data for definitive diagnosis. Clarification requested."},
		{"diagnosis default", summarizeDiagnosis, map[string]any{"primary_diagnosis": "oops"}, "Diagnosis analysis complete."},
		{"risk high", summarizeRisk, map[string]any{"risk_level": "Imminent", "suicidal_ideation_present": true}, "**HIGH RISK**: C-SSRS Level *Imminent*. Suicidal ideation is *PRESENT*."},
		{"risk unknown", summarizeRisk, map[string]any{}, "**STABLE**: C-SSRS Level *Unknown*. Suicidal ideation is *NOT PRESENT*."},
		{"procedure code", summarizeProcedure, map[string]any{"primary_code": map[string]any{"code": "90837"}}, "**CODE ASSIGNED**: *90837* (*Procedure*)."},
		{"procedure paused", summarizeProcedure, map[string]any{"clarification_needed": true}, "**PAUSED**: Time/Duration missing. *Manual verification* required for CPT mapping."},
		{"procedure default", summarizeProcedure, map[string]any{}, "Procedure analysis complete."},
		{
			"medication changes", summarizeMedication,
			map[string]any{
				"medications": []any{map[string]any{"name": "sertraline"}, map[string]any{"name": "trazodone"}, map[string]any{"name": "x"}},
				"changes_made": []any{
					map[string]any{"medication": "trazodone", "change_type": "No Change"},
					map[string]any{"medication": "sertraline", "change_type": "Increase Dose"},
				},
			},
			"Monitoring 3 active medications, including *Sertraline*, *Trazodone*. **ADJUSTMENTS**: *Sertraline* (Increase Dose).",
		},
		{"medication empty", summarizeMedication, map[string]any{"medications": "n/a"}, "Medication review complete."},
		{
			"treatment", summarizeTreatment,
			map[string]any{"treatment_goals": []any{"a", "b"}, "interventions": []any{"c"}},
			"**PLAN DEVELOPED**: 2 *Clinical Goals* and 1 *Interventions*. **FOLLOW-UP**: *TBD*.",
		},
		{"output failed", summarizeOutput, map[string]any{"error": "Failed to parse JSON"}, "**FAILED**: Note synthesis incomplete. *Failed to parse JSON*"},
		{
			"output done", summarizeOutput, map[string]any{"summary": "Note ready."},
			"**SYNTHESIS COMPLETE**: Note ready.\n\n*Review the full SOAP report in the 'View Result' dialog.*",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.data))
		})
	}
}

func TestClinicalEntity_Consult(t *testing.T) {
	m := model.NewMock().
		AddResponse("session length", "45 minutes").
		AddResponse("dose", "NONE").
		AddError("broken", errors.New("boom"))

	reg, err := Team(m)
	require.NoError(t, err)
	ce, _ := reg.Get(ClinicalEntity)
	input := map[string]any{"transcript": "We talked for 45 minutes."}

	answer, ok := ce.Consult(context.Background(), "What was the session length?", input, nil)
	require.True(t, ok)
	assert.Equal(t, "45 minutes", answer)

	_, ok = ce.Consult(context.Background(), "What dose?", input, nil)
	assert.False(t, ok)

	_, ok = ce.Consult(context.Background(), "broken question", input, nil)
	assert.False(t, ok)

	_, ok = ce.Consult(context.Background(), "session length", map[string]any{}, nil)
	assert.False(t, ok)

	dx, _ := reg.Get(DiagnosisMapping)
	_, ok = dx.Consult(context.Background(), "session length", input, nil)
	assert.False(t, ok)
}
