package clinical

import (
	"github.com/hupe1980/crucible/agent"
	"github.com/hupe1980/crucible/internal/util"
	"github.com/hupe1980/crucible/logging"
	"github.com/hupe1980/crucible/model"
)

// Agent ids.
const (
	UserAssist           = "user_assist"
	SafetyTriage         = "safety_triage"
	ClinicalEntity       = "clinical_entity"
	DiagnosisMapping     = "diagnosis_mapping"
	RiskAssessment       = "risk_assessment"
	ProcedureCoding      = "procedure_coding"
	MedicationManagement = "medication_management"
	TreatmentPlanning    = "treatment_planning"
	OutputGeneration     = "output_generation"
)

// Topics.
const (
	TopicTranscriptReady     = "TRANSCRIPT_READY"
	TopicOrientationComplete = "ORIENTATION_COMPLETE"
	TopicSafetyCleared       = "SAFETY_CLEARED"
	TopicClinicalExtracted   = "CLINICAL_EXTRACTED"
	TopicDiagnosisProposed   = "DIAGNOSIS_PROPOSED"
	TopicRiskAssessed        = "RISK_ASSESSED"
	TopicProcedureCoded      = "PROCEDURE_CODED"
	TopicMedicationChecked   = "MEDICATION_CHECKED"
	TopicTreatmentPlanned    = "TREATMENT_PLANNED"
	TopicOutputGenerated     = "OUTPUT_GENERATED"
)

// KeyValidationResult is the orientation field the safety override reads.
const KeyValidationResult = "validation_result"

// Roster is prepended to every prompt so each agent knows its peers.
const Roster = `THE MEDICAL AI TEAM:
1. Safety Triage Agent: watches for emergency risks (self-harm, violence).
2. Clinical Entity Agent: extracts symptoms, medications and conditions.
3. Diagnosis Mapping Agent: maps symptoms to ICD-10 codes.
4. Risk Assessment Agent: performs the C-SSRS suicide risk assessment.
5. Procedure Coding Agent: assigns CPT codes for billing.
6. Medication Management Agent: details current medications and changes.
7. Treatment Planning Agent: develops goals and interventions.
8. Output Generation Agent: synthesizes the final SOAP note.

FORMATTING GUIDELINES FOR TEAM CHAT:
- Use *asterisks* to highlight clinical entities (e.g. *Fluoxetine*, *Major Depression*).
- Use **double asterisks** for decisions or status (e.g. **SAFE**, **HALTED**, **DIAGNOSIS PROPOSED**).
- Be conversational but clinical. Your summary is what the provider sees.`

// Options configures the team.
type Options struct {
	// Preamble replaces Roster.
	Preamble string
	// ReviewThreshold marks low confidence outputs as needs_review.
	ReviewThreshold float64
	Logger          logging.Logger
}

type kind struct {
	desc     agent.Descriptor
	prompt   string
	schema   *util.Schema
	summary  func(map[string]any) string
	parse    func(string) (map[string]any, bool)
	score    func(map[string]any) float64
	consult  agent.ConsultFunc
	outbound string
}

var transcriptSchema = &util.Schema{
	Required: []string{"transcript"},
	Types:    map[string]string{"transcript": "string"},
}

// kinds is the registration order. The engine scans it for every event.
var kinds = []kind{
	{
		desc: agent.Descriptor{
			ID: SafetyTriage, Name: "Safety Triage Agent", Priority: 100,
			Dependencies: []string{"transcript"}, ListenFor: []string{TopicOrientationComplete}, HumanInLoop: true,
		},
		prompt: safetyPrompt, schema: transcriptSchema, summary: summarizeSafety, outbound: TopicSafetyCleared,
	},
	{
		desc: agent.Descriptor{
			ID: ClinicalEntity, Name: "Clinical Entity Extraction", Priority: 9,
			Dependencies: []string{"transcript"}, ListenFor: []string{TopicSafetyCleared},
		},
		prompt: clinicalPrompt, schema: transcriptSchema, summary: summarizeClinical, consult: consultTranscript,
		outbound: TopicClinicalExtracted,
	},
	{
		desc: agent.Descriptor{
			ID: DiagnosisMapping, Name: "Diagnosis Mapping Agent", Priority: 8,
			Dependencies: []string{ClinicalEntity}, ListenFor: []string{TopicClinicalExtracted, TopicMedicationChecked}, HumanInLoop: true,
		},
		prompt: diagnosisPrompt, summary: summarizeDiagnosis, score: scoreDiagnosis, outbound: TopicDiagnosisProposed,
	},
	{
		desc: agent.Descriptor{
			ID: RiskAssessment, Name: "Risk Assessment Agent (C-SSRS)", Priority: 8,
			Dependencies: []string{"transcript"}, ListenFor: []string{TopicDiagnosisProposed}, HumanInLoop: true,
		},
		prompt: riskPrompt, schema: transcriptSchema, summary: summarizeRisk, outbound: TopicRiskAssessed,
	},
	{
		desc: agent.Descriptor{
			ID: ProcedureCoding, Name: "Procedure Coding Agent", Priority: 6,
			Dependencies: []string{ClinicalEntity, DiagnosisMapping}, ListenFor: []string{TopicRiskAssessed}, HumanInLoop: true,
		},
		prompt: procedurePrompt, schema: transcriptSchema, summary: summarizeProcedure, score: scoreProcedure,
		outbound: TopicProcedureCoded,
	},
	{
		desc: agent.Descriptor{
			ID: MedicationManagement, Name: "Medication Management Agent", Priority: 5,
			Dependencies: []string{ClinicalEntity}, ListenFor: []string{TopicDiagnosisProposed, TopicProcedureCoded}, HumanInLoop: true,
		},
		prompt: medicationPrompt, schema: transcriptSchema, summary: summarizeMedication, outbound: TopicMedicationChecked,
	},
	{
		desc: agent.Descriptor{
			ID: TreatmentPlanning, Name: "Treatment Planning Agent", Priority: 5,
			Dependencies: []string{DiagnosisMapping, RiskAssessment, MedicationManagement}, ListenFor: []string{TopicMedicationChecked}, HumanInLoop: true,
		},
		prompt: treatmentPrompt, summary: summarizeTreatment, outbound: TopicTreatmentPlanned,
	},
	{
		desc: agent.Descriptor{
			ID: OutputGeneration, Name: "Output Generation Agent", Priority: 1,
			Dependencies: []string{SafetyTriage, ClinicalEntity, DiagnosisMapping, RiskAssessment, ProcedureCoding, MedicationManagement, TreatmentPlanning},
			ListenFor:    []string{TopicTreatmentPlanned}, HumanInLoop: true,
		},
		prompt: outputPrompt, summary: summarizeOutput, outbound: TopicOutputGenerated,
	},
	{
		desc: agent.Descriptor{
			ID: UserAssist, Name: "User Assist Agent", Priority: 10,
			Dependencies: []string{"transcript"}, ListenFor: []string{TopicTranscriptReady},
		},
		prompt: orientationPrompt, summary: summarizeOrientation, parse: parseOrientation, outbound: TopicOrientationComplete,
	},
}

// Team builds the registry of all nine agents backed by m.
func Team(m model.Model, optFns ...func(o *Options)) (*agent.Registry, error) {
	opts := Options{
		Preamble:        Roster,
		ReviewThreshold: agent.DefaultReviewThreshold,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	agents := make([]agent.Agent, 0, len(kinds))
	for _, k := range kinds {
		agents = append(agents, newAgent(k, m, opts))
	}

	return agent.NewRegistry(agents...)
}

// Topics returns the outbound topic of every agent.
func Topics() map[string]string {
	out := make(map[string]string, len(kinds))
	for _, k := range kinds {
		out[k.desc.ID] = k.outbound
	}

	return out
}

func newAgent(k kind, m model.Model, opts Options) *agent.ModelAgent {
	return agent.NewModelAgent(k.desc, m, func(o *agent.ModelAgentOptions) {
		o.Instruction = agent.NewInstructionFromText(k.prompt)
		o.Preamble = opts.Preamble
		o.Summary = k.summary
		o.Consult = k.consult
		o.ReviewThreshold = opts.ReviewThreshold
		o.Logger = logging.With(opts.Logger, "agent", k.desc.ID)

		if k.schema != nil {
			o.Validate = k.schema.Validate
		}
		if k.parse != nil {
			o.Parse = k.parse
		}
		if k.score != nil {
			o.Confidence = k.score
		}
	})
}
