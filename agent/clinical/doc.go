// Package clinical provides the psychiatric documentation team: nine model
// backed agents that turn a session transcript into safety findings,
// diagnosis and procedure codes, a risk assessment, a medication review, a
// treatment plan and finally a SOAP note.
//
// The agents never call each other. Each one listens for the topic that
// announces the work it depends on, and the engine republishes its output
// under the topic returned by Topics:
//
//	TRANSCRIPT_READY     -> user_assist           -> ORIENTATION_COMPLETE
//	ORIENTATION_COMPLETE -> safety_triage         -> SAFETY_CLEARED
//	SAFETY_CLEARED       -> clinical_entity       -> CLINICAL_EXTRACTED
//	CLINICAL_EXTRACTED   -> diagnosis_mapping     -> DIAGNOSIS_PROPOSED
//	DIAGNOSIS_PROPOSED   -> risk_assessment       -> RISK_ASSESSED
//	RISK_ASSESSED        -> procedure_coding      -> PROCEDURE_CODED
//	PROCEDURE_CODED      -> medication_management -> MEDICATION_CHECKED
//	MEDICATION_CHECKED   -> treatment_planning    -> TREATMENT_PLANNED
//	TREATMENT_PLANNED    -> output_generation     -> OUTPUT_GENERATED
//
// medication_management also reacts to DIAGNOSIS_PROPOSED and
// diagnosis_mapping to MEDICATION_CHECKED, which lets the two review each
// other's findings. The administrator breaks that exchange when it starts
// to repeat.
package clinical
