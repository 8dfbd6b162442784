package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/crucible/core"
	"github.com/hupe1980/crucible/logging"
	"github.com/hupe1980/crucible/model"
)

const (
	// DefaultConfidence is reported for a successfully parsed response when
	// the agent kind has no confidence hook.
	DefaultConfidence = 0.95
	// DefaultReviewThreshold marks outputs below it as needs_review.
	DefaultReviewThreshold = 0.5
)

// ConsultFunc answers a peer question using the agent's model. It returns
// false when it has no answer.
type ConsultFunc func(ctx context.Context, llm model.Model, question string, input, view map[string]any) (string, bool)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	// Instruction renders the kind specific task.
	Instruction Instruction
	// Preamble is prepended to every prompt (team roster, formatting rules).
	Preamble string
	// Validate rejects unusable input before the model is called.
	Validate func(input map[string]any) error
	// Parse turns model text into data. Defaults to ParseOutput.
	Parse func(raw string) (map[string]any, bool)
	// Confidence scores parsed data. Defaults to DefaultConfidence.
	Confidence func(data map[string]any) float64
	// Summary formats data for the team chat. Defaults to DefaultSummary.
	Summary func(data map[string]any) string
	// Consult lets the agent answer peer questions.
	Consult ConsultFunc
	// ReviewThreshold marks low confidence outputs as needs_review.
	ReviewThreshold float64
	Logger          logging.Logger
}

// ModelAgent is the model backed implementation of Agent. Every agent kind
// is a ModelAgent parameterised with its own descriptor, instruction and
// hooks.
//
// Execute follows a fixed pipeline:
//  1. validate the input
//  2. build the collaborative preamble from the ordered clarification history
//  3. render the kind instruction against input and context
//  4. append direct user feedback addressed to this agent
//  5. call the model; failures become error outputs
//  6. parse the response defensively
//  7. score confidence and classify the status
type ModelAgent struct {
	BaseAgent
	llm  model.Model
	opts ModelAgentOptions
}

var _ Agent = (*ModelAgent)(nil)

// NewModelAgent creates a model backed agent.
func NewModelAgent(desc Descriptor, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:     NewInstructionFromText(fmt.Sprintf("You are %s. Return ONLY a valid JSON object.", desc.Name)),
		Parse:           ParseOutput,
		ReviewThreshold: DefaultReviewThreshold,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Parse == nil {
		opts.Parse = ParseOutput
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &ModelAgent{
		BaseAgent: NewBaseAgent(desc),
		llm:       llm,
		opts:      opts,
	}
}

// Execute implements Agent.
func (a *ModelAgent) Execute(ctx context.Context, input, view map[string]any) (*core.AgentOutput, error) {
	id := a.ID()

	if a.opts.Validate != nil {
		if err := a.opts.Validate(input); err != nil {
			return core.NewErrorOutput(id, fmt.Sprintf("Invalid input data: %v", err)), nil
		}
	}

	prompt, err := a.BuildPrompt(input, view)
	if err != nil {
		return nil, fmt.Errorf("build prompt for %s: %w", id, err)
	}

	raw, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		a.opts.Logger.Warn("model call failed", "agent", id, "error", err)
		return core.NewErrorOutput(id, err.Error()), nil
	}

	data, ok := a.opts.Parse(raw)
	if !ok {
		a.opts.Logger.Warn("unparseable model response", "agent", id, "chars", len(raw))
		return core.NewOutput(id, core.StatusError, 0, data, "model response could not be parsed"), nil
	}

	confidence := DefaultConfidence
	if a.opts.Confidence != nil {
		confidence = a.opts.Confidence(data)
	}

	status := core.StatusCompleted
	if confidence < a.opts.ReviewThreshold {
		status = core.StatusNeedsReview
	}

	reasoning := core.StringValue(data, core.KeyReasoning)
	if reasoning == "" {
		reasoning = fmt.Sprintf("Analysis by %s.", a.Name())
	}

	return core.NewOutput(id, status, confidence, data, reasoning), nil
}

// BuildPrompt assembles the full prompt for input and view.
func (a *ModelAgent) BuildPrompt(input, view map[string]any) (string, error) {
	task, err := a.opts.Instruction.Resolve(PromptData{
		AgentID: a.ID(),
		Input:   input,
		Context: PublicContext(view),
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if a.opts.Preamble != "" {
		sb.WriteString(a.opts.Preamble)
		sb.WriteString("\n\n")
	}
	sb.WriteString(CollaborativeHistory(view))
	sb.WriteString("\n\nYOUR SPECIFIC TASK:\n")
	sb.WriteString(task)

	if answer, ok := core.UserClarification(view, a.ID()); ok {
		fmt.Fprintf(&sb, "\n\n*** DIRECT USER FEEDBACK FOR %s ***:\n", strings.ToUpper(a.ID()))
		fmt.Fprintf(&sb, "USER: %s\n", answer)
		sb.WriteString("INSTRUCTION: Incorporate this feedback immediately. If this answers your previous doubt, set 'clarification_needed' to false.")
	}

	return sb.String(), nil
}

// Summarize implements Agent.
func (a *ModelAgent) Summarize(data map[string]any) string {
	if a.opts.Summary != nil {
		return a.opts.Summary(data)
	}
	return DefaultSummary(a.ID(), data)
}

// Consult implements Agent.
func (a *ModelAgent) Consult(ctx context.Context, question string, input, view map[string]any) (string, bool) {
	if a.opts.Consult == nil {
		return "", false
	}
	return a.opts.Consult(ctx, a.llm, question, input, view)
}

// CollaborativeHistory renders every answered clarification in the order
// the questions were asked.
func CollaborativeHistory(view map[string]any) string {
	var answered []core.Clarification
	for _, c := range core.ClarificationHistory(view) {
		if c.Answered() {
			answered = append(answered, c)
		}
	}

	if len(answered) == 0 {
		return "NO PRIOR HUMAN-IN-THE-LOOP INTERACTIONS."
	}

	var sb strings.Builder
	sb.WriteString("SHARED TRANSCRIPT OF CLARIFICATIONS (Use this context):\n")
	for _, c := range answered {
		q := c.Question
		if q == "" {
			q = "Unknown Question"
		}
		fmt.Fprintf(&sb, "- [Agent: %s]\n  Q: %q\n  A: %q\n", TitleCase(c.AgentID), q, c.Answer)
	}

	return strings.TrimRight(sb.String(), "\n")
}

// PublicContext returns view without engine reserved keys.
func PublicContext(view map[string]any) map[string]any {
	out := make(map[string]any, len(view))
	for k, v := range view {
		if k == core.KeyUserClarifications || k == core.KeyClarificationHistory {
			continue
		}
		out[k] = v
	}
	return out
}
