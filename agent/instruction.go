package agent

import (
	"github.com/hupe1980/crucible/internal/util"
)

// PromptData is what an instruction is rendered against.
type PromptData struct {
	AgentID string
	Input   map[string]any
	// Context is the agent's view without engine-reserved keys.
	Context map[string]any
}

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(PromptData) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(PromptData) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(d PromptData) (string, error) { return f(d) }

// Instruction represents either a static text/template string or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a template string.
// Templates see PromptData, e.g. {{.Input.transcript}} or {{json .Context}}.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(PromptData) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a template string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider or rendering
// the template as needed.
func (i Instruction) Resolve(d PromptData) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(d)
	}
	return util.RenderTemplate(i.text, d)
}
