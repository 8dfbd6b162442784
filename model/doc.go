// Package model defines the provider-agnostic text generation contract used
// by agents, plus composable helpers around it.
//
// Core goals:
//   - One blocking call: prompt in, completion text out
//   - Cancellation through the caller's context
//   - Decorators for timeouts, call budgets and logging
//   - Lightweight scripted mocking for tests (Mock)
//
// Providers (Gemini, Anthropic, OpenAI) live in sub-packages and implement
// Model so agents remain decoupled from vendor SDKs.
package model
