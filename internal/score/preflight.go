package score

import (
	"fmt"
	"strings"
)

// Pre-flight rejection codes.
const (
	CodePromptEmpty       = "prompt_empty"
	CodePromptTooShort    = "prompt_too_short"
	CodeCredentialMissing = "credential_missing"
)

// DefaultMinPromptLen is the minimum usable prompt template length after
// trimming.
const DefaultMinPromptLen = 10

// PreflightError describes a configuration problem caught before any
// request leaves the machine.
type PreflightError struct {
	Code string
	Msg  string
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight %s: %s", e.Code, e.Msg)
}

// Preflight checks the scoring configuration. needCredential is true when
// the run will dial a remote endpoint; purely local setups score without
// one. minLen <= 0 selects the default of 10 characters.
func Preflight(promptTemplate, credential string, minLen int, needCredential bool) error {
	if minLen <= 0 {
		minLen = DefaultMinPromptLen
	}

	trimmed := strings.TrimSpace(promptTemplate)
	if trimmed == "" {
		return &PreflightError{Code: CodePromptEmpty, Msg: "prompt template is empty"}
	}
	if len(trimmed) < minLen {
		return &PreflightError{
			Code: CodePromptTooShort,
			Msg:  fmt.Sprintf("prompt template is %d chars, need at least %d", len(trimmed), minLen),
		}
	}
	if needCredential && strings.TrimSpace(credential) == "" {
		return &PreflightError{Code: CodeCredentialMissing, Msg: "scorer credential is not set"}
	}
	return nil
}
