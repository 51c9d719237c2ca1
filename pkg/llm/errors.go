// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import "fmt"

// ConfigurationError reports invalid or missing provider configuration.
// It is fatal at construction time; there is no sensible runtime fallback.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("llm configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("llm configuration error (%s): %s", e.Provider, e.Reason)
}

// ProviderError reports an upstream model API failure: network error,
// non-2xx HTTP status, or a malformed response.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ToolResolutionError reports a tool name from a model response that is not
// in the catalog. The tool loop recovers from it locally by injecting an
// error-flavored tool result, so callers normally never see it.
type ToolResolutionError struct {
	ToolName string
}

func (e *ToolResolutionError) Error() string {
	return fmt.Sprintf("tool %q is not in the catalog", e.ToolName)
}

// MaxIterationsError reports that the tool loop hit its iteration ceiling
// before the model produced a final answer. It is not a hard failure: the
// best available partial text is still returned alongside it.
type MaxIterationsError struct {
	Iterations  int
	PartialText string
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("tool loop terminated after %d iterations without a final answer", e.Iterations)
}
