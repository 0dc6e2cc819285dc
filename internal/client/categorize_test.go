package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kjstillabower/currentweather-service/internal/circuitbreaker"
)

// TestCategorizeError verifies that CategorizeError maps errors to the correct ErrorCategory
// for metrics labeling, including sentinel errors, wrapped errors, and message-based heuristics.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout context", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled context", context.Canceled, ErrorCategoryTimeout},
		{"city not found", ErrCityNotFound, ErrorCategoryCityNotFound},
		{"invalid API key", fmt.Errorf("%w: %w", ErrUpstreamFailure, ErrInvalidAPIKey), ErrorCategoryInvalidAPIKey},
		{"rate limited", fmt.Errorf("%w: %w", ErrUpstreamFailure, ErrRateLimited), ErrorCategoryRateLimited},
		{"circuit open", fmt.Errorf("%w: %w", ErrUpstreamFailure, circuitbreaker.ErrOpen), ErrorCategoryCircuitOpen},
		{"upstream 5xx", fmt.Errorf("%w: HTTP 503", ErrUpstreamFailure), ErrorCategoryUpstream},
		{"timeout in message", fmt.Errorf("%w: request timeout: %w", ErrUpstreamFailure, context.DeadlineExceeded), ErrorCategoryTimeout},
		{"network in message", errors.New("dial tcp: connection refused"), ErrorCategoryNetwork},
		{"parse in message", fmt.Errorf("%w: parse response: invalid json", ErrUpstreamFailure), ErrorCategoryParsing},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategorizeError(tt.err)
			if got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}
