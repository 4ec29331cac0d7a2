package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Address(name string) string
	ActAs(name string)
	GET(path string) error
	LastStatus() int
	LastHeader(name string) string
}

// RegisterSteps registers per-caller rate limiting step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^"([^"]*)" sends (\d+) requests$`, steps.sendsRequests)
	ctx.Step(`^the last request should be rate limited$`, steps.lastShouldBeLimited)
	ctx.Step(`^the last request should not be rate limited$`, steps.lastShouldNotBeLimited)
}

type ratelimitSteps struct {
	tc TestContext
}

func (s *ratelimitSteps) sendsRequests(ctx context.Context, name string, n int) error {
	s.tc.ActAs(name)
	for range n {
		if err := s.tc.GET("/participants/" + s.tc.Address(name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *ratelimitSteps) lastShouldBeLimited(ctx context.Context) error {
	if s.tc.LastStatus() != 429 {
		return fmt.Errorf("expected 429, got %d", s.tc.LastStatus())
	}
	retry, err := strconv.Atoi(s.tc.LastHeader("Retry-After"))
	if err != nil || retry <= 0 {
		return fmt.Errorf("expected a positive Retry-After, got %q", s.tc.LastHeader("Retry-After"))
	}
	return nil
}

func (s *ratelimitSteps) lastShouldNotBeLimited(ctx context.Context) error {
	if s.tc.LastStatus() == 429 {
		return fmt.Errorf("request was rate limited")
	}
	if s.tc.LastHeader("X-RateLimit-Limit") == "" {
		return fmt.Errorf("missing X-RateLimit-Limit header")
	}
	return nil
}
