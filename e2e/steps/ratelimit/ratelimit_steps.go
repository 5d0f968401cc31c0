package ratelimit

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps need.
type TestContext interface {
	POST(path string, body any, headers map[string]string) error
	GetLastResponseStatus() int
	GetLastResponseHeader(key string) string
	GetPhone() string
}

// RegisterSteps registers steps for the gateway's public-path throttle.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I send (\d+) check-registration requests from IP "([^"]*)"$`, steps.sendFromIP)
	ctx.Step(`^I send (\d+) check-registration requests each claiming a different forwarded address$`, steps.sendRotating)
	ctx.Step(`^at least one response should be throttled$`, steps.someThrottled)
	ctx.Step(`^no response should be throttled$`, steps.noneThrottled)
	ctx.Step(`^the throttled response should ask to retry after (\d+) seconds?$`, steps.retryAfter)
}

type ratelimitSteps struct {
	tc        TestContext
	throttled int
	retry     string
}

func (s *ratelimitSteps) sendFromIP(ctx context.Context, n int, ip string) error {
	return s.send(n, func(int) string { return ip })
}

func (s *ratelimitSteps) sendRotating(ctx context.Context, n int) error {
	return s.send(n, func(i int) string { return fmt.Sprintf("198.51.100.%d", i%250) })
}

func (s *ratelimitSteps) send(n int, forwardedFor func(i int) string) error {
	s.throttled = 0
	for i := range n {
		err := s.tc.POST("/api/users/public/users/check-registration",
			map[string]string{"mobilePhone": s.tc.GetPhone()},
			map[string]string{"X-Forwarded-For": forwardedFor(i)},
		)
		if err != nil {
			return err
		}
		if s.tc.GetLastResponseStatus() == 429 {
			s.throttled++
			s.retry = s.tc.GetLastResponseHeader("Retry-After")
		}
	}
	return nil
}

func (s *ratelimitSteps) someThrottled(ctx context.Context) error {
	if s.throttled == 0 {
		return fmt.Errorf("expected at least one 429 response")
	}
	return nil
}

func (s *ratelimitSteps) noneThrottled(ctx context.Context) error {
	if s.throttled > 0 {
		return fmt.Errorf("expected no 429 responses, got %d", s.throttled)
	}
	return nil
}

func (s *ratelimitSteps) retryAfter(ctx context.Context, seconds int) error {
	if want := fmt.Sprint(seconds); s.retry != want {
		return fmt.Errorf("expected Retry-After %s, got %q", want, s.retry)
	}
	return nil
}
