package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps need.
type TestContext interface {
	POST(path string, body any, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetPhone() string
}

// RegisterSteps registers background, request and assertion steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the gateway is running$`, steps.gatewayIsRunning)
	ctx.Step(`^I POST to "([^"]*)" with my mobile phone$`, steps.postWithPhone)
	ctx.Step(`^I POST to "([^"]*)" with bearer token "([^"]*)"$`, steps.postWithToken)
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the error message should be "([^"]*)"$`, steps.errorMessageShouldBe)
	ctx.Step(`^the response field "([^"]*)" should not be empty$`, steps.fieldShouldNotBeEmpty)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) gatewayIsRunning(ctx context.Context) error {
	if err := s.tc.GET("/actuator/health", nil); err != nil {
		return err
	}
	return s.statusShouldBe(ctx, 200)
}

func (s *commonSteps) postWithPhone(ctx context.Context, path string) error {
	return s.tc.POST(path, map[string]string{"mobilePhone": s.tc.GetPhone()}, nil)
}

func (s *commonSteps) postWithToken(ctx context.Context, path, token string) error {
	return s.tc.POST(path, map[string]string{"mobilePhone": s.tc.GetPhone()}, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

func (s *commonSteps) statusShouldBe(ctx context.Context, expected int) error {
	if got := s.tc.GetLastResponseStatus(); got != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) errorMessageShouldBe(ctx context.Context, expected string) error {
	msg, err := s.tc.GetResponseField("errorMessage")
	if err != nil {
		return err
	}
	if msg != expected {
		return fmt.Errorf("expected error message %q, got %q", expected, msg)
	}
	return nil
}

func (s *commonSteps) fieldShouldNotBeEmpty(ctx context.Context, field string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if str, ok := v.(string); !ok || str == "" {
		return fmt.Errorf("expected %q to be a non-empty string, got %v", field, v)
	}
	return nil
}
