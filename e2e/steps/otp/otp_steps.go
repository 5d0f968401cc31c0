package otp

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps need.
type TestContext interface {
	POST(path string, body any, headers map[string]string) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetAccessToken() string
	GetPhone() string
}

// RegisterSteps registers OTP issue and verification steps. Codes travel
// out of band, so scenarios can only submit codes they chose themselves.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &otpSteps{tc: tc}

	ctx.Step(`^I request an OTP code for my mobile phone$`, steps.requestCode)
	ctx.Step(`^I submit the OTP code "([^"]*)"$`, steps.submitCode)
	ctx.Step(`^I submit the OTP code "([^"]*)" (\d+) times and each response is (\d+)$`, steps.submitCodeRepeatedly)
}

type otpSteps struct {
	tc TestContext
}

func (s *otpSteps) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.tc.GetAccessToken()}
}

func (s *otpSteps) requestCode(ctx context.Context) error {
	return s.tc.POST("/api/users/auth/users/otp/creation", map[string]string{"mobilePhone": s.tc.GetPhone()}, s.headers())
}

func (s *otpSteps) submitCode(ctx context.Context, code string) error {
	return s.tc.POST("/api/users/auth/users/otp/verification", map[string]string{
		"mobilePhone": s.tc.GetPhone(),
		"otpCode":     code,
	}, s.headers())
}

func (s *otpSteps) submitCodeRepeatedly(ctx context.Context, code string, times, expected int) error {
	for i := range times {
		if err := s.submitCode(ctx, code); err != nil {
			return err
		}
		if got := s.tc.GetLastResponseStatus(); got != expected {
			return fmt.Errorf("attempt %d: expected status %d, got %d: %s", i+1, expected, got, s.tc.GetLastResponseBody())
		}
	}
	return nil
}
