package e2e

import (
	"github.com/cucumber/godog"

	"fintech-id/e2e/steps/common"
	"fintech-id/e2e/steps/identity"
	"fintech-id/e2e/steps/otp"
	"fintech-id/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions from modular packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	identity.RegisterSteps(ctx, tc)
	otp.RegisterSteps(ctx, tc)
	ratelimit.RegisterSteps(ctx, tc)
}
