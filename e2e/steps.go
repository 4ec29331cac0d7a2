package e2e

import (
	"github.com/cucumber/godog"

	"tracechain/e2e/steps/common"
	"tracechain/e2e/steps/custody"
	"tracechain/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (callers, generic assertions)
	common.RegisterSteps(ctx, tc)

	// Register participant, token and transfer steps
	custody.RegisterSteps(ctx, tc)

	ratelimit.RegisterSteps(ctx, tc)
}
