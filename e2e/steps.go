package e2e

import (
	"github.com/cucumber/godog"

	"canopy/e2e/steps/admin"
	"canopy/e2e/steps/common"
	"canopy/e2e/steps/document"
)

// RegisterSteps wires every step package to the shared scenario context.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	document.RegisterSteps(ctx, tc)
	admin.RegisterSteps(ctx, tc)
}
