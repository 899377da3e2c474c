package e2e

import (
	"context"

	"github.com/cucumber/godog"

	"troupon/e2e/steps/common"
	"troupon/e2e/steps/recovery"
)

// InitializeScenario gives every scenario its own server and browser.
func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &TestContext{}

	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		return ctx, tc.Start()
	})
	ctx.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		tc.Close()
		return ctx, err
	})

	RegisterSteps(ctx, tc)
}

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	recovery.RegisterSteps(ctx, tc)
}
