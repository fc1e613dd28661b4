package e2e

import (
	"context"

	"github.com/cucumber/godog"

	"cardgate/e2e/steps/common"
	"cardgate/e2e/steps/distribution"
	"cardgate/e2e/steps/ratelimit"
)

// RegisterSteps wires every step package to a fresh context per scenario.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Before(func(c context.Context, _ *godog.Scenario) (context.Context, error) {
		return c, tc.Start(10_000)
	})
	ctx.After(func(c context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		tc.Stop()
		return c, err
	})

	common.RegisterSteps(ctx, tc)
	distribution.RegisterSteps(ctx, tc)
	ratelimit.RegisterSteps(ctx, tc)
}
