package ratelimit

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

type TestContext interface {
	Start(requestsPerMinute int) error
	GET(path string, headers map[string]string) error
	POST(path string, body any) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers per-IP budget steps for the token and auth endpoints.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^the gateway allows (\d+) requests per minute per client$`, steps.gatewayAllows)
	ctx.Step(`^I open link "([^"]*)" (\d+) times$`, steps.openLinkNTimes)
	ctx.Step(`^I fail to log in as "([^"]*)" (\d+) times$`, steps.failLoginNTimes)
	ctx.Step(`^the last (\d+) responses should have been (\d+)$`, steps.lastResponsesWere)
}

type ratelimitSteps struct {
	tc       TestContext
	statuses []int
}

func (s *ratelimitSteps) gatewayAllows(_ context.Context, n int) error {
	s.statuses = nil
	return s.tc.Start(n)
}

func (s *ratelimitSteps) openLinkNTimes(_ context.Context, token string, n int) error {
	for range n {
		if err := s.tc.GET("/api/program_data/"+token, nil); err != nil {
			return err
		}
		s.statuses = append(s.statuses, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *ratelimitSteps) failLoginNTimes(_ context.Context, username string, n int) error {
	for range n {
		if err := s.tc.POST("/auth/login", map[string]string{"username": username, "password": "wrong-password"}); err != nil {
			return err
		}
		s.statuses = append(s.statuses, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *ratelimitSteps) lastResponsesWere(_ context.Context, n, status int) error {
	if len(s.statuses) < n {
		return fmt.Errorf("only %d responses recorded", len(s.statuses))
	}
	for i, got := range s.statuses[len(s.statuses)-n:] {
		if got != status {
			return fmt.Errorf("response %d of last %d was %d, want %d", i+1, n, got, status)
		}
	}
	return nil
}
