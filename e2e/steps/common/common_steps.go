// Package common holds the generic request and assertion steps shared by
// every feature.
package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps need.
type TestContext interface {
	AuthenticateAs(role string) error
	GET(path string) error
	LastStatus() int
	LastBody() []byte
	ResponseField(path string) (any, error)
	Save(key, value string)
}

// RegisterSteps registers background, identity, and assertion steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the service is reachable$`, steps.serviceIsReachable)
	ctx.Step(`^I am authenticated as an? (admin|individual|business|verifier)$`, steps.authenticateAs)
	ctx.Step(`^I am not authenticated$`, steps.notAuthenticated)

	ctx.Step(`^I GET "([^"]*)"$`, steps.get)

	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.responseFieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be present$`, steps.responseFieldShouldBePresent)
	ctx.Step(`^the error code should be "([^"]*)"$`, steps.errorCodeShouldBe)
	ctx.Step(`^I save the response field "([^"]*)" as "([^"]*)"$`, steps.saveResponseField)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) serviceIsReachable(ctx context.Context) error {
	if err := s.tc.GET("/healthz"); err != nil {
		return err
	}
	if s.tc.LastStatus() != 200 {
		return fmt.Errorf("health check returned %d", s.tc.LastStatus())
	}
	return nil
}

func (s *commonSteps) authenticateAs(ctx context.Context, role string) error {
	return s.tc.AuthenticateAs(role)
}

func (s *commonSteps) notAuthenticated(ctx context.Context) error {
	// A fresh scenario starts without a token; this step only documents it.
	return nil
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.GET(path)
}

func (s *commonSteps) responseStatusShouldBe(ctx context.Context, expected int) error {
	if s.tc.LastStatus() != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, s.tc.LastStatus(), s.tc.LastBody())
	}
	return nil
}

func (s *commonSteps) responseFieldShouldBe(ctx context.Context, path, expected string) error {
	value, err := s.tc.ResponseField(path)
	if err != nil {
		return err
	}
	if actual := stringify(value); actual != expected {
		return fmt.Errorf("field %q is %q, expected %q", path, actual, expected)
	}
	return nil
}

func (s *commonSteps) responseFieldShouldBePresent(ctx context.Context, path string) error {
	_, err := s.tc.ResponseField(path)
	return err
}

func (s *commonSteps) errorCodeShouldBe(ctx context.Context, expected string) error {
	return s.responseFieldShouldBe(ctx, "error", expected)
}

func (s *commonSteps) saveResponseField(ctx context.Context, path, key string) error {
	value, err := s.tc.ResponseField(path)
	if err != nil {
		return err
	}
	s.tc.Save(key, stringify(value))
	return nil
}

// stringify renders a decoded JSON value the way feature files write it:
// numbers without a trailing ".0", booleans as true/false.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
