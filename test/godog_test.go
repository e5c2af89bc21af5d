// Package cucumber runs the Gherkin scenarios under features/ against
// the HTTP facade in-process via godog.TestSuite, serving the router
// from an httptest server rather than a live deployment.
package cucumber

import (
	"testing"

	"github.com/cucumber/godog"

	"github.com/livepeer/pipectl/test/steps"
)

func TestFeatures(t *testing.T) {
	sc := &steps.StepContext{}

	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			steps.RegisterSteps(ctx, sc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned from godog test suite")
	}
}
