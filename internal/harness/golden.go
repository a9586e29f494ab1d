package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/carp/internal/catalog"
	"github.com/roach88/carp/internal/replay"
)

// RunWithGolden runs a scenario and compares its request log against
// testdata/golden/<scenario name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, c *catalog.Catalog, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), c, scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the request log of result against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := replay.MarshalGolden(result.Log, replay.Normalizer{})
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(replay.GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
