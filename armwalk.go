// Package armwalk is the public entry point into the two-stage ARMv9
// address translation walker: Walk loads a scenario file, drives the
// translation, and returns the fully-populated result document. It is a
// small facade over the internal/ packages that do the actual work.
package armwalk

import (
	"time"

	"github.com/hemindesai04/page-table-walker/internal/engine"
	"github.com/hemindesai04/page-table-walker/internal/report"
	"github.com/hemindesai04/page-table-walker/internal/scenario"
)

// Walk loads the scenario at path, performs the two-stage translation it
// describes, and returns the result document timestamped with the time the
// scenario finished loading, just before the walk runs.
func Walk(path string) (*report.Document, error) {
	sc, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}
	return WalkScenario(sc, time.Now()), nil
}

// WalkScenario performs the translation for an already-loaded scenario,
// timestamping the result with ts. Exposed separately from Walk so callers
// that load many scenarios (the CLI's batch mode) can control the
// timestamp and avoid re-reading the file.
func WalkScenario(sc *scenario.Scenario, ts time.Time) *report.Document {
	res := engine.Walk(sc.Request)
	doc := report.Build(res, sc.Name, sc.Description,
		sc.Request.VA, sc.Request.AccessType, sc.Request.Privilege, ts)
	return &doc
}
