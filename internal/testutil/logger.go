// Package testutil provides shared test helpers for SNUTZ packages: an
// in-memory store, a fake clock, a recording event bus, and model fixtures.
package testutil

import "go.uber.org/zap"

// Logger returns a development zap logger so test failures come with
// readable module output.
func Logger() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic("testutil.Logger: " + err.Error())
	}
	return l
}
