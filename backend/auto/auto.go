// SPDX-License-Identifier: EPL-2.0

// Package auto builds the device layers available on this platform, in the
// caller's order of preference. The engine picks the first one that
// initialises.
package auto

import (
	"log/slog"

	"github.com/ik5/audengine/backend"
	"github.com/ik5/audengine/backend/oto"
	"github.com/ik5/audengine/backend/virtual"
)

// Candidates returns one backend per kind, skipping kinds this build cannot
// provide. The order of kinds is kept.
func Candidates(kinds []backend.Kind, logger *slog.Logger, realTime bool) []backend.Backend {
	if logger == nil {
		logger = slog.Default()
	}

	var out []backend.Backend
	for _, k := range kinds {
		var b backend.Backend
		switch k {
		case backend.NativeExclusive:
			b = native(logger, realTime)
		case backend.NativeShared, backend.BrowserGraph:
			if o := oto.New(logger, realTime); o.Kind() == k {
				b = o
			}
		case backend.Virtual:
			var opts []virtual.Option
			if realTime {
				opts = append(opts, virtual.WithRealTime())
			}
			b = virtual.New(opts...)
		}

		if b == nil {
			logger.Debug("backend not built for this platform", "backend", k)
			continue
		}
		out = append(out, b)
	}
	return out
}
