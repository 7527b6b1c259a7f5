// SPDX-License-Identifier: EPL-2.0

//go:build !js

package auto

import (
	"log/slog"

	"github.com/ik5/audengine/backend"
	"github.com/ik5/audengine/backend/portaudio"
)

func native(logger *slog.Logger, realTime bool) backend.Backend {
	return portaudio.New(logger, realTime)
}
