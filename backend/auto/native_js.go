// SPDX-License-Identifier: EPL-2.0

//go:build js

package auto

import (
	"log/slog"

	"github.com/ik5/audengine/backend"
)

// PortAudio needs cgo, which js/wasm does not have.
func native(*slog.Logger, bool) backend.Backend { return nil }
