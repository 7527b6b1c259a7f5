// SPDX-License-Identifier: EPL-2.0

//go:build !js

package oto

import "github.com/ik5/audengine/backend"

const (
	platformKind       = backend.NativeShared
	platformDeviceName = "System Mixer"
	platformAvailable  = true
)
