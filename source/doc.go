// SPDX-License-Identifier: EPL-2.0

// Package source holds the sample producers the router pulls from.
//
// Every producer implements the pull contract
//
//	Fill(out []float32, frames int) (written int, finished bool)
//
// writing interleaved frames into out and zeroing whatever it could not
// produce. Producers are stateful: consecutive calls continue exactly where
// the previous one stopped. Fill is only ever called by the router's
// producer goroutine; the exported setters are safe from any goroutine.
package source
