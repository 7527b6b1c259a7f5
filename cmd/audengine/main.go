// SPDX-License-Identifier: EPL-2.0

// Command audengine drives the engine from a terminal: list devices, play
// test signals and files, record from an input and convert files.
package main

func main() {
	Execute()
}
