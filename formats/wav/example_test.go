// SPDX-License-Identifier: EPL-2.0

package wav_test

import (
	"bytes"
	"fmt"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/formats/wav"
)

func ExampleWriteFloat32() {
	pcm := &audio.PCM{
		Samples:    []float32{0, 0.5, -0.5, 1},
		SampleRate: 48000,
		Channels:   2,
	}

	var buf bytes.Buffer
	if err := wav.WriteFloat32(&buf, pcm); err != nil {
		fmt.Println(err)
		return
	}

	back, err := wav.ReadPCM(&buf)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(back.Frames(), back.Samples)
	// Output: 2 [0 0.5 -0.5 1]
}
