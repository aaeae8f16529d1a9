package sim

import (
	"math"

	"github.com/zaf/g711"
)

// syntheticUlawSample is a fixed µ-law buffer standing in for a real audio
// frame; MediaBackend's periodic AudioLevels generator decodes it through
// RMSAudioLevel instead of sampling real outgoing/incoming audio.
func syntheticUlawSample() []byte {
	const samples = 160 // 20ms at 8kHz, the G.711 frame size the sibling RTP manager uses
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(10000 * math.Sin(2*math.Pi*440*float64(i)/8000))
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return g711.EncodeUlaw(pcm)
}

// RMSAudioLevel decodes a G.711 µ-law buffer the way a real Media Backend
// would sample outgoing/incoming audio, and returns its RMS level scaled to
// the [0, 1] CapturedLevel/ReceivedLevel range used by
// ConnectionObserverEvent (§6), grounded on the PCM/µ-law conversion used by
// the sibling RTP manager's audio pipeline.
func RMSAudioLevel(ulaw []byte) float32 {
	if len(ulaw) == 0 {
		return 0
	}
	pcm := g711.DecodeUlaw(ulaw)

	var sumSquares float64
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	for i := 0; i < samples; i++ {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		f := float64(sample) / float64(math.MaxInt16)
		sumSquares += f * f
	}
	rms := math.Sqrt(sumSquares / float64(samples))
	if rms > 1 {
		rms = 1
	}
	return float32(rms)
}
