package discord

import (
	"fmt"

	"layeh.com/gopus"
)

// Discord voice carries 48 kHz stereo Opus in 20 ms frames.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20

	// opusFrameSize is the number of samples per channel in one frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960

	// pcmFrameBytes is one frame of s16le interleaved PCM.
	pcmFrameBytes = opusFrameSize * opusChannels * 2 // 3840

	// maxOpusPacket bounds the encoder output per frame.
	maxOpusPacket = 4000
)

// opusEncoder turns PCM frames into Opus packets. It is not safe for
// concurrent use; each sink owns one.
type opusEncoder struct {
	enc *gopus.Encoder
	pcm []int16
}

func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus encoder: %w", err)
	}
	// Music, not speech: let the encoder use the full voice channel budget.
	enc.SetBitrate(128000)
	return &opusEncoder{enc: enc, pcm: make([]int16, opusFrameSize*opusChannels)}, nil
}

// encode encodes exactly one frame of little-endian s16 PCM.
func (e *opusEncoder) encode(frame []byte) ([]byte, error) {
	if len(frame) != pcmFrameBytes {
		return nil, fmt.Errorf("discord: opus encode: frame is %d bytes, want %d", len(frame), pcmFrameBytes)
	}
	decodeS16LE(e.pcm, frame)
	pkt, err := e.enc.Encode(e.pcm, opusFrameSize, maxOpusPacket)
	if err != nil {
		return nil, fmt.Errorf("discord: opus encode: %w", err)
	}
	return pkt, nil
}

// decodeS16LE fills dst with samples from little-endian bytes.
func decodeS16LE(dst []int16, b []byte) {
	for i := range dst {
		dst[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
}
