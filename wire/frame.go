package wire

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/fxamacker/cbor/v2"
)

// Sentinel delimits frames on the wire (SLIP-style).
const Sentinel byte = 0xC0

// framePayload is the structured form carried inside a frame.
type framePayload struct {
	T string    `cbor:"t"`
	D FrameData `cbor:"d"`
}

type FrameData struct {
	RequestID string `cbor:"request_id"`
	Arg       string `cbor:"arg,omitempty"`
	ErrCode   string `cbor:"err,omitempty"`
}

// EncodeFrame wraps a CBOR payload as SENTINEL + payload + crc32(payload)
// big-endian + SENTINEL.
func EncodeFrame(tag string, d FrameData) ([]byte, error) {
	payload, err := cbor.Marshal(framePayload{T: tag, D: d})
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(payload)+6)
	buf = append(buf, Sentinel)
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint32(buf, crc32.ChecksumIEEE(payload))
	buf = append(buf, Sentinel)
	return buf, nil
}

// EncodeCommandFrame is the framed equivalent of EncodeCommand.
func EncodeCommandFrame(c Command) ([]byte, error) {
	return EncodeFrame(c.Verb, FrameData{RequestID: c.RequestID, Arg: c.Arg})
}

// DecodeReplyFrames splits buf on the sentinel and returns every frame whose
// checksum and payload decode cleanly. Corrupt or truncated frames are
// dropped silently; there is no resync beyond the sentinel search, which is
// a known limitation of this framing.
func DecodeReplyFrames(buf []byte) []Reply {
	var out []Reply
	parts := bytes.Split(buf, []byte{Sentinel})
	for i := 1; i < len(parts)-1; i++ {
		body := parts[i]
		if len(body) < 5 {
			continue
		}
		payload, trailer := body[:len(body)-4], body[len(body)-4:]
		if crc32.ChecksumIEEE(payload) != binary.BigEndian.Uint32(trailer) {
			continue
		}
		var fp framePayload
		if err := cbor.Unmarshal(payload, &fp); err != nil {
			continue
		}
		if fp.T == "" || fp.D.RequestID == "" {
			continue
		}
		out = append(out, Reply{Tag: fp.T, RequestID: fp.D.RequestID, ErrCode: fp.D.ErrCode})
	}
	return out
}
