package sim

import (
	"encoding/binary"
	"errors"

	"github.com/pion/rtp"

	"github.com/sebas/ccc/internal/callcore"
)

var errShortHangupPayload = errors.New("rtp hangup payload too short")

// rtpDataPayloadType is a dynamic payload type reserved for the in-band
// data-channel hangup signal (RFC 3551 leaves 96-127 for dynamic
// assignment), grounded on the RTP packet construction in
// internal/rtpmanager/media's stream writer.
const rtpDataPayloadType = 101

// EncodeHangupRTP packs a Hangup into a single RTP packet's payload the way
// a Media Backend would send it in-band to a remote device: one byte for
// the HangupType, one byte set to 1 when HasDevice is true, then four bytes
// big-endian for the device id (written as-is; a decoder ignores it when
// the HasDevice byte is 0).
func EncodeHangupRTP(h callcore.Hangup, seq uint16) ([]byte, error) {
	payload := make([]byte, 6)
	payload[0] = byte(h.Type)
	if h.HasDevice {
		payload[1] = 1
	}
	binary.BigEndian.PutUint32(payload[2:], uint32(h.DeviceId))

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    rtpDataPayloadType,
			SequenceNumber: seq,
			Marker:         true,
		},
		Payload: payload,
	}
	return pkt.Marshal()
}

// DecodeHangupRTP reverses EncodeHangupRTP, for test assertions and for a
// receiving Media Backend's data-channel handler.
func DecodeHangupRTP(data []byte) (callcore.Hangup, error) {
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(data); err != nil {
		return callcore.Hangup{}, err
	}
	if len(pkt.Payload) < 6 {
		return callcore.Hangup{}, errShortHangupPayload
	}
	return callcore.Hangup{
		Type:      callcore.HangupType(pkt.Payload[0]),
		HasDevice: pkt.Payload[1] == 1,
		DeviceId:  callcore.DeviceId(binary.BigEndian.Uint32(pkt.Payload[2:])),
	}, nil
}
