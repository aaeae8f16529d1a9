package sim

import (
	"fmt"

	"github.com/pion/sdp/v3"

	"github.com/sebas/ccc/internal/callcore"
)

// BuildOfferSDP renders a throwaway SDP session description standing in
// for the real offer a Media Backend would generate for cfg, grounded on
// the response-SDP builder used by the sibling RTP manager service. The
// opaque CallConfig payload is carried as a session attribute rather than
// interpreted.
func BuildOfferSDP(call callcore.CallId, addr string, port int, cfg callcore.CallConfig) ([]byte, error) {
	session := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "ccc-sim",
			SessionID:      uint64(call),
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: addr,
		},
		SessionName: "CCC simulated session",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: addr},
		},
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{StartTime: 0, StopTime: 0}}},
		Attributes: []sdp.Attribute{
			{Key: "x-ccc-config-len", Value: fmt.Sprintf("%d", len(cfg.Opaque))},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: port},
					Protos:  []string{"UDP", "TLS", "RTP", "SAVPF"},
					Formats: []string{"111"},
				},
				Attributes: []sdp.Attribute{
					{Key: "rtpmap", Value: "111 opus/48000/2"},
					{Key: "sendrecv"},
				},
			},
		},
	}
	return session.Marshal()
}
