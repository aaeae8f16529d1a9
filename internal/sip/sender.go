// Package sip implements a SignalingSender backed by SIP MESSAGE requests,
// for deployments where the remote peer's devices are reachable as SIP
// endpoints rather than through a push-notification relay.
package sip

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/sebas/ccc/internal/callcore"
)

// deviceKey addresses one remote device within one call.
type deviceKey struct {
	call   callcore.CallId
	device callcore.DeviceId
}

// Sender delivers opaque signaling payloads as SIP MESSAGE bodies. It
// satisfies callcore.SignalingSender.
type Sender struct {
	client        *sipgo.Client
	advertiseAddr string
	port          int

	mu       sync.RWMutex
	contacts map[deviceKey]string // deviceKey -> target SIP URI
}

// NewSender builds a Sender around an already-connected sipgo.Client. Client
// lifecycle (the underlying UserAgent and transport listeners) is the
// caller's responsibility.
func NewSender(client *sipgo.Client, advertiseAddr string, port int) *Sender {
	return &Sender{
		client:        client,
		advertiseAddr: advertiseAddr,
		port:          port,
		contacts:      make(map[deviceKey]string),
	}
}

// RegisterDevice records the SIP URI a device is reachable at for the
// duration of a call. The REGISTER-handling side of a full deployment
// (internal/signaling/registration in the sibling switchboard, not carried
// here) is responsible for keeping this current.
func (s *Sender) RegisterDevice(call callcore.CallId, device callcore.DeviceId, targetURI string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[deviceKey{call, device}] = targetURI
}

// UnregisterCall drops every device mapping for call, normally done once
// the call has terminated.
func (s *Sender) UnregisterCall(call callcore.CallId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.contacts {
		if k.call == call {
			delete(s.contacts, k)
		}
	}
}

func (s *Sender) devicesFor(call callcore.CallId) map[callcore.DeviceId]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[callcore.DeviceId]string)
	for k, uri := range s.contacts {
		if k.call == call {
			out[k.device] = uri
		}
	}
	return out
}

// wireHangup is the JSON body carried inside the MESSAGE request. The CCC
// itself treats hangups it sends as opaque; this shape is private to the
// sending and receiving ends of this transport.
type wireHangup struct {
	Type      callcore.HangupType `json:"type"`
	DeviceId  callcore.DeviceId   `json:"device_id,omitempty"`
	HasDevice bool                `json:"has_device,omitempty"`
}

func encodeHangup(h callcore.Hangup) ([]byte, error) {
	return json.Marshal(wireHangup{Type: h.Type, DeviceId: h.DeviceId, HasDevice: h.HasDevice})
}

var _ callcore.SignalingSender = (*Sender)(nil)

// SendHangupViaSignalingToAll implements callcore.SignalingSender.
func (s *Sender) SendHangupViaSignalingToAll(ctx context.Context, call callcore.CallId, h callcore.Hangup) error {
	return s.sendToDevices(ctx, call, h, 0, false)
}

// SendHangupViaSignalingToAllExcept implements callcore.SignalingSender.
func (s *Sender) SendHangupViaSignalingToAllExcept(ctx context.Context, call callcore.CallId, h callcore.Hangup, except callcore.DeviceId) error {
	return s.sendToDevices(ctx, call, h, except, true)
}

func (s *Sender) sendToDevices(ctx context.Context, call callcore.CallId, h callcore.Hangup, except callcore.DeviceId, hasExcept bool) error {
	body, err := encodeHangup(h)
	if err != nil {
		return fmt.Errorf("encode hangup: %w", err)
	}

	var firstErr error
	for device, target := range s.devicesFor(call) {
		if hasExcept && device == except {
			continue
		}
		if err := s.sendMessage(ctx, target, body); err != nil {
			slog.Error("failed to deliver hangup via SIP MESSAGE", "call_id", call, "device", device, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// sendMessage constructs and transacts a single SIP MESSAGE request
// carrying body, grounded on the INVITE-building pattern used to originate
// calls in the sibling switchboard's b2bua package.
func (s *Sender) sendMessage(ctx context.Context, targetURI string, body []byte) error {
	var recipient sip.Uri
	if err := sip.ParseUri(targetURI, &recipient); err != nil {
		return fmt.Errorf("invalid target URI %q: %w", targetURI, err)
	}

	req := sip.NewRequest(sip.MESSAGE, recipient)

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	fromURI := sip.Uri{Scheme: "sip", User: "ccc", Host: s.advertiseAddr, Port: s.port}
	fromParams := sip.NewParams()
	fromParams.Add("tag", fmt.Sprintf("ccc-%d", time.Now().UnixNano()))
	req.AppendHeader(&sip.FromHeader{Address: fromURI, Params: fromParams})
	req.AppendHeader(&sip.ToHeader{Address: recipient, Params: sip.NewParams()})

	callID := sip.CallIDHeader(fmt.Sprintf("ccc-signaling-%d", time.Now().UnixNano()))
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.MESSAGE})

	contentType := sip.ContentTypeHeader("application/json")
	req.AppendHeader(&contentType)
	req.SetBody(body)

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.client.TransactionRequest(dialCtx, req)
	if err != nil {
		return fmt.Errorf("transaction request: %w", err)
	}
	defer tx.Terminate()

	select {
	case res := <-tx.Responses():
		if res.StatusCode >= 300 {
			return fmt.Errorf("MESSAGE rejected: %d %s", res.StatusCode, res.Reason)
		}
		return nil
	case <-dialCtx.Done():
		return dialCtx.Err()
	}
}
