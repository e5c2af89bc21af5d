package webrtcbridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/livepeer/pipectl/internal/obslog"
)

// Session is one viewer's peer connection + outbound video track,
// grounded on richinsley-bunghole's session.Session: codec
// registration, NewTrackLocalStaticSample, and connection-state-driven
// teardown, adapted from a desktop-capture sender (with audio + input
// data channels) to a composite-frame inference viewer (video only).
type Session struct {
	PipelineID string
	ViewerID   string

	pc         *webrtc.PeerConnection
	videoTrack *webrtc.TrackLocalStaticSample

	stop   chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewSession creates a peer connection with one H264 video track and
// answers the given SDP offer, OFFER command.
func NewSession(pipelineID, viewerID string, turnServers []webrtc.ICEServer, offerSDP string) (*Session, string, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, "", fmt.Errorf("webrtcbridge: register video codec: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(me))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: turnServers})
	if err != nil {
		return nil, "", fmt.Errorf("webrtcbridge: new peer connection: %w", err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		"video", "pipectl-"+pipelineID,
	)
	if err != nil {
		pc.Close()
		return nil, "", fmt.Errorf("webrtcbridge: new video track: %w", err)
	}
	if _, err := pc.AddTrack(videoTrack); err != nil {
		pc.Close()
		return nil, "", fmt.Errorf("webrtcbridge: add video track: %w", err)
	}

	sess := &Session{
		PipelineID: pipelineID,
		ViewerID:   viewerID,
		pc:         pc,
		videoTrack: videoTrack,
		stop:       make(chan struct{}),
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		obslog.Log(pipelineID, "webrtc connection state change", "viewer_id", viewerID, "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			sess.Close()
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		pc.Close()
		return nil, "", fmt.Errorf("webrtcbridge: set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, "", fmt.Errorf("webrtcbridge: create answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, "", fmt.Errorf("webrtcbridge: set local description: %w", err)
	}
	<-gatherComplete

	return sess, pc.LocalDescription().SDP, nil
}

// WriteSample pushes one composite frame to the viewer's video track.
func (s *Session) WriteSample(data []byte, dur time.Duration) error {
	return s.videoTrack.WriteSample(media.Sample{Data: data, Duration: dur})
}

// StopEvent returns the channel closed by Close, so the frame-merger
// loop can detect shutdown and exit promptly — 
// "signalled via stop_event" requirement.
func (s *Session) StopEvent() <-chan struct{} {
	return s.stop
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.stop)
	s.pc.Close()
	obslog.Log(s.PipelineID, "webrtc session closed", "viewer_id", s.ViewerID)
}

func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
