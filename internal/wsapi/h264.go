package wsapi

import (
	"context"
	"encoding/binary"

	"github.com/gorilla/websocket"

	"github.com/termweb-dev/termweb-core/internal/authstore"
	"github.com/termweb-dev/termweb-core/internal/logger"
	"github.com/termweb-dev/termweb-core/internal/video"
)

// frameFlagBGRA and frameFlagKeyframe are this implementation's choice for
// the per-frame header the external framebuffer producer must send over
// /ws/h264, since spec.md §4.6 specifies the encoder's contract (RGBA/BGRA
// plus explicit source dimensions) but not how those arrive framed on a
// socket. See DESIGN.md.
const (
	frameFlagBGRA      uint8 = 1 << 0
	frameFlagKeyframe  uint8 = 1 << 1
)

// frameHeaderSize is `[width:u32][height:u32][flags:u8]` preceding the raw
// pixel bytes in every /ws/h264 inbound message.
const frameHeaderSize = 4 + 4 + 1

// NewH264Handler returns the /ws/h264 WebSocketHandler. It decodes one
// raw framebuffer per inbound binary message, drives it through the
// session's Video Encoder, and writes the resulting Annex-B bitstream
// back as a single outbound binary message. The framebuffer producer
// itself (capture, terminal rendering) is an external collaborator this
// package never starts, per spec.md §1.
func NewH264Handler(sessions *VideoSessions) func(ctx context.Context, conn *websocket.Conn, verdict authstore.Verdict) {
	return func(ctx context.Context, conn *websocket.Conn, verdict authstore.Verdict) {
		defer conn.Close()
		log := logger.Encoder()

		vs := sessions.get(verdict.SessionID)
		defer sessions.Drop(verdict.SessionID)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if len(msg) < frameHeaderSize {
				continue
			}

			width := int(binary.LittleEndian.Uint32(msg[0:4]))
			height := int(binary.LittleEndian.Uint32(msg[4:8]))
			flags := msg[8]
			pixels := msg[frameHeaderSize:]

			nal, err := h264Encode(vs, width, height, flags, pixels)
			if err != nil {
				log.Warn().Err(err).Msg("frame encode failed")
				continue
			}

			vs.controller.NotifyFrameEncoded()

			if err := conn.WriteMessage(websocket.BinaryMessage, nal); err != nil {
				return
			}
		}
	}
}

func h264Encode(vs *videoSession, width, height int, flags uint8, pixels []byte) ([]byte, error) {
	vs.mu.Lock()
	if vs.encoder == nil {
		tier := vs.controller.CurrentTier()
		enc, err := video.NewEncoder(width, height, tier.PixelBudget, nil)
		if err != nil {
			vs.mu.Unlock()
			return nil, err
		}
		vs.encoder = enc
	}
	enc := vs.encoder
	vs.mu.Unlock()

	bgra := flags&frameFlagBGRA != 0
	forceKeyframe := flags&frameFlagKeyframe != 0
	return enc.Encode(pixels, width, height, bgra, forceKeyframe)
}
