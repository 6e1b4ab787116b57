package video

import (
	"fmt"
	"sync"
)

// keyframeInterval is the default frame-counter period forcing a
// keyframe, per spec.md §4.6.
const keyframeInterval = 600

// maxAxisPixels is the hardware cap per axis spec.md §4.6 names.
const maxAxisPixels = 4096

// Encoder tracks one live H.264 stream: its current encode dimensions, the
// cached SPS/PPS, the running frame counter, and the reference/source
// surfaces needed to keep P-frames referencing the previous output. It is
// single-threaded per instance, matching spec.md §5: "Video Encoder is
// single-threaded per instance."
type Encoder struct {
	mu sync.Mutex

	codec SliceCodec

	width, height       int // encode (aligned) dimensions
	srcWidth, srcHeight int // last-seen source dimensions

	pixelBudget int

	frameCounter  uint64 // H.264 frame_num: resets to 0 on every IDR
	totalFrames   uint64 // monotonic count, drives the keyframe-interval check
	forceKeyframe bool

	sps []byte
	pps []byte

	reference []byte // previous frame's NV12, kept for encoder-side continuity bookkeeping
}

// NewEncoder constructs an Encoder for an initial source size and pixel
// budget, using codec as its slice-encoding capability. Pass
// NewStubSliceCodec() in tests; production callers use the default
// software codec.
func NewEncoder(srcWidth, srcHeight, pixelBudget int, codec SliceCodec) (*Encoder, error) {
	if codec == nil {
		codec = newSoftwareSliceCodec()
	}
	e := &Encoder{codec: codec, pixelBudget: pixelBudget}
	if err := e.resizeLocked(srcWidth, srcHeight); err != nil {
		return nil, err
	}
	return e, nil
}

// alignedDims computes the 16-aligned encode surface for a source size
// under a pixel budget, per spec.md §4.6: downscale by a scalar factor of
// sqrt(budget/pixels) when the source exceeds budget, cap each axis at
// maxAxisPixels, and round each axis up to the next 16-pixel multiple.
func alignedDims(srcW, srcH, budget int) (w, h int) {
	w, h = srcW, srcH
	if budget > 0 && srcW*srcH > budget {
		factor := sqrtFloat(float64(budget) / float64(srcW*srcH))
		w = int(float64(srcW) * factor)
		h = int(float64(srcH) * factor)
		if w < 16 {
			w = 16
		}
		if h < 16 {
			h = 16
		}
	}
	w = align16(w)
	h = align16(h)
	if w > maxAxisPixels {
		w = maxAxisPixels
	}
	if h > maxAxisPixels {
		h = maxAxisPixels
	}
	return w, h
}

func align16(v int) int {
	return (v + 15) / 16 * 16
}

// sqrtFloat avoids importing math solely for Sqrt; Newton's method
// converges to full float64 precision in a handful of iterations for any
// positive finite input, which is all alignedDims ever passes it.
func sqrtFloat(v float64) float64 {
	if v <= 0 {
		return 0
	}
	x := v
	for i := 0; i < 20; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}

// Resize reconfigures the encoder for a new source size, regenerating
// SPS/PPS and forcing a keyframe on the next Encode call, per spec.md
// §4.6 step 1.
func (e *Encoder) Resize(srcWidth, srcHeight int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resizeLocked(srcWidth, srcHeight)
}

func (e *Encoder) resizeLocked(srcWidth, srcHeight int) error {
	w, h := alignedDims(srcWidth, srcHeight, e.pixelBudget)
	e.width, e.height = w, h
	e.srcWidth, e.srcHeight = srcWidth, srcHeight
	e.sps = buildSPS(w, h)
	e.pps = buildPPS()
	e.forceKeyframe = true
	e.reference = nil
	return nil
}

// SetPixelBudget reconfigures the tier pixel budget. If the new budget
// changes the aligned encode dimensions, this is equivalent to a resize:
// surfaces are recreated and SPS/PPS regenerated, per spec.md's open
// question resolution that an external supervisor drives this call.
func (e *Encoder) SetPixelBudget(budget int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pixelBudget = budget
	w, h := alignedDims(e.srcWidth, e.srcHeight, budget)
	if w == e.width && h == e.height {
		return nil
	}
	return e.resizeLocked(e.srcWidth, e.srcHeight)
}

// TierMaxPixels reports the current pixel budget, letting an external
// supervisor divide it across concurrently active encoders.
func (e *Encoder) TierMaxPixels() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pixelBudget
}

// Encode converts one RGBA/BGRA framebuffer of the given source
// dimensions into Annex-B framed H.264, per the spec.md §4.6 per-frame
// pipeline. A resize is triggered automatically when srcWidth/srcHeight
// differ from the encoder's current source dimensions.
func (e *Encoder) Encode(frame []byte, srcWidth, srcHeight int, bgra bool, forceKeyframe bool) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if srcWidth != e.srcWidth || srcHeight != e.srcHeight {
		if err := e.resizeLocked(srcWidth, srcHeight); err != nil {
			return nil, fmt.Errorf("video: resize on dimension change: %w", err)
		}
	}

	idr := forceKeyframe || e.forceKeyframe || e.totalFrames%keyframeInterval == 0
	e.forceKeyframe = false
	e.totalFrames++

	nv12 := convertAndDownscaleToNV12(frame, srcWidth, srcHeight, bgra, e.width, e.height)

	sliceRBSP, err := e.codec.EncodeSlice(nv12, e.width, e.height, idr)
	if err != nil {
		return nil, fmt.Errorf("video: encode slice: %w", err)
	}

	var out []byte
	if idr {
		out = append(out, e.sps...)
		out = append(out, e.pps...)
		out = append(out, nalUnit(3, nalUnitTypeIDR, sliceRBSP)...)
		e.frameCounter = 0
	} else {
		out = append(out, nalUnit(2, nalUnitTypeSlice, sliceRBSP)...)
		e.frameCounter++
	}

	e.reference = nv12
	return out, nil
}

// FrameCounter reports the encoder's current frame_num, reset to zero on
// every keyframe per spec.md §4.6.
func (e *Encoder) FrameCounter() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameCounter
}

// Dimensions reports the current aligned encode surface size.
func (e *Encoder) Dimensions() (width, height int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.width, e.height
}
