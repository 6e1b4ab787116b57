package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bitReader is a minimal Exp-Golomb reader used only by tests to decode
// the SPS this package emits, checking testable property 8.
type bitReader struct {
	data []byte
	pos  uint // bit position
}

func (r *bitReader) bit() uint32 {
	byteIdx := r.pos / 8
	bitIdx := 7 - r.pos%8
	r.pos++
	if int(byteIdx) >= len(r.data) {
		return 0
	}
	return uint32(r.data[byteIdx]>>bitIdx) & 1
}

func (r *bitReader) u(n uint) uint32 {
	var v uint32
	for i := uint(0); i < n; i++ {
		v = v<<1 | r.bit()
	}
	return v
}

func (r *bitReader) ue() uint32 {
	leadingZeros := 0
	for r.bit() == 0 {
		leadingZeros++
		if leadingZeros > 32 {
			return 0
		}
	}
	v := uint32(1)
	for i := 0; i < leadingZeros; i++ {
		v = v<<1 | r.bit()
	}
	return v - 1
}

// extractRBSP strips the Annex-B start code, the NAL header byte, and any
// emulation-prevention bytes, returning the raw parameter-set bits.
func extractRBSP(nal []byte) []byte {
	body := nal[len(startCode)+1:]
	out := make([]byte, 0, len(body))
	zeros := 0
	for i := 0; i < len(body); i++ {
		if zeros >= 2 && body[i] == 0x03 {
			zeros = 0
			continue
		}
		out = append(out, body[i])
		if body[i] == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

func TestSPSDecodesToSpecValues(t *testing.T) {
	sps := buildSPS(1920, 1088) // 1088 = 1080 aligned to 16
	assert.Equal(t, byte(0x67), sps[len(startCode)])

	r := &bitReader{data: extractRBSP(sps)}
	profileIDC := r.u(8)
	c0 := r.u(1)
	c1 := r.u(1)
	c2 := r.u(1)
	c3 := r.u(1)
	c4 := r.u(1)
	c5 := r.u(1)
	r.u(2) // reserved
	levelIDC := r.u(8)

	assert.Equal(t, uint32(66), profileIDC)
	assert.Equal(t, uint32(1), c0)
	assert.Equal(t, uint32(1), c1)
	assert.Equal(t, uint32(0), c2)
	assert.Equal(t, uint32(0), c3)
	assert.Equal(t, uint32(0), c4)
	assert.Equal(t, uint32(0), c5)
	assert.Equal(t, uint32(52), levelIDC)

	r.ue() // seq_parameter_set_id
	r.ue() // log2_max_frame_num_minus4
	pocType := r.ue()
	assert.Equal(t, uint32(0), pocType)
	r.ue() // log2_max_pic_order_cnt_lsb_minus4
	maxRefFrames := r.ue()
	assert.Equal(t, uint32(1), maxRefFrames) // a single reference frame
	r.u(1)                                   // gaps_in_frame_num_value_allowed_flag
	r.ue()                                   // pic_width_in_mbs_minus1
	r.ue()                                   // pic_height_in_map_units_minus1
	frameMbsOnly := r.u(1)
	direct8x8 := r.u(1)
	assert.Equal(t, uint32(1), frameMbsOnly)
	assert.Equal(t, uint32(1), direct8x8)
	croppingFlag := r.u(1)
	assert.Equal(t, uint32(0), croppingFlag)

	vuiPresent := r.u(1)
	require.Equal(t, uint32(1), vuiPresent)

	r.u(1) // aspect_ratio_info_present_flag
	r.u(1) // overscan_info_present_flag
	videoSignalPresent := r.u(1)
	require.Equal(t, uint32(1), videoSignalPresent)
	r.u(3)               // video_format
	fullRange := r.u(1)
	colourDescPresent := r.u(1)
	require.Equal(t, uint32(1), colourDescPresent)
	primaries := r.u(8)
	transfer := r.u(8)
	matrix := r.u(8)

	assert.Equal(t, uint32(1), fullRange)
	assert.Equal(t, uint32(1), primaries)
	assert.Equal(t, uint32(1), transfer)
	assert.Equal(t, uint32(1), matrix)

	r.u(1) // chroma_loc_info_present_flag
	r.u(1) // timing_info_present_flag
	r.u(1) // nal_hrd_parameters_present_flag
	r.u(1) // vcl_hrd_parameters_present_flag
	r.u(1) // pic_struct_present_flag

	bitstreamRestriction := r.u(1)
	require.Equal(t, uint32(1), bitstreamRestriction)
	r.u(1) // motion_vectors_over_pic_boundaries_flag
	r.ue() // max_bytes_per_pic_denom
	r.ue() // max_bits_per_mb_denom
	r.ue() // log2_max_mv_length_horizontal
	r.ue() // log2_max_mv_length_vertical
	maxReorder := r.ue()
	maxDecBuffering := r.ue()

	assert.Equal(t, uint32(0), maxReorder)
	assert.Equal(t, uint32(1), maxDecBuffering)
}

func TestKeyframePrefixesSPSAndPPS(t *testing.T) {
	enc, err := NewEncoder(64, 64, 0, NewStubSliceCodec())
	require.NoError(t, err)

	frame := make([]byte, 64*64*4)
	out, err := enc.Encode(frame, 64, 64, false, true)
	require.NoError(t, err)

	assert.Equal(t, []byte{0, 0, 0, 1, 0x67}, out[:5])

	afterSPS := skipNAL(out, 0)
	assert.Equal(t, []byte{0, 0, 0, 1, 0x68}, out[afterSPS:afterSPS+5])

	afterPPS := skipNAL(out, afterSPS)
	assert.Equal(t, []byte{0, 0, 0, 1, 0x65}, out[afterPPS:afterPPS+5])

	assert.Equal(t, uint64(0), enc.FrameCounter())

	next, err := enc.Encode(frame, 64, 64, false, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 1, 0x41}, next[:5])
	assert.Equal(t, uint64(1), enc.FrameCounter())
}

// skipNAL finds the next Annex-B start code after offset start, used to
// walk across SPS -> PPS -> slice in a single Encode() output buffer.
func skipNAL(buf []byte, start int) int {
	for i := start + 4; i+3 < len(buf); i++ {
		if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 0 && buf[i+3] == 1 {
			return i
		}
	}
	return len(buf)
}

func TestAlignedDimsRespectsBudgetAndCap(t *testing.T) {
	w, h := alignedDims(3840, 2160, 1024*768)
	assert.True(t, w <= maxAxisPixels && h <= maxAxisPixels)
	assert.Equal(t, 0, w%16)
	assert.Equal(t, 0, h%16)
	assert.True(t, w*h <= 1024*768*2) // alignment rounding can push slightly over budget

	w2, h2 := alignedDims(8000, 8000, 0)
	assert.Equal(t, maxAxisPixels, w2)
	assert.Equal(t, maxAxisPixels, h2)
}

func TestResizeForcesKeyframe(t *testing.T) {
	enc, err := NewEncoder(64, 64, 0, NewStubSliceCodec())
	require.NoError(t, err)
	frame := make([]byte, 64*64*4)
	_, err = enc.Encode(frame, 64, 64, false, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), enc.FrameCounter())

	bigFrame := make([]byte, 128*64*4)
	out, err := enc.Encode(bigFrame, 128, 64, false, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 1, 0x67}, out[:5])
}
