package video

// NAL unit types used by this encoder.
const (
	nalUnitTypeSlice    = 1 // non-IDR coded slice
	nalUnitTypeIDR      = 5 // IDR coded slice
	nalUnitTypeSPS      = 7
	nalUnitTypePPS      = 8
)

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// toEBSP inserts emulation-prevention bytes (0x03) wherever the RBSP
// contains a 0x00 0x00 0x0{0,1,2,3} run, per the standard's
// emulation_prevention_three_byte rule: any start-code-like run inside the
// payload must not be allowed to masquerade as a NAL boundary.
func toEBSP(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+len(rbsp)/3+1)
	zeros := 0
	for _, b := range rbsp {
		if zeros >= 2 && b <= 3 {
			out = append(out, 0x03)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

// nalUnit wraps an RBSP payload in a NAL header byte and Annex-B start code.
// refIdc is nal_ref_idc (0-3): 0 means the picture is never referenced.
func nalUnit(refIdc uint8, unitType uint8, rbsp []byte) []byte {
	header := (refIdc&0x03)<<5 | (unitType & 0x1F)
	out := make([]byte, 0, len(startCode)+1+len(rbsp)+len(rbsp)/3)
	out = append(out, startCode...)
	out = append(out, header)
	out = append(out, toEBSP(rbsp)...)
	return out
}
