package video

// buildSPS assembles the sequence parameter set RBSP for a width x height
// (already 16-aligned) encode surface, per spec.md §4.6: Constrained
// Baseline profile, level 5.2, a single reference frame, no B-frame
// reordering, and a VUI block that pins the decoder to single-frame
// buffering in BT.709 full range.
func buildSPS(width, height int) []byte {
	w := newBitWriter()

	w.u(66, 8) // profile_idc: Constrained Baseline
	w.writeBit(1) // constraint_set0_flag
	w.writeBit(1) // constraint_set1_flag
	w.writeBit(0) // constraint_set2_flag
	w.writeBit(0) // constraint_set3_flag
	w.writeBit(0) // constraint_set4_flag
	w.writeBit(0) // constraint_set5_flag
	w.u(0, 2)     // reserved_zero_2bits
	w.u(52, 8)    // level_idc: 5.2

	w.ue(0) // seq_parameter_set_id

	w.ue(0) // log2_max_frame_num_minus4
	w.ue(0) // pic_order_cnt_type
	w.ue(0) // log2_max_pic_order_cnt_lsb_minus4

	w.ue(1) // max_num_ref_frames: 1
	w.writeBit(0) // gaps_in_frame_num_value_allowed_flag

	w.ue(uint32(width/16 - 1))
	w.ue(uint32(height/16 - 1))

	w.writeBit(1) // frame_mbs_only_flag: progressive only
	w.writeBit(1) // direct_8x8_inference_flag
	w.writeBit(0) // frame_cropping_flag: caller keeps dims 16-aligned

	w.writeBit(1) // vui_parameters_present_flag
	writeVUI(w)

	w.rbspTrailingBits()
	return nalUnit(3, nalUnitTypeSPS, w.bytes())
}

// writeVUI emits the subset of VUI fields spec.md §4.6 requires: BT.709
// colorimetry with full-range samples, and a bitstream_restriction block
// that declares zero reorder frames and a single decoded-picture buffer
// slot. A decoder that honors this VUI emits every frame immediately.
func writeVUI(w *bitWriter) {
	w.writeBit(0) // aspect_ratio_info_present_flag
	w.writeBit(0) // overscan_info_present_flag

	w.writeBit(1) // video_signal_type_present_flag
	w.u(5, 3)     // video_format: unspecified
	w.writeBit(1) // video_full_range_flag
	w.writeBit(1) // colour_description_present_flag
	w.u(1, 8)     // colour_primaries: BT.709
	w.u(1, 8)     // transfer_characteristics: BT.709
	w.u(1, 8)     // matrix_coefficients: BT.709

	w.writeBit(0) // chroma_loc_info_present_flag
	w.writeBit(0) // timing_info_present_flag

	w.writeBit(0) // nal_hrd_parameters_present_flag
	w.writeBit(0) // vcl_hrd_parameters_present_flag
	w.writeBit(0) // pic_struct_present_flag

	w.writeBit(1) // bitstream_restriction_flag
	w.writeBit(1) // motion_vectors_over_pic_boundaries_flag
	w.ue(0)       // max_bytes_per_pic_denom
	w.ue(0)       // max_bits_per_mb_denom
	w.ue(16)      // log2_max_mv_length_horizontal
	w.ue(16)      // log2_max_mv_length_vertical
	w.ue(0)       // max_num_reorder_frames
	w.ue(1)       // max_dec_frame_buffering
}
