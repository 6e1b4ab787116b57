package video

// buildPPS assembles the picture parameter set RBSP, per spec.md §4.6:
// CAVLC entropy coding for broad decoder compatibility, a lowered initial
// QP, and deblocking-filter control present so the encoder can disable it
// per-slice if a tier needs the bitrate headroom.
func buildPPS() []byte {
	w := newBitWriter()

	w.ue(0) // pic_parameter_set_id
	w.ue(0) // seq_parameter_set_id

	w.writeBit(0) // entropy_coding_mode_flag: CAVLC
	w.writeBit(0) // bottom_field_pic_order_in_frame_present_flag

	w.ue(0) // num_slice_groups_minus1

	w.ue(0) // num_ref_idx_l0_default_active_minus1
	w.ue(0) // num_ref_idx_l1_default_active_minus1

	w.writeBit(0) // weighted_pred_flag
	w.u(0, 2)     // weighted_bipred_idc

	w.se(-6) // pic_init_qp_minus26
	w.se(0)  // pic_init_qs_minus26
	w.se(0)  // chroma_qp_index_offset

	w.writeBit(1) // deblocking_filter_control_present_flag
	w.writeBit(0) // constrained_intra_pred_flag
	w.writeBit(0) // redundant_pic_cnt_present_flag

	w.rbspTrailingBits()
	return nalUnit(3, nalUnitTypePPS, w.bytes())
}
