// Package wire implements the binary framed messages the file-transfer and
// delta-sync protocols exchange over a WebSocket, per spec.md §6.3, plus
// the on-disk transfer-session state layout from §6.2. Every frame is
// little-endian; nothing here depends on the transfer session state
// machine itself, so it stays reusable by both the scan/delta engines and
// the gateway's WebSocket handler.
package wire

// Opcode identifies a transfer-protocol frame. Client opcodes occupy
// 0x20-0x2F; server opcodes occupy 0x30-0x3F.
type Opcode byte

const (
	OpTransferInit     Opcode = 0x20
	OpFileListRequest  Opcode = 0x21
	OpFileData         Opcode = 0x22
	OpTransferResume   Opcode = 0x23
	OpTransferCancel   Opcode = 0x24
	OpSyncRequest      Opcode = 0x25
	OpBlockChecksums   Opcode = 0x26
	OpSyncAck          Opcode = 0x27

	OpTransferReady   Opcode = 0x30
	OpFileList        Opcode = 0x31
	OpFileRequest     Opcode = 0x32
	OpFileAck         Opcode = 0x33
	OpTransferComplete Opcode = 0x34
	OpTransferError   Opcode = 0x35
	OpDryRunReport    Opcode = 0x36
	OpBatchData       Opcode = 0x37
	OpSyncFileList    Opcode = 0x38
	OpDeltaData       Opcode = 0x39
	OpSyncComplete    Opcode = 0x3A
)

// Direction is the TransferSession direction spec.md §3 pins as a flag.
type Direction uint8

const (
	DirectionUpload Direction = iota
	DirectionDownload
)

// Flags are the TransferSession bit flags from spec.md §3.
const (
	FlagDeleteExtra uint8 = 1 << 0
	FlagDryRun      uint8 = 1 << 1
)
