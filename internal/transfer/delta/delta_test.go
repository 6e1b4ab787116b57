package delta

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// property 5: rolling a window forward by one byte equals recomputing the
// checksum over the shifted window from scratch.
func TestRollingChecksumMatchesRecompute(t *testing.T) {
	s := []byte("abcdefghij")
	block := 4

	rc := NewRollingChecksum(s[0:block])
	rc.Roll(s[0], s[block])

	recomputed := NewRollingChecksum(s[1 : 1+block])
	assert.Equal(t, recomputed.Value(), rc.Value())
}

func blockChecksumsFor(data []byte, blockSize uint32) []BlockChecksum {
	var out []BlockChecksum
	b := int(blockSize)
	for i, idx := 0, 0; i+b <= len(data); i, idx = i+b, idx+1 {
		window := data[i : i+b]
		out = append(out, BlockChecksum{
			BlockIndex: idx,
			Rolling:    RollingValue(window),
			Strong:     StrongHash(window),
		})
	}
	return out
}

// scenario E: server bytes = "AAAA_BBBB_CCCC", block_size=4, client bytes
// has the middle block replaced with "_XXXX". Applying the commands to the
// client buffer must reproduce the server bytes exactly.
func TestDeltaReconstructionScenarioE(t *testing.T) {
	server := []byte("AAAA_BBBB_CCCC")
	client := []byte("AAAA_XXXX_CCCC")
	const blockSize = 4

	checksums := blockChecksumsFor(client, blockSize)
	cmds := Compute(server, checksums, blockSize)

	reconstructed, err := Apply(cmds, client)
	require.NoError(t, err)
	assert.Equal(t, server, reconstructed)
}

func TestDeltaRoundTripIdenticalFiles(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 50)
	const blockSize = 16
	checksums := blockChecksumsFor(data, blockSize)

	cmds := Compute(data, checksums, blockSize)
	reconstructed, err := Apply(cmds, data)
	require.NoError(t, err)
	assert.Equal(t, data, reconstructed)
}

func TestDeltaRoundTripCompletelyDifferent(t *testing.T) {
	client := bytes.Repeat([]byte("A"), 64)
	server := bytes.Repeat([]byte("Z"), 64)
	const blockSize = 16
	checksums := blockChecksumsFor(client, blockSize)

	cmds := Compute(server, checksums, blockSize)
	reconstructed, err := Apply(cmds, client)
	require.NoError(t, err)
	assert.Equal(t, server, reconstructed)
}

func TestCommandEncodeDecodeRoundTrip(t *testing.T) {
	cmds := []Command{
		{IsCopy: true, Offset: 128, Length: 64},
		{IsCopy: false, Literal: []byte("new bytes")},
		{IsCopy: true, Offset: 0, Length: 16},
	}
	decoded, err := DecodeCommands(EncodeCommands(cmds))
	require.NoError(t, err)
	assert.Equal(t, cmds, decoded)
}

func TestBlockSizeClamps(t *testing.T) {
	assert.Equal(t, uint32(512), BlockSize(100))
	assert.Equal(t, uint32(512), BlockSize(0))
	assert.Equal(t, uint32(65536), BlockSize(1<<40))
	// sqrt(1_000_000) = 1000, within bounds.
	assert.Equal(t, uint32(1000), BlockSize(1_000_000))
}
