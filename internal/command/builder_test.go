package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-sanitizer/internal/domain"
)

// TestBuildStripMetadataOnly covers the plain jpg sanitize case.
func TestBuildStripMetadataOnly(t *testing.T) {
	got := Build(domain.Options{StripMetadata: true}, "input.jpg", "output.jpg")
	assert.Equal(t, []string{"-i", "input.jpg", "-map_metadata", "-1", "-y", "output.jpg"}, got)
}

// TestBuildDeterministic checks the bit-exact flags follow metadata erasure.
func TestBuildDeterministic(t *testing.T) {
	got := Build(domain.Options{StripMetadata: true, DeterministicEncoding: true}, "input.mp4", "output.mp4")
	assert.Equal(t, []string{
		"-i", "input.mp4",
		"-map_metadata", "-1",
		"-fflags", "+bitexact",
		"-flags:v", "+bitexact",
		"-flags:a", "+bitexact",
		"-y", "output.mp4",
	}, got)
}

// TestBuildGrain checks the grain filter placement.
func TestBuildGrain(t *testing.T) {
	got := Build(domain.Options{StripMetadata: true, ApplyGrain: true}, "input.webm", "output.webm")
	assert.Equal(t, []string{
		"-i", "input.webm",
		"-map_metadata", "-1",
		"-vf", "noise=alls=10:allf=t+u",
		"-y", "output.webm",
	}, got)
	assert.NotContains(t, got, BitExact)
}

// TestBuildGrainAndDeterministicTogether checks the combination is allowed.
func TestBuildGrainAndDeterministicTogether(t *testing.T) {
	got := Build(domain.Options{DeterministicEncoding: true, ApplyGrain: true}, "input.mov", "output.mov")
	assert.Equal(t, []string{
		"-i", "input.mov",
		"-fflags", "+bitexact",
		"-flags:v", "+bitexact",
		"-flags:a", "+bitexact",
		"-vf", "noise=alls=10:allf=t+u",
		"-y", "output.mov",
	}, got)
}

// TestBuildNoOptions checks the bare remux sequence.
func TestBuildNoOptions(t *testing.T) {
	assert.Equal(t, []string{"-i", "input.wav", "-y", "output.mp3"}, Build(domain.Options{}, "input.wav", "output.mp3"))
}

// TestBuildMetadataErasureInvariant checks every combination with stripMetadata
// places the erasure exactly once, after the input and before any other directive.
func TestBuildMetadataErasureInvariant(t *testing.T) {
	for mask := 0; mask < 4; mask++ {
		opts := domain.Options{
			StripMetadata:         true,
			DeterministicEncoding: mask&1 != 0,
			ApplyGrain:            mask&2 != 0,
		}
		got := Build(opts, "input.mkv", "output.mkv")

		count := 0
		for _, arg := range got {
			if arg == FlagMapMetadata {
				count++
			}
		}
		require.Equal(t, 1, count, "%+v", opts)
		assert.Equal(t, []string{"-i", "input.mkv", "-map_metadata", "-1"}, got[:4], "%+v", opts)
		assert.Equal(t, []string{"-y", "output.mkv"}, got[len(got)-2:], "%+v", opts)
	}
}

// TestBuildIsPure checks repeated builds are identical and independent.
func TestBuildIsPure(t *testing.T) {
	opts := domain.Options{StripMetadata: true, DeterministicEncoding: true}
	a := Build(opts, "input.mp4", "output.mp4")
	b := Build(opts, "input.mp4", "output.mp4")
	require.Equal(t, a, b)

	a[0] = "mutated"
	assert.Equal(t, "-i", b[0])
	assert.Equal(t, "-i", Build(opts, "input.mp4", "output.mp4")[0])
}
