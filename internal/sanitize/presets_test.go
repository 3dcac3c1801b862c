package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-sanitizer/internal/domain"
)

// TestPresetBundles checks each mode's fixed options.
func TestPresetBundles(t *testing.T) {
	for _, tc := range []struct {
		mode domain.Mode
		want domain.Options
	}{
		{domain.ModeSanitize, domain.Options{StripMetadata: true}},
		{domain.ModeCI, domain.Options{StripMetadata: true, DeterministicEncoding: true}},
		{domain.ModeRemovePII, domain.Options{StripMetadata: true, DeterministicEncoding: true}},
		{domain.ModePrivacyGrain, domain.Options{StripMetadata: true, ApplyGrain: true}},
	} {
		got, err := Preset(tc.mode, Overrides{})
		require.NoError(t, err, tc.mode)
		assert.Equal(t, tc.want, got, tc.mode)
	}
}

// TestPresetOverrides checks format normalization and metadata opt-out.
func TestPresetOverrides(t *testing.T) {
	got, err := Preset(domain.ModeCI, Overrides{OutputFormat: "MKV", KeepMetadata: true})
	require.NoError(t, err)
	assert.Equal(t, ".mkv", got.OutputFormat)
	assert.True(t, got.StripMetadata, "only grain honours KeepMetadata")

	got, err = Preset(domain.ModePrivacyGrain, Overrides{KeepMetadata: true})
	require.NoError(t, err)
	assert.False(t, got.StripMetadata)
	assert.False(t, got.DeterministicEncoding)

	_, err = Preset(domain.ModeCI, Overrides{OutputFormat: "mp4;rm"})
	assert.Error(t, err)
	_, err = Preset("turbo", Overrides{})
	assert.Error(t, err)
}

// TestParseModeAndCatalog checks mode parsing and the catalog copy.
func TestParseModeAndCatalog(t *testing.T) {
	mode, err := ParseMode("grain")
	require.NoError(t, err)
	assert.Equal(t, domain.ModePrivacyGrain, mode)

	_, err = ParseMode("GRAIN")
	assert.Error(t, err)

	modes := Modes()
	require.Len(t, modes, 4)
	modes[0].Name = "changed"
	assert.Equal(t, "Sanitize", Modes()[0].Name)
}
