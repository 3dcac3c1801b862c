package sanitize

import (
	"fmt"

	"github.com/samber/lo"

	"media-sanitizer/internal/domain"
)

// Overrides are the caller-adjustable parts of a preset.
type Overrides struct {
	// OutputFormat is an extension token such as "mp4" or ".webm".
	OutputFormat string
	// KeepMetadata disables metadata erasure. Only the grain preset honours it.
	KeepMetadata bool
}

// DefaultOptions is used by Sanitize when the caller passes none.
var DefaultOptions = domain.Options{StripMetadata: true}

var modeCatalog = []domain.ModeOption{
	{
		ID:          domain.ModeSanitize,
		Name:        "Sanitize",
		Description: "Strip all container and stream metadata.",
		Options:     DefaultOptions,
	},
	{
		ID:          domain.ModeCI,
		Name:        "CI reproducible",
		Description: "Strip metadata and encode bit-exact so identical inputs give identical bytes.",
		Options:     domain.Options{StripMetadata: true, DeterministicEncoding: true},
	},
	{
		ID:          domain.ModeRemovePII,
		Name:        "Remove PII",
		Description: "Remove location, device and timestamp metadata with reproducible output.",
		Options:     domain.Options{StripMetadata: true, DeterministicEncoding: true},
	},
	{
		ID:          domain.ModePrivacyGrain,
		Name:        "Privacy grain",
		Description: "Add fixed low-intensity noise to defeat content-hash tracking and strip metadata.",
		Options:     domain.Options{StripMetadata: true, ApplyGrain: true},
	},
}

// Modes returns the preset catalog.
func Modes() []domain.ModeOption {
	return append([]domain.ModeOption(nil), modeCatalog...)
}

// ParseMode validates a mode identifier.
func ParseMode(raw string) (domain.Mode, error) {
	ids := lo.Map(modeCatalog, func(m domain.ModeOption, _ int) domain.Mode { return m.ID })
	mode := domain.Mode(raw)
	if !lo.Contains(ids, mode) {
		return "", fmt.Errorf("unknown mode %q (want one of %v)", raw, ids)
	}
	return mode, nil
}

// Preset returns the fixed option bundle for mode with overrides applied.
func Preset(mode domain.Mode, o Overrides) (domain.Options, error) {
	entry, ok := lo.Find(modeCatalog, func(m domain.ModeOption) bool { return m.ID == mode })
	if !ok {
		return domain.Options{}, fmt.Errorf("unknown mode %q", mode)
	}

	opts := entry.Options
	if o.OutputFormat != "" {
		ext := NormalizeExtension(o.OutputFormat)
		if ext == "" {
			return domain.Options{}, fmt.Errorf("invalid output format %q", o.OutputFormat)
		}
		opts.OutputFormat = ext
	}
	if mode == domain.ModePrivacyGrain && o.KeepMetadata {
		opts.StripMetadata = false
	}
	return opts, nil
}
