// Package command translates sanitization options into an ffmpeg argument
// sequence. Build is pure: no I/O and the same input always yields the same
// output.
package command

import "media-sanitizer/internal/domain"

// Directive values. The engine interprets arguments positionally, so the
// order in which Build appends them is part of the contract.
const (
	FlagInput     = "-i"
	FlagOverwrite = "-y"

	FlagMapMetadata = "-map_metadata"
	// StripAll drops every global, stream and chapter metadata entry.
	// Unknown fields are dropped too; there is no allow-list.
	StripAll = "-1"

	FlagFormatFlags = "-fflags"
	FlagVideoFlags  = "-flags:v"
	FlagAudioFlags  = "-flags:a"
	BitExact        = "+bitexact"

	FlagVideoFilter = "-vf"
	// GrainFilter is fixed low-intensity temporal+uniform noise.
	GrainFilter = "noise=alls=10:allf=t+u"
)

// Build returns the argument sequence for one run:
//
//	-i <input> [metadata erasure] [bit-exact flags] [grain filter] -y <output>
func Build(opts domain.Options, inputName, outputName string) []string {
	args := make([]string, 0, 14)
	args = append(args, FlagInput, inputName)

	if opts.StripMetadata {
		args = append(args, MetadataErasure()...)
	}
	if opts.DeterministicEncoding {
		args = append(args, BitExactFlags()...)
	}
	if opts.ApplyGrain {
		args = append(args, GrainDirective()...)
	}

	return append(args, FlagOverwrite, outputName)
}

// MetadataErasure is the strip-everything directive.
func MetadataErasure() []string {
	return []string{FlagMapMetadata, StripAll}
}

// BitExactFlags covers the muxer, video and audio encoders.
func BitExactFlags() []string {
	return []string{
		FlagFormatFlags, BitExact,
		FlagVideoFlags, BitExact,
		FlagAudioFlags, BitExact,
	}
}

// GrainDirective is the privacy-grain noise filter.
func GrainDirective() []string {
	return []string{FlagVideoFilter, GrainFilter}
}
