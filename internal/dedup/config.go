package dedup

import "fmt"

// Config holds the matching thresholds of the dedup engine.
type Config struct {
	// Threshold is the minimum keyword score (0.0-1.0) for a topic match.
	Threshold float64

	// MinMatches is the minimum number of matched terms for a topic match.
	// A single shared word never marks a duplicate, whatever the score.
	MinMatches int

	// StemLength is the prefix length compared by stem matching.
	StemLength int

	// MinTokenLength is the minimum rune length of a keyword.
	MinTokenLength int

	// ExtraStopwords are dropped in addition to the built-in list.
	ExtraStopwords []string
}

// DefaultConfig returns the thresholds used for all prior dedup decisions.
func DefaultConfig() Config {
	return Config{
		Threshold:      0.4,
		MinMatches:     2,
		StemLength:     5,
		MinTokenLength: 4,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.Threshold <= 0.0 || c.Threshold > 1.0 {
		return fmt.Errorf("dedup threshold must be in (0.0, 1.0] (got %.2f)", c.Threshold)
	}
	if c.MinMatches < 1 {
		return fmt.Errorf("dedup minMatches must be at least 1 (got %d)", c.MinMatches)
	}
	if c.StemLength < 1 {
		return fmt.Errorf("dedup stemLength must be positive (got %d)", c.StemLength)
	}
	if c.MinTokenLength < 1 {
		return fmt.Errorf("dedup minTokenLength must be positive (got %d)", c.MinTokenLength)
	}
	return nil
}
