package config

import "time"

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Canvas constraints
	MaxNodesPerCanvas int
	MaxEdgesPerCanvas int
	DefaultCanvasName string

	// Node constraints
	MaxLabelLength   int
	MaxParamsPerNode int

	// Run lifecycle
	CancelFallbackDelay time.Duration
	FirstChunkProgress  int
	DefaultPreviewCount int
	DefaultLanguage     string

	// Generation polling
	GenerationPollInterval time.Duration

	// Activity log and notices
	MaxLogEntries int
	NoticeTTL     time.Duration

	// Validation settings
	AllowSelfEdges      bool
	AllowDuplicateEdges bool
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		// Canvas constraints
		MaxNodesPerCanvas: 500,
		MaxEdgesPerCanvas: 2000,
		DefaultCanvasName: "Untitled Canvas",

		// Node constraints
		MaxLabelLength:   200,
		MaxParamsPerNode: 100,

		// Run lifecycle
		CancelFallbackDelay: 1200 * time.Millisecond,
		FirstChunkProgress:  10,
		DefaultPreviewCount: 4,
		DefaultLanguage:     "en",

		// Generation polling
		GenerationPollInterval: 1500 * time.Millisecond,

		// Activity log and notices
		MaxLogEntries: 40,
		NoticeTTL:     3200 * time.Millisecond,

		// Self edges are tolerated by convention; duplicate edges between the
		// same pair of nodes are a legitimate canvas shape.
		AllowSelfEdges:      true,
		AllowDuplicateEdges: true,
	}
}
