package config

import (
	"time"

	"github.com/rotisserie/eris"
)

// PipelineConfig holds the thresholds and switches of one enrichment run.
// It is passed by value through every gate; nothing reads it from globals.
type PipelineConfig struct {
	Gate1PassThreshold          int  `yaml:"gate1_pass_threshold" mapstructure:"gate1_pass_threshold" json:"gate1_pass_threshold"`
	Gate1CautionThreshold       int  `yaml:"gate1_caution_threshold" mapstructure:"gate1_caution_threshold" json:"gate1_caution_threshold"`
	Gate2PassThreshold          int  `yaml:"gate2_pass_threshold" mapstructure:"gate2_pass_threshold" json:"gate2_pass_threshold"`
	MaxSourcesPerItem           int  `yaml:"max_sources_per_item" mapstructure:"max_sources_per_item" json:"max_sources_per_item"`
	MinSourcesForHighConfidence int  `yaml:"min_sources_for_high_confidence" mapstructure:"min_sources_for_high_confidence" json:"min_sources_for_high_confidence"`
	MaxWriteRetries             int  `yaml:"max_write_retries" mapstructure:"max_write_retries" json:"max_write_retries"`
	RetryDelayMs                int  `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms" json:"retry_delay_ms"`
	EnableVisualComparison      bool `yaml:"enable_visual_comparison" mapstructure:"enable_visual_comparison" json:"enable_visual_comparison"`
	EnableSemanticVerification  bool `yaml:"enable_semantic_verification" mapstructure:"enable_semantic_verification" json:"enable_semantic_verification"`
}

// DefaultPipelineConfig returns the stock thresholds.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Gate1PassThreshold:          85,
		Gate1CautionThreshold:       60,
		Gate2PassThreshold:          90,
		MaxSourcesPerItem:           5,
		MinSourcesForHighConfidence: 3,
		MaxWriteRetries:             3,
		RetryDelayMs:                500,
		EnableVisualComparison:      true,
		EnableSemanticVerification:  true,
	}
}

// RetryDelay returns the fixed pause between write attempts.
func (p PipelineConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMs) * time.Millisecond
}

// Concurrency returns the fan-out bound for per-source work.
func (p PipelineConfig) Concurrency() int {
	if p.MaxSourcesPerItem <= 0 {
		return 1
	}
	return p.MaxSourcesPerItem
}

// Validate rejects threshold combinations that make the gates meaningless.
func (p PipelineConfig) Validate() error {
	switch {
	case p.Gate1CautionThreshold < 0 || p.Gate1PassThreshold > 100:
		return eris.New("pipeline: gate1 thresholds must be within 0-100")
	case p.Gate1CautionThreshold > p.Gate1PassThreshold:
		return eris.New("pipeline: gate1_caution_threshold must not exceed gate1_pass_threshold")
	case p.Gate2PassThreshold < 0 || p.Gate2PassThreshold > 100:
		return eris.New("pipeline: gate2_pass_threshold must be within 0-100")
	case p.MaxSourcesPerItem < 1:
		return eris.New("pipeline: max_sources_per_item must be at least 1")
	case p.MaxWriteRetries < 0 || p.RetryDelayMs < 0:
		return eris.New("pipeline: write retry settings must not be negative")
	}
	return nil
}

// PipelineOverrides carries per-invocation changes to a PipelineConfig.
// Nil fields keep the base value.
type PipelineOverrides struct {
	Gate1PassThreshold          *int  `json:"gate1_pass_threshold,omitempty"`
	Gate1CautionThreshold       *int  `json:"gate1_caution_threshold,omitempty"`
	Gate2PassThreshold          *int  `json:"gate2_pass_threshold,omitempty"`
	MaxSourcesPerItem           *int  `json:"max_sources_per_item,omitempty"`
	MinSourcesForHighConfidence *int  `json:"min_sources_for_high_confidence,omitempty"`
	MaxWriteRetries             *int  `json:"max_write_retries,omitempty"`
	RetryDelayMs                *int  `json:"retry_delay_ms,omitempty"`
	EnableVisualComparison      *bool `json:"enable_visual_comparison,omitempty"`
	EnableSemanticVerification  *bool `json:"enable_semantic_verification,omitempty"`
}

// WithOverrides returns a copy of p with every non-nil override applied.
func (p PipelineConfig) WithOverrides(o *PipelineOverrides) PipelineConfig {
	if o == nil {
		return p
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setInt(&p.Gate1PassThreshold, o.Gate1PassThreshold)
	setInt(&p.Gate1CautionThreshold, o.Gate1CautionThreshold)
	setInt(&p.Gate2PassThreshold, o.Gate2PassThreshold)
	setInt(&p.MaxSourcesPerItem, o.MaxSourcesPerItem)
	setInt(&p.MinSourcesForHighConfidence, o.MinSourcesForHighConfidence)
	setInt(&p.MaxWriteRetries, o.MaxWriteRetries)
	setInt(&p.RetryDelayMs, o.RetryDelayMs)
	if o.EnableVisualComparison != nil {
		p.EnableVisualComparison = *o.EnableVisualComparison
	}
	if o.EnableSemanticVerification != nil {
		p.EnableSemanticVerification = *o.EnableSemanticVerification
	}
	return p
}
