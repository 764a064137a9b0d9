package types

import "time"

// AIConfig holds settings for the Claude-backed collaborators.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// MaxTokens bounds each response (default 8192).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// RequestsPerMinute paces calls to the API. Zero disables pacing.
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" mapstructure:"requests_per_minute"`

	// Timeout bounds a single HTTP call (default 5m).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// ChunkConfig controls how input text is split before analysis.
type ChunkConfig struct {
	// MaxChars is the upper bound on characters per chunk (default 40000).
	MaxChars int `json:"max_chars" yaml:"max_chars" mapstructure:"max_chars"`

	// Parallel analyzes chunks concurrently. It only takes effect when the
	// merger reports itself commutative.
	Parallel bool `json:"parallel" yaml:"parallel" mapstructure:"parallel"`

	// Workers bounds concurrent chunk analyses when Parallel is set (default 4).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// DefaultConfidenceThreshold is the minimum match confidence for linking.
const DefaultConfidenceThreshold = 0.6

// MappingConfig holds the Q&A mapping heuristics.
type MappingConfig struct {
	// ConfidenceThreshold is the inclusive lower bound for applying a match.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold" mapstructure:"confidence_threshold"`

	// CandidateLimit caps the questions sent to the matcher. Zero means no cap.
	CandidateLimit int `json:"candidate_limit" yaml:"candidate_limit" mapstructure:"candidate_limit"`

	// DisableAreaFilter sends every existing question as a candidate.
	DisableAreaFilter bool `json:"disable_area_filter" yaml:"disable_area_filter" mapstructure:"disable_area_filter"`
}

// Threshold returns the configured threshold or the default.
func (m MappingConfig) Threshold() float64 {
	if m.ConfidenceThreshold <= 0 {
		return DefaultConfidenceThreshold
	}
	return m.ConfidenceThreshold
}

// AggregationConfig controls description generation.
type AggregationConfig struct {
	// MaxInputChars bounds the document handed to the describer (default 60000).
	MaxInputChars int `json:"max_input_chars" yaml:"max_input_chars" mapstructure:"max_input_chars"`

	// Smart skips descriptions that are newer than every entity they cover.
	Smart bool `json:"smart" yaml:"smart" mapstructure:"smart"`
}

// KnowledgeBaseConfig locates the store and its search index.
type KnowledgeBaseConfig struct {
	// OutputPath is the store root (contains questions/, answers/, notes/, ...).
	OutputPath string `json:"output_path" yaml:"output_path" mapstructure:"output_path"`

	// IndexEnabled rebuilds the SQLite search index after each batch.
	IndexEnabled bool `json:"index_enabled" yaml:"index_enabled" mapstructure:"index_enabled"`

	// MaxResults is the default search result limit (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// ProcessingMode selects which stages a batch runs.
type ProcessingMode string

const (
	// ModeFull analyzes, structures and aggregates.
	ModeFull ProcessingMode = "FULL"
	// ModeProcessOnly analyzes and structures but generates no descriptions.
	ModeProcessOnly ProcessingMode = "PROCESS_ONLY"
	// ModeAggregateOnly regenerates descriptions from the persisted store.
	ModeAggregateOnly ProcessingMode = "AGGREGATE_ONLY"
)

// BuildConfig describes one batch run.
type BuildConfig struct {
	// SourceName tags every entity produced by the batch.
	SourceName string `json:"source_name" yaml:"source_name"`

	// InputFile is read when InputText is empty.
	InputFile string `json:"input_file,omitempty" yaml:"input_file,omitempty"`
	InputText string `json:"-" yaml:"-"`

	// Timestamp labels inbox snapshots. Zero uses the current time.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// OutputPath is the store root.
	OutputPath string `json:"output_path" yaml:"output_path"`

	// CleanOutput wipes the whole store before the batch.
	CleanOutput bool `json:"clean_output" yaml:"clean_output"`

	// CleanSourceBeforeProcessing removes SourceName's entities before the batch.
	CleanSourceBeforeProcessing bool `json:"clean_source_before_processing" yaml:"clean_source_before_processing"`

	AnalysisInstructions    string `json:"analysis_instructions,omitempty" yaml:"analysis_instructions,omitempty"`
	AggregationInstructions string `json:"aggregation_instructions,omitempty" yaml:"aggregation_instructions,omitempty"`

	Mode ProcessingMode `json:"mode" yaml:"mode"`
}
