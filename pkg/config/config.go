package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xhad/carescope/internal/models"
	"github.com/xhad/carescope/pkg/validator"
	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	RateLimit   int           `yaml:"rate_limit"` // requests per minute, 0 = unlimited
	Timeout     time.Duration `yaml:"timeout"`
}

type EmbeddingConfig struct {
	Type        string        `yaml:"type"` // tfidf or ollama
	Model       string        `yaml:"model"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	Cache       string        `yaml:"cache"` // none, sqlite or postgres
}

type DatabaseConfig struct {
	URL        string `yaml:"url"`
	TableName  string `yaml:"table_name"`
	VectorDim  int    `yaml:"vector_dim"`
	BatchSize  int    `yaml:"batch_size"`
	SQLitePath string `yaml:"sqlite_path"`
}

type CorpusConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type PipelineConfig struct {
	TopK              int           `yaml:"top_k"`
	MinNameSimilarity float64       `yaml:"min_name_similarity"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	MaxContextChars   int           `yaml:"max_context_chars"`
}

type ValidationConfig struct {
	MaxDoctors     int `yaml:"max_doctors"`
	MaxBeds        int `yaml:"max_beds"`
	MaxSpecialties int `yaml:"max_specialties"`
	MinYear        int `yaml:"min_year"`
	MaxYear        int `yaml:"max_year"`
}

type ProcessorConfig struct {
	MaxListItems int `yaml:"max_list_items"`
	// KeepStopwords makes the tfidf embedder index stopwords too.
	KeepStopwords bool `yaml:"keep_stopwords"`
}

type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Database   DatabaseConfig   `yaml:"database"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Validation ValidationConfig `yaml:"validation"`
	Processor  ProcessorConfig  `yaml:"processor"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	UI struct {
		Streaming bool   `yaml:"streaming"`
		Theme     string `yaml:"theme"`
	} `yaml:"ui"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/carescope/config.yaml"),
			"/etc/carescope/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.2
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 2 * time.Minute
	}

	if config.Embedding.Type == "" {
		config.Embedding.Type = "tfidf"
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "nomic-embed-text:latest"
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 32
	}
	if config.Embedding.Concurrency == 0 {
		config.Embedding.Concurrency = 4
	}
	if config.Embedding.Timeout == 0 {
		config.Embedding.Timeout = 30 * time.Second
	}
	if config.Embedding.Cache == "" {
		config.Embedding.Cache = "none"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "facility_embeddings"
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}
	if config.Database.SQLitePath == "" {
		config.Database.SQLitePath = filepath.Join(os.Getenv("HOME"), ".carescope", "embeddings.db")
	}

	if config.Pipeline.TopK == 0 {
		config.Pipeline.TopK = 5
	}
	if config.Pipeline.MinNameSimilarity == 0 {
		config.Pipeline.MinNameSimilarity = 0.75
	}
	if config.Pipeline.GenerationTimeout == 0 {
		config.Pipeline.GenerationTimeout = config.LLM.Timeout
	}
	if config.Pipeline.MaxContextChars == 0 {
		config.Pipeline.MaxContextChars = 8000
	}

	if config.Validation.MaxDoctors == 0 {
		config.Validation.MaxDoctors = 500
	}
	if config.Validation.MaxBeds == 0 {
		config.Validation.MaxBeds = 1000
	}
	if config.Validation.MaxSpecialties == 0 {
		config.Validation.MaxSpecialties = 15
	}
	if config.Validation.MinYear == 0 {
		config.Validation.MinYear = 1800
	}
	if config.Validation.MaxYear == 0 {
		config.Validation.MaxYear = 2100
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}

	if config.UI.Theme == "" {
		config.UI.Theme = "default"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if corpus := os.Getenv("CARESCOPE_CORPUS"); corpus != "" {
		config.Corpus.Path = corpus
	}
}

// ValidationRules turns the validation section into plausibility rules.
func (c *Config) ValidationRules() []validator.Rule {
	v := c.Validation
	return []validator.Rule{
		{Field: models.ClaimDoctorCount, Min: 0, Max: float64(v.MaxDoctors), Unit: "doctors"},
		{Field: models.ClaimBedCapacity, Min: 0, Max: float64(v.MaxBeds), Unit: "beds"},
		{Field: validator.SpecialtyCount, Min: 0, Max: float64(v.MaxSpecialties), Unit: "specialties"},
		{Field: models.ClaimYearEstablished, Min: float64(v.MinYear), Max: float64(v.MaxYear)},
	}
}
