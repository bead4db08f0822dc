package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Environment variables holding provider credentials. Presence of a key
// enables the matching provider adapter; absence is never a startup error.
const (
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_API_KEY"
	EnvGroqAPIKey      = "GROQ_API_KEY"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Provider credentials (read from the environment, see Env* constants).
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GoogleAPIKey    string
	GroqAPIKey      string

	// Optional base URL overrides, mostly for tests and proxies.
	OpenAIBaseURL    string
	AnthropicBaseURL string
	GoogleBaseURL    string
	GroqBaseURL      string

	// DefaultModel is used when a request carries no model id.
	DefaultModel string

	// LLMTimeout is the per-request timeout in seconds (default: 120).
	LLMTimeout int

	Mode    string // dev, demo, prod
	Addr    string
	Port    int
	Data    string
	Driver  string // sqlite, postgres
	DSN     string
	Version string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads provider configuration from environment variables.
func (p *Profile) FromEnv() {
	p.OpenAIAPIKey = getEnvOrDefault(EnvOpenAIAPIKey, "")
	p.AnthropicAPIKey = getEnvOrDefault(EnvAnthropicAPIKey, "")
	p.GoogleAPIKey = getEnvOrDefault(EnvGoogleAPIKey, "")
	p.GroqAPIKey = getEnvOrDefault(EnvGroqAPIKey, "")

	p.OpenAIBaseURL = getEnvOrDefault("OMNICHAT_OPENAI_BASE_URL", "")
	p.AnthropicBaseURL = getEnvOrDefault("OMNICHAT_ANTHROPIC_BASE_URL", "")
	p.GoogleBaseURL = getEnvOrDefault("OMNICHAT_GOOGLE_BASE_URL", "")
	p.GroqBaseURL = getEnvOrDefault("OMNICHAT_GROQ_BASE_URL", "")

	p.DefaultModel = getEnvOrDefault("OMNICHAT_DEFAULT_MODEL", "gpt-3.5-turbo")
	p.LLMTimeout = getEnvOrDefaultInt("OMNICHAT_LLM_TIMEOUT_SECONDS", 120)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies.
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported database driver %q", p.Driver)
	}

	if p.Driver == "sqlite" {
		if p.Data == "" {
			p.Data = "."
		}
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			return err
		}
		p.Data = dataDir
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("omnichat_%s.db", p.Mode))
		}
	}

	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn required for postgres driver")
	}

	if p.LLMTimeout <= 0 {
		p.LLMTimeout = 120
	}

	return nil
}
