package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Output formats
const (
	OutputText = "text"
	OutputJSON = "json"
)

// Config holds CLI configuration. Flags override the environment.
type Config struct {
	ServerURL string
	Token     string
	TokenFile string
	Output    string
}

// DefaultConfig returns a Config populated from the environment
func DefaultConfig() *Config {
	return &Config{
		ServerURL: getEnvOrDefault("AIRDROP_SERVER", "http://localhost:8080"),
		Token:     os.Getenv("AIRDROP_API_TOKEN"),
		TokenFile: getEnvOrDefault("AIRDROP_API_TOKEN_FILE", defaultTokenFile()),
		Output:    getEnvOrDefault("AIRDROP_OUTPUT", OutputText),
	}
}

// Validate checks values that flags cannot constrain
func (c *Config) Validate() error {
	switch c.Output {
	case OutputText, OutputJSON:
	default:
		return fmt.Errorf("unknown output format %q: use %s or %s", c.Output, OutputText, OutputJSON)
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("server URL %q must start with http:// or https://", c.ServerURL)
	}
	return nil
}

// LoadToken reads the operator token from TokenFile unless one is already set.
// A missing file is not an error; admin commands then fail with UNAUTHORIZED.
func (c *Config) LoadToken() error {
	if c.Token != "" || c.TokenFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read token file: %w", err)
	}

	c.Token = strings.TrimSpace(string(data))
	return nil
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".airdropctl", "token")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
