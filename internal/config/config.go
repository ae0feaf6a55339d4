package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Application identity
	AppName string

	// Remote host running the two slots behind nginx
	RemoteHost  string
	RemoteUser  string
	SSHIdentity string
	SSHPort     string

	// Filesystem layout on the remote host
	RemoteRoot      string
	ProxyConfigPath string
	ProxyTempPath   string

	// Private per-slot ports (blue/green), never exposed publicly
	BluePort  int
	GreenPort int

	// Public server name the proxy answers for
	ServerName string

	// Quality gate
	ScorerURL        string
	QualityThreshold float64
	QualityAttempts  int
	QualityInterval  time.Duration

	// Remote call budget
	RemoteTimeout time.Duration

	// Ledger
	LedgerPath string

	// HTTP service
	Port        string
	ValidSecret string

	// Monitoring
	NewRelicLicense string
	NewRelicAppName string
	NewRelicEnabled bool
}

// Manifest is the optional per-application YAML descriptor. Values set in
// the manifest override the corresponding environment defaults.
type Manifest struct {
	App        string  `yaml:"app"`
	RemoteHost string  `yaml:"remote_host"`
	RemoteUser string  `yaml:"remote_user"`
	RemoteRoot string  `yaml:"remote_root"`
	ProxyConf  string  `yaml:"proxy_conf"`
	ServerName string  `yaml:"server_name"`
	BluePort   int     `yaml:"blue_port"`
	GreenPort  int     `yaml:"green_port"`
	ScorerURL  string  `yaml:"scorer_url"`
	Threshold  float64 `yaml:"quality_threshold"`
}

func Load() *Config {
	newRelicEnabledStr := getEnv("NEW_RELIC_ENABLED", "false")
	newRelicEnabled, err := strconv.ParseBool(newRelicEnabledStr)
	if err != nil {
		newRelicEnabled = false
	}

	cfg := &Config{
		AppName:          getEnv("APP_NAME", "site"),
		RemoteHost:       getEnv("REMOTE_HOST", "10.10.85.20"),
		RemoteUser:       getEnv("REMOTE_USER", "deploy"),
		SSHIdentity:      getEnv("SSH_IDENTITY", ""),
		SSHPort:          getEnv("SSH_PORT", "22"),
		RemoteRoot:       getEnv("REMOTE_ROOT", "/srv/site"),
		ProxyConfigPath:  getEnv("PROXY_CONF", "/etc/nginx/conf.d/site.conf"),
		BluePort:         getEnvInt("BLUE_PORT", 8081),
		GreenPort:        getEnvInt("GREEN_PORT", 8082),
		ServerName:       getEnv("SERVER_NAME", "example.com"),
		ScorerURL:        getEnv("SCORER_URL", "http://localhost:9900/score"),
		QualityThreshold: getEnvFloat("QUALITY_THRESHOLD", 90),
		QualityAttempts:  getEnvInt("QUALITY_ATTEMPTS", 3),
		QualityInterval:  getEnvDuration("QUALITY_INTERVAL", 5*time.Second),
		RemoteTimeout:    getEnvDuration("REMOTE_TIMEOUT", 60*time.Second),
		LedgerPath:       getEnv("LEDGER_PATH", "./deployments.db"),
		Port:             getEnv("PORT", "16166"),
		ValidSecret:      getEnv("RPC_SECRET", "your-64-character-secret-key-here-please-change-this-in-production"),
		NewRelicLicense:  getEnv("NEW_RELIC_LICENSE_KEY", ""),
		NewRelicAppName:  getEnv("NEW_RELIC_APP_NAME", "bluegreen-deployment"),
		NewRelicEnabled:  newRelicEnabled,
	}
	cfg.ProxyTempPath = cfg.ProxyConfigPath + ".next"

	if manifestPath := os.Getenv("APP_MANIFEST"); manifestPath != "" {
		if err := cfg.applyManifest(manifestPath); err != nil {
			// A broken manifest is a misconfiguration, not something to
			// silently deploy around
			panic(fmt.Sprintf("config: cannot load manifest %s: %v", manifestPath, err))
		}
	}

	return cfg
}

func (c *Config) applyManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	if m.App != "" {
		c.AppName = m.App
	}
	if m.RemoteHost != "" {
		c.RemoteHost = m.RemoteHost
	}
	if m.RemoteUser != "" {
		c.RemoteUser = m.RemoteUser
	}
	if m.RemoteRoot != "" {
		c.RemoteRoot = m.RemoteRoot
	}
	if m.ProxyConf != "" {
		c.ProxyConfigPath = m.ProxyConf
		c.ProxyTempPath = m.ProxyConf + ".next"
	}
	if m.ServerName != "" {
		c.ServerName = m.ServerName
	}
	if m.BluePort != 0 {
		c.BluePort = m.BluePort
	}
	if m.GreenPort != 0 {
		c.GreenPort = m.GreenPort
	}
	if m.ScorerURL != "" {
		c.ScorerURL = m.ScorerURL
	}
	if m.Threshold != 0 {
		c.QualityThreshold = m.Threshold
	}
	return nil
}

// SlotPort returns the private port serving the given slot name.
func (c *Config) SlotPort(slot string) int {
	if slot == "green" {
		return c.GreenPort
	}
	return c.BluePort
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
