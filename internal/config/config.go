// Package config loads apisync settings from a YAML file and APISYNC_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/mitchellh/go-homedir"
	"github.com/plantarium-platform/apisync-go/pkg/models"
	"github.com/spf13/viper"
)

// PlatformConfig holds the API-management platform connection.
type PlatformConfig struct {
	Server       string        `mapstructure:"server"`
	Org          string        `mapstructure:"org"`
	Catalog      string        `mapstructure:"catalog"`
	Realm        string        `mapstructure:"realm" default:"provider/default-idp-2"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout" default:"60s"`
}

// PathsConfig lists the local files and directories of a run.
type PathsConfig struct {
	Services   string `mapstructure:"services" default:"services.json"`
	Template   string `mapstructure:"template"` // Empty selects the built-in template
	OutputDir  string `mapstructure:"output_dir" default:"build/apis"`
	BackupDir  string `mapstructure:"backup_dir" default:"build/backup"`
	MarkerFile string `mapstructure:"marker_file" default:".apisync-marker"`
	RepoRoot   string `mapstructure:"repo_root" default:"."`
}

type APIConfig struct {
	Version         string `mapstructure:"version" default:"1.0.0"`
	SchemaContainer string `mapstructure:"schema_container" default:"components.schemas"`
}

// ProductConfig describes the product that references every synchronized API.
type ProductConfig struct {
	Name          string `mapstructure:"name"`
	Title         string `mapstructure:"title"`
	Version       string `mapstructure:"version" default:"1.0.0"`
	View          string `mapstructure:"view" default:"public"`
	Subscribe     string `mapstructure:"subscribe" default:"authenticated"`
	PlanName      string `mapstructure:"plan_name" default:"default-plan"`
	PlanTitle     string `mapstructure:"plan_title" default:"Default Plan"`
	PlanRateLimit string `mapstructure:"plan_rate_limit" default:"100/1hour"`
	PlanApproval  bool   `mapstructure:"plan_approval"`
}

type ReconcileConfig struct {
	Incremental bool   `mapstructure:"incremental" default:"true"`
	MatchPolicy string `mapstructure:"match_policy" default:"first"`
	Force       bool   `mapstructure:"force"`
}

type LogConfig struct {
	Level string `mapstructure:"level" default:"info"`
}

type MetricsConfig struct {
	Pushgateway string `mapstructure:"pushgateway"`
	Job         string `mapstructure:"job" default:"apisync"`
}

// Config is the complete apisync configuration.
type Config struct {
	Platform  PlatformConfig  `mapstructure:"platform"`
	Paths     PathsConfig     `mapstructure:"paths"`
	API       APIConfig       `mapstructure:"api"`
	Product   ProductConfig   `mapstructure:"product"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`

	// File is the configuration file that was read, if any.
	File string `mapstructure:"-"`
}

// envKeys are the settings that may be overridden by APISYNC_* variables.
var envKeys = []string{
	"platform.server", "platform.org", "platform.catalog", "platform.realm",
	"platform.username", "platform.password", "platform.client_id", "platform.client_secret",
	"platform.timeout",
	"paths.services", "paths.template", "paths.output_dir", "paths.backup_dir",
	"paths.marker_file", "paths.repo_root",
	"api.version", "api.schema_container",
	"product.name", "product.title", "product.version", "product.view", "product.subscribe",
	"product.plan_name", "product.plan_title", "product.plan_rate_limit", "product.plan_approval",
	"reconcile.incremental", "reconcile.match_policy", "reconcile.force",
	"log.level",
	"metrics.pushgateway", "metrics.job",
}

// Load reads the configuration. An empty path looks for apisync.yaml in the
// working directory and carries on with defaults when there is none.
// Overrides are applied last, keyed like envKeys.
func Load(path string, overrides map[string]interface{}) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path %s: %w", path, err)
		}
		v.SetConfigFile(expanded)
	} else {
		v.SetConfigName("apisync")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("APISYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	cfg := &Config{}
	defaults.SetDefaults(cfg)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if cfg.Product.Title == "" {
		cfg.Product.Title = cfg.Product.Name
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Paths.Services, &c.Paths.Template, &c.Paths.OutputDir,
		&c.Paths.BackupDir, &c.Paths.MarkerFile, &c.Paths.RepoRoot,
	} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %s: %w", *p, err)
		}
		*p = filepath.Clean(expanded)
	}
	return nil
}

// Validate checks the settings every run needs.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"platform.server", c.Platform.Server},
		{"platform.org", c.Platform.Org},
		{"platform.catalog", c.Platform.Catalog},
		{"platform.username", c.Platform.Username},
		{"product.name", c.Product.Name},
		{"paths.services", c.Paths.Services},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return models.NewValidationError("missing required settings: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// CriticalPaths are the files whose change forces a full reconciliation.
func (c *Config) CriticalPaths() []string {
	var paths []string
	for _, p := range []string{c.Paths.Services, c.Paths.Template, c.File} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
