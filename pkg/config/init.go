package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# dittoreg Configuration File
#
# Values can be overridden with DITTOREG_* environment variables,
# e.g. DITTOREG_LOGGING_LEVEL=DEBUG or DITTOREG_ADMIN_PORT=8081.`

// sectionComments documents each top-level section in generated files.
var sectionComments = map[string]string{
	"logging": "# Logging: level is DEBUG, INFO, WARN or ERROR; format is text or json;\n# output is stdout, stderr or a file path.",
	"server":  "# Server lifecycle. stats_log_interval controls how often a registry\n# summary is written to the log.",
	"metrics": "# Prometheus endpoint, served at http://<host>:<port>/metrics.",
	"admin":   "# Admin HTTP API for listing, adding and removing clients and inspecting exports.",
	"clients": "# Client admission. rate_limit admits <requests> per <per> per client,\n# with bursts up to <burst>.",
	"exports": "# Exports seeded into the registry at startup. Ids and paths must be unique.",
}

// InitConfig writes a default configuration file to the default location.
//
// Returns the path of the written file. Fails if the file already exists
// and force is false.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with a header and a comment
// above each section. Durations are written as Go duration strings.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var root yaml.Node
	if err := root.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	// root is a mapping of key/value node pairs.
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
		if key.Value == "server" {
			setDuration(value, "shutdown_timeout", cfg.Server.ShutdownTimeout.String())
			setDuration(value, "stats_log_interval", cfg.Server.StatsLogInterval.String())
		}
	}

	doc := &yaml.Node{Kind: yaml.DocumentNode, HeadComment: configHeader, Content: []*yaml.Node{&root}}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(out), nil
}

// setDuration replaces the scalar under key in mapping with a duration
// string.
func setDuration(mapping *yaml.Node, key, value string) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1].Tag = "!!str"
			mapping.Content[i+1].Value = value
			return
		}
	}
}
