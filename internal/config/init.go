package config

import (
	"fmt"
	"os"
)

const defaultConfigTemplate = `# deckforge configuration
llm:
  provider: openai
  model: gpt-4o
  # Expanded from the environment at load time; keep secrets out of the file.
  api_key: ${OPENAI_API_KEY}
  temperature: 0.2
  timeout: 2m

compiler:
  engine: auto        # auto | pdflatex | xelatex
  timeout: 60s
  extra_passes: 2
  shell_escape: true

loop:
  max_attempts: 3
  repair_delay: 1s
  keep_attempt_history: false

output:
  directory: ./output
  retain_for: 168h

server:
  addr: ":8080"
  watch_config: true
  janitor_interval: 1h

logging:
  level: info
  format: text
`

// Init writes a starter configuration file. Refuses to overwrite an existing
// file unless force is set.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}
	if err := os.WriteFile(configPath, []byte(defaultConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
