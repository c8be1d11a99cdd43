package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

// LoadDialogueScript reads the YAML dialogue file. An empty path yields the
// built-in script; fields missing from the file keep their defaults.
func LoadDialogueScript(path string) (domain.DialogueScript, error) {
	if path == "" {
		return domain.DefaultDialogueScript(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.DialogueScript{}, fmt.Errorf("read dialogue config: %w", err)
	}
	return ParseDialogueScript(raw)
}

func ParseDialogueScript(raw []byte) (domain.DialogueScript, error) {
	var script domain.DialogueScript
	if err := yaml.Unmarshal(raw, &script); err != nil {
		return domain.DialogueScript{}, fmt.Errorf("parse dialogue config: %w", err)
	}
	return script.WithDefaults(), nil
}
