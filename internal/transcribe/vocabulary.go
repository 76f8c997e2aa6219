package transcribe

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Vocabulary holds domain terms fed to the transcriber as an initial
// prompt so names and jargon are recognized more reliably.
type Vocabulary struct {
	Terms   []string `yaml:"terms"`
	Phrases []string `yaml:"phrases"`
}

// LoadVocabularyPrompt reads a vocabulary YAML file and renders it as
// the --vocab-prompt argument. A missing file is not an error; prompts
// are optional.
func LoadVocabularyPrompt(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading vocabulary %s: %w", path, err)
	}

	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("parsing vocabulary %s: %w", path, err)
	}
	return v.Prompt(), nil
}

// Prompt renders the vocabulary as a short natural-language hint.
func (v Vocabulary) Prompt() string {
	all := make([]string, 0, len(v.Terms)+len(v.Phrases))
	for _, t := range append(append([]string{}, v.Terms...), v.Phrases...) {
		if s := strings.TrimSpace(t); s != "" {
			all = append(all, s)
		}
	}
	if len(all) == 0 {
		return ""
	}
	return "Vocabulary: " + strings.Join(all, ", ") + "."
}
