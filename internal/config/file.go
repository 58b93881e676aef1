package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadFile は拡張子に応じてYAMLまたはTOMLの設定ファイルを target に読み込みます。
func LoadFile(path string, target *Config) error {
	// #nosec G304 -- パスは運用者が環境変数で指定する
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, target); err != nil {
			return fmt.Errorf("failed to unmarshal YAML %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), target); err != nil {
			return fmt.Errorf("failed to decode TOML %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file extension: %s", path)
	}
	return nil
}
