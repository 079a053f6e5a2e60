package common

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	configPathEnv = "CONFIG_PATH"
	configJSONEnv = "CONFIG_JSON"
)

//go:embed config.default.yaml
var defaultConfig []byte

// ConfigManager loads a config struct from layered sources:
// embedded defaults, then CONFIG_PATH, then inline CONFIG_JSON.
type ConfigManager[T any] struct {
	kf     *koanf.Koanf
	config T
}

func NewConfigManager[T any]() (*ConfigManager[T], error) {
	return NewConfigManagerFrom[T](defaultConfig, os.Getenv(configPathEnv), os.Getenv(configJSONEnv))
}

// NewConfigManagerFrom builds a manager from explicit sources. Empty path or
// inline JSON are skipped.
func NewConfigManagerFrom[T any](defaults []byte, path string, inlineJSON string) (*ConfigManager[T], error) {
	cm := &ConfigManager[T]{kf: koanf.New(".")}

	if len(defaults) > 0 {
		if err := cm.kf.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load default config: %w", err)
		}
	}

	if path != "" {
		var parser koanf.Parser = yaml.Parser()
		if strings.EqualFold(filepath.Ext(path), ".json") {
			parser = json.Parser()
		}
		if err := cm.kf.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if inlineJSON != "" {
		if err := cm.kf.Load(rawbytes.Provider([]byte(inlineJSON)), json.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", configJSONEnv, err)
		}
	}

	if err := cm.kf.UnmarshalWithConf("", &cm.config, koanf.UnmarshalConf{
		Tag: "key",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToSliceHook(","),
			),
			Result:           &cm.config,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return cm, nil
}

// GetConfig returns the decoded config
func (cm *ConfigManager[T]) GetConfig() T {
	return cm.config
}

// Get returns a raw value by dotted key path
func (cm *ConfigManager[T]) Get(key string) interface{} {
	return cm.kf.Get(key)
}

// stringToSliceHook splits plain strings into string slices so list values
// can be given as "a,b,c" in flat overrides
func stringToSliceHook(sep string) mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
			return data, nil
		}
		raw := data.(string)
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
