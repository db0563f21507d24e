package configuration

import (
	"bytes"
	_ "embed"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const EnvPrefix = "PPPP"

// Locations tried in order when no config file is given explicitly.
var searchPaths = []string{"pppp.yaml", "~/.pppp.yaml"}

//go:embed config.yaml
var defaultConfig []byte

// Load builds the configuration from, in increasing order of precedence, the embedded defaults, a user config file,
// PPPP_ prefixed environment variables and any flags already bound to v.
// If path is empty, ./pppp.yaml and then ~/.pppp.yaml are tried. Neither has to exist.
func Load(v *viper.Viper, path string) (Configuration, error) {
	var config Configuration

	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultConfig)); err != nil {
		return config, errors.Wrap(err, "error reading default configuration")
	}

	userConfig, err := findUserConfig(path)
	if err != nil {
		return config, err
	}
	if userConfig != "" {
		log.Debugf("merging configuration from %s", userConfig)
		v.SetConfigFile(userConfig)
		if err := v.MergeInConfig(); err != nil {
			return config, errors.Wrapf(err, "error reading configuration from %s", userConfig)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	decodeHooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&config, decodeHooks); err != nil {
		return config, errors.Wrap(err, "error decoding configuration")
	}
	return config, nil
}

func findUserConfig(path string) (string, error) {
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return "", errors.WithStack(err)
		}
		if _, err := os.Stat(expanded); err != nil {
			return "", errors.Wrapf(err, "config file %s", path)
		}
		return expanded, nil
	}
	for _, candidate := range searchPaths {
		expanded, err := homedir.Expand(candidate)
		if err != nil {
			continue
		}
		if _, err := os.Stat(expanded); err == nil {
			return expanded, nil
		}
	}
	return "", nil
}

// LogValidationErrors logs one line per field that failed validation.
func LogValidationErrors(err error) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return
	}
	for _, err := range validationErrors {
		fieldName := stripPrefix(err.Namespace())
		switch err.Tag() {
		case "required":
			log.Errorf("ConfigError: Field %s is required but was not found", fieldName)
		default:
			log.Errorf("ConfigError: Field %s has invalid value %v: %s", fieldName, err.Value(), err.Tag())
		}
	}
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
