/*
Copyright 2026 The Flux authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

const (
	// DefaultConfigFile is looked up next to the executable.
	DefaultConfigFile = "config.json"

	flagConfig = "config"
	envConfig  = "ARTIFACTORY_MIRROR_CONFIG"

	flagAPIKey = "api-key"
	envAPIKey  = "ARTIFACTORY_API_KEY"

	flagDryRun = "dry-run"
)

// Options holds the command line settings.
type Options struct {
	// ConfigPath is the location of the configuration file.
	ConfigPath string

	// APIKey authenticates against Artifactory.
	APIKey string

	// DryRun disables all deletions and downloads.
	DryRun bool
}

// BindFlags will parse the given pflag.FlagSet and set the Options accordingly.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigPath, flagConfig,
		envOrDefault(envConfig, DefaultConfigPath()),
		"The path to the JSON or YAML configuration file.")

	fs.StringVar(&o.APIKey, flagAPIKey,
		envOrDefault(envAPIKey, ""),
		fmt.Sprintf("The Artifactory API key, defaults to the %s environment variable.", envAPIKey))

	fs.BoolVar(&o.DryRun, flagDryRun, false,
		"Report what would be downloaded and deleted without changing anything.")
}

// Validate checks that the required options are set.
func (o *Options) Validate() error {
	if o.APIKey == "" {
		return fmt.Errorf("an API key is required, set --%s or %s", flagAPIKey, envAPIKey)
	}
	if o.ConfigPath == "" {
		return fmt.Errorf("--%s must not be empty", flagConfig)
	}
	return nil
}

// DefaultConfigPath returns the path of the configuration file next to
// the running executable.
func DefaultConfigPath() string {
	exe, err := os.Executable()
	if err != nil {
		return DefaultConfigFile
	}
	return filepath.Join(filepath.Dir(exe), DefaultConfigFile)
}

// envOrDefault returns the value of the environment variable named by the key.
// If the variable is empty or not present, it returns the defaultValue instead.
func envOrDefault(envName, defaultValue string) string {
	ret := os.Getenv(envName)
	if ret != "" {
		return ret
	}

	return defaultValue
}
