// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"sigs.k8s.io/yaml"
)

const (
	versionEnvOnly    = "no-config"
	versionStaticFile = "static-file"
)

// Load reads the configuration file, applies the AEGIS_* environment
// overrides and default values, then validates the result.
// If the filename is empty the configuration is built from the
// environment and defaults only.
func Load(filename string) (*ConfigSpec, error) {
	spec := &ConfigSpec{Version: versionEnvOnly}
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		if spec, err = parse(data); err != nil {
			return nil, fmt.Errorf("invalid configuration in config file '%s': %w", filename, err)
		}
		spec.Version = versionStaticFile
	}

	if err := envconfig.Process(EnvPrefix, spec); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return spec, nil
}

// parse decodes the config document, rejecting fields that are not
// part of the schema.
func parse(data []byte) (*ConfigSpec, error) {
	var conf Config
	if err := yaml.UnmarshalStrict(data, &conf); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf.Spec, nil
}
