// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package configutil provides an interface for loading and validating
// configuration data from YAML files.
//
// Other YAML files can be included via the `extends` keyword. Given
// config files:
//
//	base.yaml:
//	  x: 1
//
//	dev.yaml:
//	  extends: base.yaml
//	  y: 2
//
// loading dev.yaml yields both x and y, with values in the extending
// file taking precedence over the extended one.
package configutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v2"
)

// ErrCycleRef is returned when there are circular dependencies detected in
// configuration files extending each other.
var ErrCycleRef = errors.New("cyclic reference in configuration extends detected")

// Extends define a keyword in config for extending a base configuration file.
type Extends struct {
	Extends string `yaml:"extends"`
}

// ValidationError contains the failed validation fields.
type ValidationError struct {
	errorMap validator.ErrorMap
}

// ErrForField returns the validation error for the given field.
func (e ValidationError) ErrForField(name string) validator.ErrorArray {
	return e.errorMap[name]
}

func (e ValidationError) Error() string {
	var w strings.Builder
	fmt.Fprintf(&w, "validation failed")
	for f, errs := range e.errorMap {
		fmt.Fprintf(&w, "   %s: %v\n", f, errs)
	}
	return w.String()
}

// Load loads configuration based on config file at path, resolving any
// extends chains, and validates the merged result.
func Load(path string, config interface{}) error {
	filenames, err := resolveExtends(path, readExtends)
	if err != nil {
		return err
	}
	return loadFiles(config, filenames)
}

type extendsFn func(string) (string, error)

// resolveExtends returns the list of config files to load in merge order,
// base first. Returns ErrCycleRef if an extends chain loops back on itself.
func resolveExtends(fpath string, readExtends extendsFn) ([]string, error) {
	filenames := []string{fpath}
	seen := map[string]struct{}{fpath: {}}
	for {
		base, err := readExtends(fpath)
		if err != nil {
			return nil, err
		}
		if base == "" {
			break
		}
		if !filepath.IsAbs(base) {
			base = filepath.Join(filepath.Dir(fpath), base)
		}
		if _, ok := seen[base]; ok {
			return nil, ErrCycleRef
		}
		seen[base] = struct{}{}
		filenames = append([]string{base}, filenames...)
		fpath = base
	}
	return filenames, nil
}

func readExtends(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read config: %s", err)
	}
	var cfg Extends
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return "", fmt.Errorf("unmarshal config: %s", err)
	}
	return cfg.Extends, nil
}

// loadFiles loads a list of files, deep-merging values in order, with
// values in later files taking precedence. Validation runs once over the
// merged result.
func loadFiles(config interface{}, fnames []string) error {
	for _, fname := range fnames {
		b, err := os.ReadFile(fname)
		if err != nil {
			return fmt.Errorf("read config: %s", err)
		}
		if err := yaml.Unmarshal(b, config); err != nil {
			return fmt.Errorf("unmarshal config: %s", err)
		}
	}
	if err := validator.Validate(config); err != nil {
		errMap, ok := err.(validator.ErrorMap)
		if !ok {
			return fmt.Errorf("validate config: %s", err)
		}
		return ValidationError{errMap}
	}
	return nil
}
