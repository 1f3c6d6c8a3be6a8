/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/carverauto/connectivity/pkg/logger"
)

var (
	errConfigPathRequired = errors.New("config path is required")
	errUnsetVariable      = errors.New("config references unset environment variables")
	errTrailingData       = errors.New("unexpected data after the JSON document")
)

// envReference matches ${NAME}. Bare $ is left alone so MQTT topics such as
// $share/group/devices survive.
//
//nolint:gochecknoglobals // compiled once
var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// FileConfigLoader loads configuration from a local JSON file. ${NAME}
// references are replaced by environment variables before decoding, so
// credentials such as the NATS URL can stay out of the file.
type FileConfigLoader struct {
	logger logger.Logger
}

// NewFileConfigLoader creates a file config loader.
func NewFileConfigLoader(log logger.Logger) *FileConfigLoader {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &FileConfigLoader{logger: log}
}

// Load implements ConfigLoader by reading and unmarshaling a JSON file.
// Unknown fields, unset variables and trailing data are rejected.
func (f *FileConfigLoader) Load(_ context.Context, path string, dst interface{}) error {
	if path == "" {
		return errConfigPathRequired
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	data, expanded, err := expandEnv(data)
	if err != nil {
		return fmt.Errorf("'%s': %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
	}

	if dec.More() {
		return fmt.Errorf("'%s': %w", path, errTrailingData)
	}

	if f.logger != nil {
		f.logger.Info().Str("path", path).Int("env_references", expanded).Msg("Loaded configuration file")
	}

	return nil
}

// expandEnv substitutes ${NAME} references, JSON-escaping the values. It
// returns the number of references replaced.
func expandEnv(data []byte) ([]byte, int, error) {
	var missing []string

	expanded := 0

	out := envReference.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(envReference.FindSubmatch(ref)[1])

		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)

			return ref
		}

		expanded++

		quoted, _ := json.Marshal(value)

		return quoted[1 : len(quoted)-1]
	})

	if len(missing) > 0 {
		sort.Strings(missing)

		return nil, 0, fmt.Errorf("%w: %s", errUnsetVariable, strings.Join(missing, ", "))
	}

	return out, expanded, nil
}
