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

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	errInvalidDuration    = errors.New("invalid duration")
	errInvalidISODuration = errors.New("invalid ISO-8601 duration")
)

// Duration is a wrapper around time.Duration for JSON configuration values.
// It accepts Go duration strings ("10s") or numbers interpreted as nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// FormatISODuration renders d in the ISO-8601 form used on the wire,
// e.g. PT1M, PT10S, PT24H. Days are expressed as hours.
func FormatISODuration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}

	var b strings.Builder

	if d < 0 {
		b.WriteByte('-')

		d = -d
	}

	b.WriteString("PT")

	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute

	if hours > 0 {
		b.WriteString(strconv.FormatInt(int64(hours), 10))
		b.WriteByte('H')
	}

	if minutes > 0 {
		b.WriteString(strconv.FormatInt(int64(minutes), 10))
		b.WriteByte('M')
	}

	if d > 0 {
		seconds := strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
		b.WriteString(seconds)
		b.WriteByte('S')
	}

	return b.String()
}

// ParseISODuration parses the subset of ISO-8601 durations with day, hour,
// minute and (fractional) second designators, e.g. P1D, PT1H30M, PT0.5S.
func ParseISODuration(s string) (time.Duration, error) {
	raw := s

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("%w: %q", errInvalidISODuration, raw)
	}

	s = s[1:]

	var total time.Duration

	inTime := false

	for len(s) > 0 {
		if s[0] == 'T' {
			if inTime {
				return 0, fmt.Errorf("%w: %q", errInvalidISODuration, raw)
			}

			inTime = true
			s = s[1:]

			continue
		}

		end := strings.IndexAny(s, "DHMS")
		if end <= 0 {
			return 0, fmt.Errorf("%w: %q", errInvalidISODuration, raw)
		}

		value, err := strconv.ParseFloat(s[:end], 64)
		if err != nil || value < 0 {
			return 0, fmt.Errorf("%w: %q", errInvalidISODuration, raw)
		}

		var unit time.Duration

		switch designator := s[end]; {
		case designator == 'D' && !inTime:
			unit = 24 * time.Hour
		case designator == 'H' && inTime:
			unit = time.Hour
		case designator == 'M' && inTime:
			unit = time.Minute
		case designator == 'S' && inTime:
			unit = time.Second
		default:
			return 0, fmt.Errorf("%w: %q", errInvalidISODuration, raw)
		}

		total += time.Duration(value * float64(unit))
		s = s[end+1:]
	}

	if negative {
		total = -total
	}

	return total, nil
}
