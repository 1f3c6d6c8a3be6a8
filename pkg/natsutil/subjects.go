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

// Package natsutil carries connectivity queries and events between cluster
// nodes over NATS.
package natsutil

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "connectivity"

const (
	metricsToken = "metrics"
	statusToken  = "status"
	eventsToken  = "events"
)

var errInvalidSubject = errors.New("subject does not denote a connectivity query")

// Subjects builds the subjects of one deployment.
type Subjects struct {
	Prefix string
}

func NewSubjects(prefix string) Subjects {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	return Subjects{Prefix: strings.TrimSuffix(prefix, ".")}
}

// Metrics is the query subject for the metrics of a connection.
func (s Subjects) Metrics(connectionID string) string {
	return fmt.Sprintf("%s.%s.%s", s.Prefix, connectionID, metricsToken)
}

// Status is the query subject for the status of a connection.
func (s Subjects) Status(connectionID string) string {
	return fmt.Sprintf("%s.%s.%s", s.Prefix, connectionID, statusToken)
}

// AllMetrics matches the metrics queries of every connection.
func (s Subjects) AllMetrics() string {
	return fmt.Sprintf("%s.*.%s", s.Prefix, metricsToken)
}

// AllStatus matches the status queries of every connection.
func (s Subjects) AllStatus() string {
	return fmt.Sprintf("%s.*.%s", s.Prefix, statusToken)
}

// StatusEvent is the event subject of resource status changes of a connection.
func (s Subjects) StatusEvent(connectionID string) string {
	return fmt.Sprintf("%s.%s.%s.%s", s.Prefix, eventsToken, connectionID, statusToken)
}

// AllEvents matches every event subject.
func (s Subjects) AllEvents() string {
	return fmt.Sprintf("%s.%s.>", s.Prefix, eventsToken)
}

// ConnectionID extracts the connection from a query subject.
func (s Subjects) ConnectionID(subject string) (string, error) {
	rest, ok := strings.CutPrefix(subject, s.Prefix+".")
	if !ok {
		return "", fmt.Errorf("%w: %s", errInvalidSubject, subject)
	}

	tokens := strings.Split(rest, ".")
	if len(tokens) != 2 || tokens[0] == "" || (tokens[1] != metricsToken && tokens[1] != statusToken) {
		return "", fmt.Errorf("%w: %s", errInvalidSubject, subject)
	}

	return tokens[0], nil
}

// ensureSubjectList appends subject unless one of subjects already matches it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, existing := range subjects {
		if subjectMatches(existing, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// subjectMatches applies NATS wildcard semantics of pattern to subject.
func subjectMatches(pattern, subject string) bool {
	patternTokens := strings.Split(pattern, ".")
	subjectTokens := strings.Split(subject, ".")

	for i, token := range patternTokens {
		if token == ">" {
			return len(subjectTokens) > i
		}

		if i >= len(subjectTokens) {
			return false
		}

		if token != "*" && token != subjectTokens[i] {
			return false
		}
	}

	return len(patternTokens) == len(subjectTokens)
}
