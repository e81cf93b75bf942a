// Package schema defines the ordered feature contract shared between the
// upstream feature extractor, this trainer, and the downstream scorer.
package schema

import (
	"errors"
	"fmt"
)

// Schema is an immutable ordered list of unique feature names. Its length
// and order are the binding contract for every sample that flows through
// the pipeline; it is constructed once and passed explicitly.
type Schema struct {
	names []string
}

// New creates a Schema from the given feature names.
func New(names []string) (*Schema, error) {
	if len(names) == 0 {
		return nil, errors.New("schema requires at least one feature name")
	}

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			return nil, errors.New("schema feature names must be non-empty")
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("duplicate feature name %q", name)
		}
		seen[name] = struct{}{}
	}

	owned := make([]string, len(names))
	copy(owned, names)

	return &Schema{names: owned}, nil
}

// Len returns the number of features.
func (s *Schema) Len() int {
	return len(s.names)
}

// Names returns the feature names in schema order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Default returns the traffic feature contract produced by the upstream
// extractor. The order must stay in sync with the extractor's feature
// enum; any drift shows up as a fatal column-count mismatch at ingestion.
func Default() *Schema {
	s, err := New([]string{
		"REQUEST_TIME_S",
		"BYTES_SENT",
		"HTTP_STATUS_4XX",
		"HTTP_STATUS_5XX",
		"IS_UA_MISSING",
		"IS_UA_HEADLESS",
		"IS_UA_KNOWN_BAD",
		"IS_UA_CYCLING",
		"IS_PATH_NEW_FOR_IP",
		"IP_REQ_TIME_ZSCORE",
		"IP_BYTES_SENT_ZSCORE",
		"IP_ERROR_EVENT_ZSCORE",
		"IP_REQ_VOL_ZSCORE",
		"PATH_REQ_TIME_ZSCORE",
		"PATH_BYTES_SENT_ZSCORE",
		"PATH_ERROR_EVENT_ZSCORE",
		"SESSION_DURATION_S",
		"SESSION_REQ_COUNT",
		"SESSION_UNIQUE_PATH_COUNT",
		"SESSION_ERROR_4XX_COUNT",
		"SESSION_ERROR_5XX_COUNT",
		"SESSION_FAILED_LOGIN_COUNT",
		"SESSION_AVG_TIME_BETWEEN_REQS_S",
		"SESSION_POST_TO_GET_RATIO",
		"SESSION_UA_CHANGE_COUNT",
		"SESSION_BYTES_SENT_MEAN",
		"SESSION_REQ_TIME_MEAN",
	})
	if err != nil {
		panic(err) // the built-in contract is known good
	}
	return s
}
