package backend

import (
	"fmt"
	"sort"
)

// Config is the raw key/value backend configuration. The recognized key set
// is exhaustive; any other key fails resolution with a ConfigError.
type Config map[string]any

// Recognized configuration keys.
const (
	KeyModelName     = "model_name"
	KeyAPIKey        = "api_key"
	KeyEndpoint      = "endpoint"
	KeyTemperature   = "temperature"
	KeyResponses     = "responses"
	KeyResponsesMode = "responses_mode"
)

// FakeModelName selects the deterministic stub backend.
const FakeModelName = "fake-list"

// Fake response dispatch modes.
const (
	ModeCycle = "cycle"
	ModePop   = "pop"
)

var realKeys = map[string]bool{
	KeyModelName:   true,
	KeyAPIKey:      true,
	KeyEndpoint:    true,
	KeyTemperature: true,
}

var fakeOnlyKeys = map[string]bool{
	KeyResponses:     true,
	KeyResponsesMode: true,
}

// validateKeys rejects unrecognized keys up front. The fake-only keys
// (responses, responses_mode) are accepted only when fake mode is selected.
func validateKeys(cfg Config, fakeMode bool) error {
	var unknown []string
	for k := range cfg {
		if realKeys[k] {
			continue
		}
		if fakeOnlyKeys[k] && fakeMode {
			continue
		}
		unknown = append(unknown, k)
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return configErrorf("unknown config keys: %v", unknown)
}

func (c Config) stringValue(key string) (string, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", configErrorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}

func (c Config) floatValue(key string) (*float64, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case float64:
		return &t, nil
	case float32:
		f := float64(t)
		return &f, nil
	case int:
		f := float64(t)
		return &f, nil
	default:
		return nil, configErrorf("%s must be a number, got %T", key, v)
	}
}

// stringSliceValue accepts []string directly or []any of strings (the shape
// produced by generic JSON/YAML decoding).
func (c Config) stringSliceValue(key string) ([]string, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, configErrorf("%s[%d] must be a string, got %T", key, i, e)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, configErrorf("%s must be a list of strings, got %T", key, v)
	}
}

// ProviderSettings carries the validated real-mode settings handed to a
// ProviderFactory.
type ProviderSettings struct {
	ModelName   string
	APIKey      string
	Endpoint    string
	Temperature *float64
}

func (s ProviderSettings) String() string {
	ep := s.Endpoint
	if len(ep) > 5 {
		ep = ep[:5] + "..." // never log full endpoints
	}
	return fmt.Sprintf("model=%s endpoint=%s", s.ModelName, ep)
}
