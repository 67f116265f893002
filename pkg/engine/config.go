package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ConfigSchemaURL is the location of the published JSON schema for .checkuprc files.
const ConfigSchemaURL = "https://raw.githubusercontent.com/checkupjs/checkup/master/packages/core/src/schemas/config-schema.json"

// Config is the resolved checkup configuration.
type Config struct {
	// Schema is the "$schema" reference written at the top of the file.
	Schema string `json:"$schema"`

	// ExcludePaths are glob patterns removed from the analyzed path set.
	ExcludePaths []string `json:"excludePaths"`

	// Plugins lists plugin identifiers in load order. Entries are unique.
	Plugins []string `json:"plugins"`

	// Tasks maps fully qualified task names to their configuration.
	Tasks map[string]TaskConfigValue `json:"tasks"`
}

// DefaultConfig returns a fresh copy of the configuration used when no
// config file is present.
func DefaultConfig() *Config {
	return &Config{
		Schema:       ConfigSchemaURL,
		ExcludePaths: []string{},
		Plugins:      []string{},
		Tasks:        map[string]TaskConfigValue{},
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := &Config{
		Schema:       c.Schema,
		ExcludePaths: append([]string{}, c.ExcludePaths...),
		Plugins:      append([]string{}, c.Plugins...),
		Tasks:        make(map[string]TaskConfigValue, len(c.Tasks)),
	}
	for name, value := range c.Tasks {
		clone.Tasks[name] = value.clone()
	}

	return clone
}

// TaskConfigFor resolves the configuration entry for a fully qualified task name.
func (c *Config) TaskConfigFor(fullyQualifiedName string) TaskConfig {
	if c == nil {
		return ParseConfigTuple(nil)
	}
	value, ok := c.Tasks[fullyQualifiedName]
	if !ok {
		return ParseConfigTuple(nil)
	}
	return ParseConfigTuple(&value)
}

// MarshalJSON writes the config with a stable key order and sorted task names.
func (c Config) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	fields := []struct {
		key   string
		value interface{}
	}{
		{"$schema", c.Schema},
		{"excludePaths", nonNilStrings(c.ExcludePaths)},
		{"plugins", nonNilStrings(c.Plugins)},
	}
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONField(&buf, f.key, f.value); err != nil {
			return nil, err
		}
	}

	buf.WriteString(`,"tasks":{`)
	names := make([]string, 0, len(c.Tasks))
	for name := range c.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONField(&buf, name, c.Tasks[name]); err != nil {
			return nil, err
		}
	}
	buf.WriteString("}}")

	return buf.Bytes(), nil
}

func writeJSONField(buf *bytes.Buffer, key string, value interface{}) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// TaskState is the enable flag of a task config entry.
type TaskState string

const (
	// TaskStateOn enables a task.
	TaskStateOn TaskState = "on"

	// TaskStateOff disables a task.
	TaskStateOff TaskState = "off"
)

// Validate checks that the state is one of the recognized values.
func (s TaskState) Validate() error {
	switch s {
	case TaskStateOn, TaskStateOff:
		return nil
	default:
		return fmt.Errorf("invalid task state: %q", string(s))
	}
}

// TaskConfigValue is a per-task config entry. It is either a bare state
// ("on" or "off") or a tuple of state and options (["on", {...}]).
type TaskConfigValue struct {
	State   TaskState
	Options map[string]interface{}

	tuple bool
}

// On returns a bare "on" entry.
func On() TaskConfigValue {
	return TaskConfigValue{State: TaskStateOn}
}

// Off returns a bare "off" entry.
func Off() TaskConfigValue {
	return TaskConfigValue{State: TaskStateOff}
}

// Tuple returns a [state, options] entry.
func Tuple(state TaskState, options map[string]interface{}) TaskConfigValue {
	if options == nil {
		options = map[string]interface{}{}
	}
	return TaskConfigValue{State: state, Options: options, tuple: true}
}

// IsTuple reports whether the entry was written in tuple form.
func (v TaskConfigValue) IsTuple() bool {
	return v.tuple
}

func (v TaskConfigValue) clone() TaskConfigValue {
	out := TaskConfigValue{State: v.State, tuple: v.tuple}
	if v.Options != nil {
		out.Options = cloneOptions(v.Options)
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (v TaskConfigValue) MarshalJSON() ([]byte, error) {
	if err := v.State.Validate(); err != nil {
		return nil, err
	}
	if !v.tuple {
		return json.Marshal(string(v.State))
	}
	opts := v.Options
	if opts == nil {
		opts = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{string(v.State), opts})
}

// UnmarshalJSON implements json.Unmarshaler. Anything other than the three
// recognized shapes is rejected.
func (v *TaskConfigValue) UnmarshalJSON(data []byte) error {
	var state string
	if err := json.Unmarshal(data, &state); err == nil {
		parsed := TaskState(state)
		if err := parsed.Validate(); err != nil {
			return err
		}
		*v = TaskConfigValue{State: parsed}
		return nil
	}

	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("task config must be \"on\", \"off\" or [state, options]: %w", err)
	}
	if len(tuple) != 2 {
		return fmt.Errorf("task config tuple must have exactly 2 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &state); err != nil {
		return fmt.Errorf("task config tuple state must be a string: %w", err)
	}
	parsed := TaskState(state)
	if err := parsed.Validate(); err != nil {
		return err
	}
	var opts map[string]interface{}
	if err := json.Unmarshal(tuple[1], &opts); err != nil || opts == nil {
		return fmt.Errorf("task config tuple options must be an object")
	}

	*v = Tuple(parsed, opts)
	return nil
}

// TaskConfig is the resolved (enabled, options) pair for a task.
type TaskConfig struct {
	Enabled bool                   `json:"enabled"`
	Options map[string]interface{} `json:"options"`
}

// ParseConfigTuple normalizes a task config entry. A nil entry resolves to
// (true, {}). Every consumer of task config goes through this function.
func ParseConfigTuple(value *TaskConfigValue) TaskConfig {
	if value == nil {
		return TaskConfig{Enabled: true, Options: map[string]interface{}{}}
	}

	opts := map[string]interface{}{}
	if value.tuple && value.Options != nil {
		opts = cloneOptions(value.Options)
	}

	return TaskConfig{
		Enabled: value.State == TaskStateOn,
		Options: opts,
	}
}

func cloneOptions(in map[string]interface{}) map[string]interface{} {
	// Options come from JSON, so a JSON round trip is a faithful deep copy.
	data, err := json.Marshal(in)
	if err != nil {
		return copyOptionsShallow(in)
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(data, &out); err != nil {
		return copyOptionsShallow(in)
	}
	return out
}

func copyOptionsShallow(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
