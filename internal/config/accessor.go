package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Dot paths address config fields by their json names, for example
// "gateway.speech.region" or "channels.telegram.allowFrom".

// GetByPath returns the value at path. A section path returns the whole
// section struct.
func GetByPath(cfg *Config, path string) (any, error) {
	v, err := fieldByPath(cfg, path)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// SetByPath assigns value to the leaf at path. String values are parsed
// into the field's type: booleans, integers and floats as usual, lists as
// comma-separated items. Unknown paths and sections are rejected.
func SetByPath(cfg *Config, path string, value any) error {
	v, err := fieldByPath(cfg, path)
	if err != nil {
		return err
	}
	if v.Kind() == reflect.Struct {
		return fmt.Errorf("%s is a section, set one of its keys instead", path)
	}

	if s, ok := value.(string); ok {
		if err := setFromString(v, s); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return nil
	}

	rv := reflect.ValueOf(value)
	if !rv.IsValid() || !rv.Type().AssignableTo(v.Type()) {
		return fmt.Errorf("%s: cannot assign %T to %s", path, value, v.Type())
	}
	v.Set(rv)
	return nil
}

func setFromString(v reflect.Value, s string) error {
	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("expected true or false, got %q", s)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v.OverflowInt(n) {
			return fmt.Errorf("expected an integer, got %q", s)
		}
		v.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("expected a number, got %q", s)
		}
		v.SetFloat(f)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported list type %s", v.Type())
		}
		items := []string{}
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		v.Set(reflect.ValueOf(items).Convert(v.Type()))
	default:
		return fmt.Errorf("unsupported field type %s", v.Type())
	}
	return nil
}

func fieldByPath(cfg *Config, path string) (reflect.Value, error) {
	if path == "" {
		return reflect.Value{}, errors.New("empty path")
	}
	v := reflect.ValueOf(cfg).Elem()
	for _, key := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("cannot traverse into %s at %s", v.Type(), key)
		}
		next, ok := fieldByJSONName(v, key)
		if !ok {
			return reflect.Value{}, fmt.Errorf("key not found: %s", path)
		}
		v = next
	}
	return v, nil
}

func fieldByJSONName(v reflect.Value, key string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if f := t.Field(i); f.IsExported() && jsonName(f) == key {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

// Sanitize returns a copy of cfg with every credential masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	for _, s := range c.secrets() {
		if *s != "" {
			*s = maskString(*s)
		}
	}
	return &c
}

func (c *Config) secrets() []*string {
	return []*string{
		&c.Gateway.Completion.APIKey,
		&c.Gateway.Vision.APIKey,
		&c.Gateway.Speech.APIKey,
		&c.BotFramework.AppPassword,
		&c.Channels.Telegram.Token,
		&c.Channels.Webhook.Secret,
	}
}

// maskString keeps the first and last four characters.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every settable leaf path with its current value,
// including empty optional fields.
func ListPaths(cfg *Config) map[string]any {
	out := make(map[string]any)
	collectLeaves("", reflect.ValueOf(cfg).Elem(), out)
	return out
}

func collectLeaves(prefix string, v reflect.Value, out map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		path := jsonName(f)
		if prefix != "" {
			path = prefix + "." + path
		}
		if fv := v.Field(i); fv.Kind() == reflect.Struct {
			collectLeaves(path, fv, out)
		} else {
			out[path] = fv.Interface()
		}
	}
}
