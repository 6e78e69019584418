package shared

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	// Version is stamped into every log line by the CLI.
	Version = "1.1.0"
	AppName = "WorkSuite Voice"
)

// EnvParser converts a raw environment value.
type EnvParser[T any] func(raw string) (T, error)

func GetenvString(raw string) (string, error) { return raw, nil }

func GetenvBool(raw string) (bool, error) { return strconv.ParseBool(raw) }

func GetenvDuration(raw string) (time.Duration, error) { return time.ParseDuration(raw) }

// Getenv reads key and parses it. Missing keys yield def, or an error when required.
func Getenv[T any](parse EnvParser[T], key string, required bool, def T) (T, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		if required {
			return def, fmt.Errorf("environment variable %s is required", key)
		}
		return def, nil
	}
	v, err := parse(raw)
	if err != nil {
		return def, fmt.Errorf("parsing environment variable %s: %w", key, err)
	}
	return v, nil
}

func MustGetenv[T any](parse EnvParser[T], key string, required bool, def T) T {
	v, err := Getenv(parse, key, required, def)
	if err != nil {
		panic(err)
	}
	return v
}
