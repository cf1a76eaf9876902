package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvString returns the value of an environment variable and whether it was
// set to a non-empty value.
func EnvString(key string) (string, bool) {
	value := os.Getenv(key)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses an integer environment variable. The bool reports whether the
// variable was set; the error reports a set-but-unparseable value.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s=%q is not an integer", key, raw)
	}
	return value, true, nil
}
