package utils

import (
	"os"
	"strconv"
)

// GetenvInt returns the integer value of the environment variable, or the default if it is
// unset or unparseable.
func GetenvInt(name string, defaultValue int) int {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return defaultValue
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return val
}
