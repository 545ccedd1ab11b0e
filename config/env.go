package config

import (
	"os"
	"regexp"

	"k8s.io/klog/v2"
)

// GetEnv returns the value of key, or fallback when it is unset
func GetEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		klog.V(4).InfoS("Environment variable not set, using fallback", "key", key)
		return fallback
	}
	return value
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvRefs replaces ${VAR} with the value of VAR, empty when unset.
// Any other $ is kept as written.
func ExpandEnvRefs(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(envRef.FindStringSubmatch(ref)[1])
	})
}
