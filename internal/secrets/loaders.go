package secrets

import (
	"fmt"
	"os"
	"strings"
)

// EnvLoader returns a Loader that reads the specified environment variables.
// Missing variables are silently omitted from the result map.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// FileLoader returns a Loader that reads each mapped file into its key,
// trimming trailing whitespace. Empty paths are skipped; a path that is
// set but unreadable is an error.
func FileLoader(paths map[string]string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(paths))
		for k, path := range paths {
			if path == "" {
				continue
			}
			data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied secret path
			if err != nil {
				return nil, fmt.Errorf("read secret %s: %w", k, err)
			}
			vals[k] = strings.TrimSpace(string(data))
		}
		return vals, nil
	}
}

// Chain merges loaders in order; later loaders override earlier ones.
func Chain(loaders ...Loader) Loader {
	return func() (map[string]string, error) {
		merged := make(map[string]string)
		for _, load := range loaders {
			vals, err := load()
			if err != nil {
				return nil, err
			}
			for k, v := range vals {
				merged[k] = v
			}
		}
		return merged, nil
	}
}
