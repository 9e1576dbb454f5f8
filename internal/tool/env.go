package tool

import (
	"os"
	"strings"
)

// parseEnvFile reads KEY=VALUE lines from a dotenv-style file. Blank lines
// and comments are skipped, a leading "export " and matching outer quotes
// are stripped.
func parseEnvFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var envVars []string
	for _, line := range strings.Split(string(data), "\n") {
		s := strings.TrimSpace(line)
		if s == "" || s[0] == '#' {
			continue
		}
		s = strings.TrimPrefix(s, "export ")
		key, val, found := strings.Cut(s, "=")
		if !found {
			continue
		}
		envVars = append(envVars, key+"="+stripQuotes(val))
	}
	return envVars, nil
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
