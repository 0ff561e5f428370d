package env

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadDotEnv reads KEY=value pairs from a .env file without touching the
// process environment. See ParseDotEnv for the accepted syntax.
func LoadDotEnv(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open env file: %w", err)
	}
	defer f.Close()
	return ParseDotEnv(f, path)
}

// ParseDotEnv reads KEY=value lines. Blank lines and # comments are skipped,
// an export prefix is ignored, matching single or double quotes are stripped
// and an unquoted value ends at " #". name prefixes line errors.
func ParseDotEnv(r io.Reader, name string) (map[string]string, error) {
	vars := make(map[string]string)
	scanner := bufio.NewScanner(r)

	for n := 1; scanner.Scan(); n++ {
		key, value, skip, ok := parseDotEnvLine(scanner.Text())
		switch {
		case skip:
			continue
		case !ok:
			return nil, fmt.Errorf("%s:%d: want KEY=value", name, n)
		}
		vars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	return vars, nil
}

func parseDotEnvLine(line string) (key, value string, skip, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return "", "", true, true
	}

	key, value, found := strings.Cut(strings.TrimPrefix(line, "export "), "=")
	if key = strings.TrimSpace(key); !found || key == "" {
		return "", "", false, false
	}

	value = strings.TrimSpace(value)
	if isQuoted(value) {
		return key, value[1 : len(value)-1], false, true
	}
	if before, _, cut := strings.Cut(value, " #"); cut {
		value = strings.TrimSpace(before)
	}
	return key, value, false, true
}

func isQuoted(v string) bool {
	return len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0]
}

// LoadDotEnvFiles loads every file in order; later files win
func LoadDotEnvFiles(paths ...string) (map[string]string, error) {
	result := make(map[string]string)
	for _, path := range paths {
		vars, err := LoadDotEnv(path)
		if err != nil {
			return nil, err
		}
		for k, v := range vars {
			result[k] = v
		}
	}
	return result, nil
}

// ParseAssignments parses name=value pairs such as repeated --var flags
func ParseAssignments(pairs []string) (map[string]string, error) {
	result := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q, want name=value", pair)
		}
		result[key] = value
	}
	return result, nil
}

// MergeVariables combines sources, later ones taking precedence
func MergeVariables(sources ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, src := range sources {
		for k, v := range src {
			result[k] = v
		}
	}
	return result
}
