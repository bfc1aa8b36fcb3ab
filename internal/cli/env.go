package cli

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// overrideVars name files that win over the --env flag when set.
var overrideVars = []string{"CHATSENSE_ENV_FILE", "HORSE_ENV_FILE"}

// EnvLoader loads .env files with a predictable override order.
type EnvLoader struct {
	value       *string
	defaultPath string
	explicit    func() bool
}

// AddEnvFlag registers an --env flag and returns an EnvLoader.
func AddEnvFlag(fset *flag.FlagSet, defaultPath, description string) *EnvLoader {
	if fset == nil {
		fset = flag.CommandLine
	}
	if defaultPath == "" {
		defaultPath = ".env"
	}
	if description == "" {
		description = "Path to the .env file"
	}

	value := fset.String("env", defaultPath, description)
	return &EnvLoader{
		value:       value,
		defaultPath: defaultPath,
		explicit: func() bool {
			set := false
			fset.Visit(func(f *flag.Flag) {
				if f.Name == "env" {
					set = true
				}
			})
			return set
		},
	}
}

// Load resolves and loads environment variables using the configured flag value.
// A missing default file is not an error: chatsense runs fine from the process
// environment alone. A file named explicitly (flag or override variable) must load.
func (l *EnvLoader) Load() (string, error) {
	if l == nil {
		return "", fmt.Errorf("env loader is nil")
	}

	log.SetOutput(os.Stderr)

	for _, envVar := range overrideVars {
		custom := strings.TrimSpace(os.Getenv(envVar))
		if custom == "" {
			continue
		}
		if err := godotenv.Overload(custom); err != nil {
			return "", fmt.Errorf("load %s=%s: %w", envVar, custom, err)
		}
		log.Printf("Loaded environment from %s: %s", envVar, custom)
		return custom, nil
	}

	requested := strings.TrimSpace(derefString(l.value))
	if requested == "" {
		requested = l.defaultPath
	}

	err := godotenv.Overload(requested)
	if err == nil {
		log.Printf("Loaded environment from: %s", requested)
		return requested, nil
	}

	base := filepath.Base(requested)
	if base != "" && base != requested {
		if err := godotenv.Overload(base); err == nil {
			log.Printf("Loaded environment from basename fallback: %s", base)
			return base, nil
		}
	}

	if l.explicit != nil && l.explicit() {
		return "", fmt.Errorf("failed to load env file from %s: %w", requested, err)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return "", fmt.Errorf("failed to load env file from %s: %w", requested, err)
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
