package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// envFileVar names an alternate .env location.
const envFileVar = "FACEOMATIC_ENV_FILE"

// loadDotEnv populates the process environment from a .env file. Variables
// already set in the environment win. A missing file is not an error.
func loadDotEnv() error {
	path := ".env"
	if value, ok := os.LookupEnv(envFileVar); ok && strings.TrimSpace(value) != "" {
		path = strings.TrimSpace(value)
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func lookupEnv(target *string, names ...string) {
	if strings.TrimSpace(*target) != "" {
		*target = strings.TrimSpace(*target)
		return
	}
	for _, name := range names {
		if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
			return
		}
	}
}
