package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source describes how to load a secret value. File wins over Env, Env wins
// over Value.
type Source struct {
	// Name is used in error messages to give more context about the secret.
	Name string
	// Value is an inline secret value provided via configuration.
	Value string
	// File points to a file containing the secret value.
	File string
	// Env names an environment variable holding the secret.
	Env string
	// Optional makes an unconfigured secret resolve to an empty string.
	Optional bool
}

// Load returns the trimmed secret. A configured file or variable that turns
// out empty is always an error.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if value, ok := os.LookupEnv(env); ok {
			secret := strings.TrimSpace(value)
			if secret == "" {
				return "", fmt.Errorf("%s variable %s is empty", name, env)
			}
			return secret, nil
		}
	}

	if secret := strings.TrimSpace(src.Value); secret != "" {
		return secret, nil
	}

	if src.Optional {
		return "", nil
	}
	return "", fmt.Errorf("%s is not configured", name)
}
