package config

import (
	"fmt"
	"strconv"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Load fills cfg from the process environment using its `env` and `env-default` tags.
// A .env file in the working directory is applied first when present; real env vars win.
func Load(cfg any) error {
	_ = godotenv.Load()
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func Port(key, value string) error {
	p, err := strconv.Atoi(value)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("%s must be a valid TCP port (got %q)", key, value)
	}
	return nil
}
