package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type seedUser struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SeedFromFile creates users listed in a JSON file of
// [{"username": ..., "password": ...}] entries. Existing usernames are
// skipped so seeding is idempotent across restarts.
func SeedFromFile(ctx context.Context, store UserStore, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading seed file: %w", err)
	}

	var seeds []seedUser
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return 0, fmt.Errorf("parsing seed file: %w", err)
	}

	created := 0
	for _, s := range seeds {
		if s.Username == "" || s.Password == "" {
			return created, fmt.Errorf("seed entry missing username or password")
		}
		_, err := store.Create(ctx, s.Username, s.Password)
		if errors.Is(err, ErrUserExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seeding user %s: %w", s.Username, err)
		}
		created++
	}
	return created, nil
}
