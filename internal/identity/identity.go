// Package identity provides a persistent local agent ID, used to build
// the default log_prefix so one agent's log lines can be told apart
// from another's.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AgentID returns this machine's persistent agent ID, generating and
// caching one under ~/.wsagent/id on first call.
func AgentID() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".wsagent")
	idFile := filepath.Join(configDir, "id")

	if data, err := os.ReadFile(idFile); err == nil {
		return strings.TrimSpace(string(data)), nil
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	id, err := generateID()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}

	if err := os.WriteFile(idFile, []byte(id), 0644); err != nil {
		return "", fmt.Errorf("failed to write id file: %w", err)
	}

	return id, nil
}

func generateID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
