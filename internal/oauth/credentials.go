package oauth

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
)

const SchemaVersion = 1

// Credentials are the immutable client-credentials pair.
type Credentials struct {
	SchemaVersion int    `json:"schema_version,omitempty"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
}

func LoadCredentials(path string) (Credentials, error) {
	if err := checkSecretFile(path); err != nil {
		return Credentials{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	return DecodeCredentials(data)
}

func DecodeCredentials(data []byte) (Credentials, error) {
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

func (c Credentials) Validate() error {
	if c.SchemaVersion != 0 && c.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported credentials schema_version: %d", c.SchemaVersion)
	}
	if c.ClientID == "" {
		return fmt.Errorf("credentials missing client_id")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("credentials missing client_secret")
	}
	return nil
}

func checkSecretFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat credentials: %w", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return fmt.Errorf("credentials file %s must not be readable by group or others", path)
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if int(stat.Uid) != os.Geteuid() {
			return fmt.Errorf("credentials file %s must be owned by uid %d", path, os.Geteuid())
		}
	}
	return nil
}
