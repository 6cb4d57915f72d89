package auth

import (
	"fmt"
	"os"
	"strings"

	"sidero/internal/config"

	"github.com/zalando/go-keyring"
)

const (
	// Service name for OS credential store
	credentialService = "sidero"
	// Key for the Semgrep AppSec Platform token
	appTokenKey = "semgrep_app_token"
)

// CredentialManager resolves and stores the Semgrep platform token.
//
// Resolution order is environment first, OS credential store second. The
// environment wins so MCP client configs can inject the token per server
// entry without touching the keychain.
type CredentialManager struct {
	service string
}

// NewCredentialManager creates a new credential manager instance
func NewCredentialManager() *CredentialManager {
	return &CredentialManager{
		service: credentialService,
	}
}

// ResolveToken returns the configured Semgrep app token, or an empty string
// when none is configured anywhere. It never returns partial/whitespace
// tokens.
func (cm *CredentialManager) ResolveToken() string {
	if token := strings.TrimSpace(os.Getenv(config.EnvAppToken)); token != "" {
		return token
	}

	token, err := keyring.Get(cm.service, appTokenKey)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(token)
}

// StoreToken saves the token in the OS credential store.
func (cm *CredentialManager) StoreToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token cannot be empty")
	}

	if err := keyring.Set(cm.service, appTokenKey, token); err != nil {
		return fmt.Errorf("failed to store token in credential store: %w", err)
	}

	return nil
}

// DeleteToken removes the token from the OS credential store.
func (cm *CredentialManager) DeleteToken() error {
	if err := keyring.Delete(cm.service, appTokenKey); err != nil {
		if err == keyring.ErrNotFound {
			return fmt.Errorf("no token stored")
		}
		return fmt.Errorf("failed to delete token from credential store: %w", err)
	}
	return nil
}

// Status reports where a token was found without revealing it.
func (cm *CredentialManager) Status() string {
	if strings.TrimSpace(os.Getenv(config.EnvAppToken)) != "" {
		return fmt.Sprintf("token configured via %s", config.EnvAppToken)
	}
	if _, err := keyring.Get(cm.service, appTokenKey); err == nil {
		return "token stored in OS credential store"
	}
	return "no token configured"
}
