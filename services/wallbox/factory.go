package wallbox

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jhilgenberg/evsync/models"
)

// Decryptor is the credential-decryption capability injected into the
// factory. crypto.Cipher satisfies it in production; tests use a mock.
type Decryptor interface {
	Decrypt(ciphertext string) (string, error)
}

// NewClient builds the matching vendor adapter for a connection. The
// configuration is decrypted if stored as ciphertext and validated for
// the chosen vendor's required fields before any network call.
func NewClient(conn *models.WallboxConnection, decryptor Decryptor) (Client, error) {
	configJSON := conn.Configuration

	// Plaintext configurations are JSON objects; anything else is an
	// encrypted blob.
	if !strings.HasPrefix(strings.TrimSpace(configJSON), "{") {
		decrypted, err := decryptor.Decrypt(configJSON)
		if err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("cannot decrypt configuration: %v", err)}
		}
		configJSON = decrypted
	}

	switch conn.ProviderID {
	case "go-e":
		var config GoEConfig
		if err := json.Unmarshal([]byte(configJSON), &config); err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("malformed go-e configuration: %v", err)}
		}
		if config.ChargerID == "" {
			return nil, &ConfigError{Reason: "go-e configuration is missing charger_id"}
		}
		if config.APIKey == "" {
			return nil, &ConfigError{Reason: "go-e configuration is missing api_key"}
		}
		return NewGoEClient(config), nil

	case "easee":
		var config EaseeConfig
		if err := json.Unmarshal([]byte(configJSON), &config); err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("malformed easee configuration: %v", err)}
		}
		if config.Username == "" {
			return nil, &ConfigError{Reason: "easee configuration is missing username"}
		}
		if config.Password == "" {
			return nil, &ConfigError{Reason: "easee configuration is missing password"}
		}
		if config.ChargerID == "" {
			return nil, &ConfigError{Reason: "easee configuration is missing charger_id"}
		}
		return NewEaseeClient(config), nil

	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown wallbox provider %q", conn.ProviderID)}
	}
}
