package static

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/auth"
)

type sourceConfig struct {
	// APIKey is returned as-is for every Token call (dev/local only).
	APIKey string `json:"apiKey"`
}

type source struct {
	apiKey string
}

func NewSourceFromJSON(raw json.RawMessage) (auth.CredentialSource, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, errors.New("static auth: missing config")
	}

	var cfg sourceConfig
	// Allow config to be either:
	// - JSON object: {"apiKey":"..."}
	// - JSON string: "key-value"
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &cfg.APIKey); err != nil {
			return nil, errors.New("static auth: invalid config: " + err.Error())
		}
	} else {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, errors.New("static auth: invalid config: " + err.Error())
		}
	}

	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, errors.New("static auth: apiKey is required")
	}
	return &source{apiKey: cfg.APIKey}, nil
}

func (s *source) Token(ctx context.Context) (string, error) {
	return s.apiKey, nil
}

func init() {
	auth.RegisterProvider("static", NewSourceFromJSON)
}
