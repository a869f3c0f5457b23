// ABOUTME: Per-tenant chatbot agent settings stored as key/value rows
// ABOUTME: Reads merge stored values onto fixed defaults; writes upsert per key

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Setting keys as stored in agent_settings.
const (
	settingSystemPrompt    = "systemPrompt"
	settingTemperature     = "temperature"
	settingMaxTokens       = "maxTokens"
	settingEnableHandoff   = "enableHandoff"
	settingHandoffKeywords = "handoffKeywords"
)

// AgentSettings is the fully resolved chatbot configuration for one tenant.
// HandoffKeywords is a comma-separated list, matching the widget payloads.
type AgentSettings struct {
	SystemPrompt    string  `json:"systemPrompt"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"maxTokens"`
	EnableHandoff   bool    `json:"enableHandoff"`
	HandoffKeywords string  `json:"handoffKeywords"`
}

// DefaultSettings returns the configuration used before a tenant saves
// anything, and the base every read merges onto.
func DefaultSettings() AgentSettings {
	return AgentSettings{
		SystemPrompt:    "You are a helpful assistant.",
		Temperature:     0.7,
		MaxTokens:       500,
		EnableHandoff:   true,
		HandoffKeywords: "speak to human, agent, representative",
	}
}

// SettingsPatch is a partial settings update. Nil fields are left untouched.
type SettingsPatch struct {
	SystemPrompt    *string  `json:"systemPrompt"`
	Temperature     *float64 `json:"temperature"`
	MaxTokens       *int     `json:"maxTokens"`
	EnableHandoff   *bool    `json:"enableHandoff"`
	HandoffKeywords *string  `json:"handoffKeywords"`
}

// Validate checks the patch's provided values against their allowed ranges.
func (p SettingsPatch) Validate() error {
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 1) {
		return fmt.Errorf("%w: temperature must be between 0 and 1", ErrInvalidSetting)
	}
	if p.MaxTokens != nil && (*p.MaxTokens < 50 || *p.MaxTokens > 2000) {
		return fmt.Errorf("%w: maxTokens must be between 50 and 2000", ErrInvalidSetting)
	}
	return nil
}

// GetSettings returns the tenant's agent settings, merging any stored rows
// onto the defaults. A tenant with no saved rows gets the defaults.
func (s *SQLiteStore) GetSettings(ctx context.Context, ownerUserID string) (AgentSettings, error) {
	settings := DefaultSettings()

	rows, err := s.db.QueryContext(ctx,
		`SELECT setting_key, setting_value FROM agent_settings WHERE owner_user_id = ?`,
		ownerUserID,
	)
	if err != nil {
		return settings, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return settings, fmt.Errorf("scanning settings row: %w", err)
		}
		if err := applySetting(&settings, key, raw); err != nil {
			s.logger.Warn("skipping malformed setting", "owner", ownerUserID, "key", key, "error", err)
		}
	}

	if err := rows.Err(); err != nil {
		return settings, fmt.Errorf("iterating settings rows: %w", err)
	}

	return settings, nil
}

// SaveSettings upserts only the keys present in the patch. Values are stored
// JSON-encoded, one row per key.
func (s *SQLiteStore) SaveSettings(ctx context.Context, ownerUserID string, patch SettingsPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	pairs := map[string]any{}
	if patch.SystemPrompt != nil {
		pairs[settingSystemPrompt] = *patch.SystemPrompt
	}
	if patch.Temperature != nil {
		pairs[settingTemperature] = *patch.Temperature
	}
	if patch.MaxTokens != nil {
		pairs[settingMaxTokens] = *patch.MaxTokens
	}
	if patch.EnableHandoff != nil {
		pairs[settingEnableHandoff] = *patch.EnableHandoff
	}
	if patch.HandoffKeywords != nil {
		pairs[settingHandoffKeywords] = *patch.HandoffKeywords
	}
	if len(pairs) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(time.Now())
		for key, value := range pairs {
			raw, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("encoding setting %s: %w", key, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO agent_settings (owner_user_id, setting_key, setting_value, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (owner_user_id, setting_key)
				DO UPDATE SET setting_value = excluded.setting_value, updated_at = excluded.updated_at
			`, ownerUserID, key, string(raw), now, now)
			if err != nil {
				return fmt.Errorf("upserting setting %s: %w", key, err)
			}
		}
		return nil
	})
}

// applySetting decodes one stored row onto the settings struct. Unknown keys
// are ignored so older rows survive schema drift.
func applySetting(settings *AgentSettings, key, raw string) error {
	switch key {
	case settingSystemPrompt:
		return json.Unmarshal([]byte(raw), &settings.SystemPrompt)
	case settingTemperature:
		return json.Unmarshal([]byte(raw), &settings.Temperature)
	case settingMaxTokens:
		return json.Unmarshal([]byte(raw), &settings.MaxTokens)
	case settingEnableHandoff:
		return json.Unmarshal([]byte(raw), &settings.EnableHandoff)
	case settingHandoffKeywords:
		return json.Unmarshal([]byte(raw), &settings.HandoffKeywords)
	}
	return nil
}
