package gmail

import (
	"strings"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// Config holds Gmail source configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// LabelIDs limits fetching to specific label IDs. Defaults to INBOX.
	LabelIDs []string
	// Query is a Gmail search query (optional).
	Query string
	// IncludeSpamTrash includes spam and trash if true.
	IncludeSpamTrash bool
}

// ParseConfig extracts configuration from a source definition.
func ParseConfig(def domain.SourceDefinition) (*Config, error) {
	cfg := &Config{
		ClientID:     def.Config["client_id"],
		ClientSecret: def.Config["client_secret"],
		RefreshToken: def.Config["refresh_token"],
		LabelIDs:     []string{"INBOX"},
		Query:        def.Config["query"],
	}

	if val := def.Config["label_ids"]; val != "" {
		cfg.LabelIDs = nil
		for _, id := range strings.Split(val, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.LabelIDs = append(cfg.LabelIDs, id)
			}
		}
	}
	if def.Config["include_spam_trash"] == "true" {
		cfg.IncludeSpamTrash = true
	}

	var missing []string
	for _, kv := range [][2]string{
		{"client_id", cfg.ClientID},
		{"client_secret", cfg.ClientSecret},
		{"refresh_token", cfg.RefreshToken},
	} {
		if strings.TrimSpace(kv[1]) == "" {
			missing = append(missing, kv[0])
		}
	}
	if len(missing) > 0 {
		return nil, domain.Validationf("missing %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}
