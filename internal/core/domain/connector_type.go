package domain

// SourceType describes a supported message source type.
type SourceType struct {
	// ID is the unique identifier (e.g., "imap", "gmail").
	ID string
	// Name is the human-readable display name.
	Name string
	// Description provides a brief explanation of the source.
	Description string
	// ConfigKeys lists the configuration fields read by this source.
	ConfigKeys []ConfigKey
}

// RequiredKeys returns the keys that must be supplied.
func (t *SourceType) RequiredKeys() []string {
	var keys []string
	for _, k := range t.ConfigKeys {
		if k.Required {
			keys = append(keys, k.Key)
		}
	}
	return keys
}

// ConfigKey describes a configuration field for a source.
type ConfigKey struct {
	// Key is the configuration key name.
	Key string
	// Label is the human-readable label for display.
	Label string
	// Description explains what this field is for.
	Description string
	// Default is the value used when the field is omitted.
	Default string
	// Required indicates whether this field must be provided.
	Required bool
	// Secret indicates whether this field should be masked or prompted without echo.
	Secret bool
}
