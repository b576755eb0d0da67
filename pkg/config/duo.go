package config

// DuoConfig holds Duo Universal Prompt credentials.
// All four fields are required for the Duo method to be usable.
type DuoConfig struct {
	ClientID     string `env:"DUO_CLIENT_ID" env-default:""`
	ClientSecret string `env:"DUO_CLIENT_SECRET" env-default:""`
	APIHostname  string `env:"DUO_API_HOSTNAME" env-default:""`
	RedirectURI  string `env:"DUO_REDIRECT_URI" env-default:""`
}

// IsConfigured reports whether every required Duo credential is present
func (c DuoConfig) IsConfigured() bool {
	return c.ClientID != "" && c.ClientSecret != "" &&
		c.APIHostname != "" && c.RedirectURI != ""
}

// NewDuoConfigFromEnv creates a DuoConfig from environment variables
func NewDuoConfigFromEnv() DuoConfig {
	return DuoConfig{
		ClientID:     GetEnv("DUO_CLIENT_ID"),
		ClientSecret: GetEnv("DUO_CLIENT_SECRET"),
		APIHostname:  GetEnv("DUO_API_HOSTNAME"),
		RedirectURI:  GetEnv("DUO_REDIRECT_URI"),
	}
}
