package openapi

import "os"

// Config holds the document metadata published in the info and servers
// objects. ServerURL is the public base URL; when empty the API base path is
// advertised instead.
type Config struct {
	Title        string `toml:"title"`
	Description  string `toml:"description"`
	ServerURL    string `toml:"server_url"`
	ContactName  string `toml:"contact_name"`
	ContactEmail string `toml:"contact_email"`
}

// ConfigEnv maps config fields to environment variable names for override injection.
type ConfigEnv struct {
	Title        string
	Description  string
	ServerURL    string
	ContactName  string
	ContactEmail string
}

// Finalize applies defaults and environment variable overrides.
func (c *Config) Finalize(env *ConfigEnv) error {
	if c.Title == "" {
		c.Title = "KisaanSeva API"
	}
	if c.Description == "" {
		c.Description = "Farmer benefits portal: consent-gated agent access and scheme moderation."
	}
	if env == nil {
		return nil
	}
	for _, f := range c.fields(env) {
		if f.env == "" {
			continue
		}
		if v := os.Getenv(f.env); v != "" {
			*f.dst = v
		}
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	src := overlay.fields(&ConfigEnv{})
	for i, f := range c.fields(&ConfigEnv{}) {
		if *src[i].dst != "" {
			*f.dst = *src[i].dst
		}
	}
}

// Apply writes the configured metadata onto spec. fallbackServer is used when
// ServerURL is unset.
func (c *Config) Apply(spec *Spec, fallbackServer string) {
	spec.Info.Title = c.Title
	spec.Info.Description = c.Description
	if c.ContactName != "" || c.ContactEmail != "" {
		spec.Info.Contact = &Contact{Name: c.ContactName, Email: c.ContactEmail}
	}
	if c.ServerURL != "" {
		spec.AddServer(c.ServerURL)
	} else if fallbackServer != "" {
		spec.AddServer(fallbackServer)
	}
}

type configField struct {
	dst *string
	env string
}

func (c *Config) fields(env *ConfigEnv) []configField {
	return []configField{
		{&c.Title, env.Title},
		{&c.Description, env.Description},
		{&c.ServerURL, env.ServerURL},
		{&c.ContactName, env.ContactName},
		{&c.ContactEmail, env.ContactEmail},
	}
}
