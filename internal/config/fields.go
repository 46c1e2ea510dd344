package config

import (
	"strconv"
	"strings"
	"unicode"
)

// iniField binds one [Agent] key to a Config field.
type iniField struct {
	Key    string
	Env    string
	Secret bool
	set    func(*Config, string) error
	get    func(*Config) string
}

// EnvVar returns the AGENT_* environment variable that overrides the key.
func (f iniField) EnvVar() string {
	if f.Env != "" {
		return f.Env
	}
	var b strings.Builder
	b.WriteString("AGENT_")
	runes := []rune(f.Key)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func str(dst func(*Config) *string) (func(*Config, string) error, func(*Config) string) {
	return func(c *Config, v string) error { *dst(c) = v; return nil },
		func(c *Config) string { return *dst(c) }
}

func integer(dst func(*Config) *int) (func(*Config, string) error, func(*Config) string) {
	return func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*dst(c) = n
			return nil
		},
		func(c *Config) string { return strconv.Itoa(*dst(c)) }
}

func field(key string, set func(*Config, string) error, get func(*Config) string) iniField {
	return iniField{Key: key, set: set, get: get}
}

func secret(f iniField) iniField {
	f.Secret = true
	return f
}

// iniFields lists every supported key in the order `config show` prints them.
var iniFields = func() []iniField {
	var fs []iniField
	add := func(f iniField) { fs = append(fs, f) }

	set, get := str(func(c *Config) *string { return &c.Database.Driver })
	add(field("DBDriver", set, get))
	set, get = str(func(c *Config) *string { return &c.Database.Host })
	add(field("DBHost", set, get))
	set, get = integer(func(c *Config) *int { return &c.Database.Port })
	add(field("DBPort", set, get))
	set, get = str(func(c *Config) *string { return &c.Database.Name })
	add(field("DBName", set, get))
	set, get = str(func(c *Config) *string { return &c.Database.User })
	add(field("DBUser", set, get))
	set, get = str(func(c *Config) *string { return &c.Database.Password })
	add(secret(field("DBPass", set, get)))
	set, get = str(func(c *Config) *string { return &c.Database.SSLMode })
	add(iniField{Key: "DBSSLMode", Env: "AGENT_DB_SSLMODE", set: set, get: get})
	set, get = str(func(c *Config) *string { return &c.Database.Path })
	add(field("DBPath", set, get))

	set, get = str(func(c *Config) *string { return &c.Logging.Dir })
	add(field("LogDir", set, get))
	set, get = str(func(c *Config) *string { return &c.Logging.Level })
	add(field("LogLevel", set, get))

	set, get = str(func(c *Config) *string { return &c.CMS.URL })
	add(field("CMSUrl", set, get))

	set, get = integer(func(c *Config) *int { return &c.API.Port })
	add(field("APIPort", set, get))
	set, get = str(func(c *Config) *string { return &c.API.Bind })
	add(field("APIBind", set, get))
	set, get = str(func(c *Config) *string { return &c.API.Token })
	add(secret(field("APIToken", set, get)))

	add(field("SchedulerEnabled",
		func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			c.Scheduler.Enabled = b
			return nil
		},
		func(c *Config) string { return strconv.FormatBool(c.Scheduler.Enabled) }))
	add(field("SchedulerInterval",
		func(c *Config, v string) error {
			d, err := parseDuration(v)
			if err != nil {
				return err
			}
			c.Scheduler.Interval = d
			return nil
		},
		func(c *Config) string { return c.Scheduler.Interval.String() }))

	set, get = integer(func(c *Config) *int { return &c.Harvest.MaxAttempts })
	add(field("MaxAttempts", set, get))
	set, get = integer(func(c *Config) *int { return &c.Harvest.NewRecordLimit })
	add(field("NewRecordLimit", set, get))
	set, get = integer(func(c *Config) *int { return &c.Harvest.FetchConcurrency })
	add(field("FetchConcurrency", set, get))
	add(field("RequestRate",
		func(c *Config, v string) error {
			r, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			c.Harvest.RequestRate = r
			return nil
		},
		func(c *Config) string { return strconv.FormatFloat(c.Harvest.RequestRate, 'f', -1, 64) }))
	add(field("HTTPTimeout",
		func(c *Config, v string) error {
			d, err := parseDuration(v)
			if err != nil {
				return err
			}
			c.Harvest.HTTPTimeout = d
			return nil
		},
		func(c *Config) string { return c.Harvest.HTTPTimeout.String() }))
	set, get = integer(func(c *Config) *int { return &c.Harvest.HTTPRetries })
	add(field("HTTPRetries", set, get))

	return fs
}()

// Entry is one key/value pair of the effective configuration.
type Entry struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Entries returns the effective configuration as [Agent] keys. Secrets are
// masked unless reveal is set.
func Entries(cfg *Config, reveal bool) []Entry {
	out := make([]Entry, 0, len(iniFields))
	for _, f := range iniFields {
		v := f.get(cfg)
		if f.Secret && !reveal && v != "" {
			v = "********"
		}
		out = append(out, Entry{Key: f.Key, Value: v})
	}
	return out
}

// Lookup returns the value of a single [Agent] key (case-insensitive).
func Lookup(cfg *Config, key string) (string, bool) {
	for _, f := range iniFields {
		if strings.EqualFold(f.Key, key) {
			return f.get(cfg), true
		}
	}
	return "", false
}
