package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Identity is the name/email pair attached to a commit's author or
// committer line.
type Identity struct {
	Name  string `toml:"name,omitempty"`
	Email string `toml:"email,omitempty"`
}

// Config stores repository-local settings: the committer/author identity
// used when environment variables don't override it, and named remotes.
type Config struct {
	User    Identity          `toml:"user"`
	Remotes map[string]string `toml:"remotes,omitempty"`
}

func (r *Repo) configPath() string {
	return filepath.Join(r.ControlDir, "config.toml")
}

// ReadConfig reads .store/config.toml. Missing config returns an empty config.
func (r *Repo) ReadConfig() (*Config, error) {
	data, err := os.ReadFile(r.configPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Remotes: make(map[string]string)}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("read config: decode: %w", err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]string)
	}
	return &cfg, nil
}

// WriteConfig atomically writes .store/config.toml.
func (r *Repo) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]string)
	}

	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}

	tmp, err := os.CreateTemp(r.ControlDir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(buf.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, r.configPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// SetRemote stores/updates a named remote URL in repository config.
func (r *Repo) SetRemote(name, remoteURL string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("set remote: remote name is required")
	}
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return fmt.Errorf("set remote: remote URL is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.Remotes[name] = remoteURL
	return r.WriteConfig(cfg)
}

// RemoteURL returns the configured URL for the given remote name.
func (r *Repo) RemoteURL(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("remote name is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return "", err
	}
	url, ok := cfg.Remotes[name]
	if !ok || strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("remote %q is not configured", name)
	}
	return url, nil
}

// SetUserIdentity stores the default author/committer identity used when
// AUTHOR_*/COMMITTER_* environment variables are unset.
func (r *Repo) SetUserIdentity(name, email string) error {
	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.User = Identity{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}
	return r.WriteConfig(cfg)
}

// ResolvedIdentity is an author or committer identity together with the
// timestamp and UTC-offset timezone to stamp a commit with.
type ResolvedIdentity struct {
	Identity
	Timestamp int64
	Timezone  string
}

// ResolveAuthorIdentity builds the author identity for a new commit:
// AUTHOR_NAME/AUTHOR_EMAIL/AUTHOR_DATE take priority, falling back to the
// repository's configured user identity, falling back to fallbackName
// (typically passed down from a CLI --author flag or $USER).
func (r *Repo) ResolveAuthorIdentity(fallbackName string) (ResolvedIdentity, error) {
	return r.resolveIdentity("AUTHOR", fallbackName)
}

// ResolveCommitterIdentity builds the committer identity for a new commit:
// COMMITTER_NAME/COMMITTER_EMAIL/COMMITTER_DATE take priority, falling back
// to the repository's configured user identity, falling back to
// fallbackName.
func (r *Repo) ResolveCommitterIdentity(fallbackName string) (ResolvedIdentity, error) {
	return r.resolveIdentity("COMMITTER", fallbackName)
}

func (r *Repo) resolveIdentity(prefix, fallbackName string) (ResolvedIdentity, error) {
	cfg, err := r.ReadConfig()
	if err != nil {
		return ResolvedIdentity{}, err
	}

	name := os.Getenv(prefix + "_NAME")
	if name == "" {
		name = cfg.User.Name
	}
	if name == "" {
		name = fallbackName
	}
	if name == "" {
		name = "unknown"
	}

	email := os.Getenv(prefix + "_EMAIL")
	if email == "" {
		email = cfg.User.Email
	}

	ts, tz, err := resolveIdentityDate(os.Getenv(prefix + "_DATE"))
	if err != nil {
		return ResolvedIdentity{}, fmt.Errorf("resolve %s identity: %w", strings.ToLower(prefix), err)
	}

	return ResolvedIdentity{
		Identity:  Identity{Name: name, Email: email},
		Timestamp: ts,
		Timezone:  tz,
	}, nil
}

// resolveIdentityDate parses the ISO-8601 or "<seconds> <tz>" forms accepted
// by AUTHOR_DATE/COMMITTER_DATE, defaulting to the current time when raw is
// empty.
func resolveIdentityDate(raw string) (int64, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		now := time.Now()
		return now.Unix(), formatTimezoneOffset(now), nil
	}

	if secs, tz, ok := splitEpochAndTZ(raw); ok {
		return secs, tz, nil
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, "", fmt.Errorf("invalid date %q: want ISO-8601 or \"<seconds> <tz>\"", raw)
	}
	return t.Unix(), formatTimezoneOffset(t), nil
}

// splitEpochAndTZ recognizes the "<seconds> <tz>" form, e.g. "1717000000 -0700".
func splitEpochAndTZ(raw string) (int64, string, bool) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return 0, "", false
	}
	secs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	tz := "+0000"
	if len(fields) >= 2 {
		tz = fields[1]
	}
	return secs, tz, true
}

// formatTimezoneOffset renders t's zone offset as "+HHMM"/"-HHMM".
func formatTimezoneOffset(t time.Time) string {
	_, offsetSeconds := t.Zone()
	sign := "+"
	if offsetSeconds < 0 {
		sign = "-"
		offsetSeconds = -offsetSeconds
	}
	hours := offsetSeconds / 3600
	minutes := (offsetSeconds % 3600) / 60
	return fmt.Sprintf("%s%02d%02d", sign, hours, minutes)
}
