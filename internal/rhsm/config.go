// Package rhsm reads the subscription-manager configuration (rhsm.conf).
package rhsm

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
	"github.com/magicaleks/katello-agent/internal/domain"
)

const (
	DefaultPath = "/etc/rhsm/rhsm.conf"

	defaultPort   = 443
	defaultPrefix = "/subscription"

	caDirPlaceholder = "%(ca_cert_dir)s"
)

// lookup extracts one value from the parsed file; ok is false when the
// layout it understands is not present.
type lookup func(f *ini.File) (value string, ok bool)

func sectionKey(section, key string) lookup {
	return func(f *ini.File) (string, bool) {
		sec, err := f.GetSection(section)
		if err != nil || !sec.HasKey(key) {
			return "", false
		}
		v := strings.TrimSpace(sec.Key(key).Value())
		return v, v != ""
	}
}

// caDirLookups lists the places the CA directory has lived, newest first.
var caDirLookups = []struct {
	name string
	get  lookup
}{
	{"rhsm.ca_cert_dir", sectionKey("rhsm", "ca_cert_dir")},
	{"server.ca_cert_dir", sectionKey("server", "ca_cert_dir")},
}

// Config is a parsed rhsm.conf.
type Config struct {
	path string
	file *ini.File
}

// Load parses the file at path.
func Load(path string) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		SpaceBeforeInlineComment: true,
	}, path)
	if err != nil {
		return nil, domain.ErrConfig{Path: path, Err: err}
	}
	return &Config{path: path, file: f}, nil
}

// Parse reads configuration from raw bytes; path is only used in errors.
func Parse(path string, data []byte) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, domain.ErrConfig{Path: path, Err: err}
	}
	return &Config{path: path, file: f}, nil
}

func (c *Config) Path() string {
	return c.path
}

// Hostname returns server.hostname.
func (c *Config) Hostname() (string, error) {
	host, ok := sectionKey("server", "hostname")(c.file)
	if !ok {
		return "", c.missing("server.hostname")
	}
	return host, nil
}

// CACertDir returns the CA bundle directory, trying the current layout
// ([rhsm] ca_cert_dir) before the legacy one ([server] ca_cert_dir).
func (c *Config) CACertDir() (string, error) {
	for _, l := range caDirLookups {
		if dir, ok := l.get(c.file); ok {
			return dir, nil
		}
	}
	return "", c.missing("rhsm.ca_cert_dir")
}

// RepoCACertDir resolves the rhsm.repo_ca_cert template against the CA
// directory and returns the directory part of the result. Without a
// template the CA directory itself is returned.
func (c *Config) RepoCACertDir() (string, error) {
	dir, err := c.CACertDir()
	if err != nil {
		return "", err
	}
	tmpl, ok := sectionKey("rhsm", "repo_ca_cert")(c.file)
	if !ok {
		return filepath.Clean(dir), nil
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	resolved := strings.ReplaceAll(tmpl, caDirPlaceholder, dir)
	return filepath.Dir(resolved), nil
}

// ServerURL returns the base URL of the subscription service API.
func (c *Config) ServerURL() (string, error) {
	host, err := c.Hostname()
	if err != nil {
		return "", err
	}
	sec := c.file.Section("server")
	port := sec.Key("port").MustInt(defaultPort)
	prefix := strings.TrimSpace(sec.Key("prefix").Value())
	if prefix == "" {
		prefix = defaultPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return fmt.Sprintf("https://%s:%d%s", host, port, strings.TrimSuffix(prefix, "/")), nil
}

// Insecure reports whether server certificate verification is disabled.
func (c *Config) Insecure() bool {
	return c.file.Section("server").Key("insecure").MustBool(false)
}

func (c *Config) missing(key string) error {
	return domain.ErrConfig{Path: c.path, Key: key, Err: errors.New("not set")}
}

// Loader loads rhsm.conf from a fixed path on every call.
type Loader struct {
	Path string
}

func (l Loader) Load() (*Config, error) {
	return Load(l.Path)
}
