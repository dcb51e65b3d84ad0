package quantum

import (
	"errors"
	"fmt"
	"io"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// SplitConfig declares a split point in a Config.
type SplitConfig struct {
	Name  string `yaml:"name"`
	Entry string `yaml:"entry"`
}

// Config is the file form of the build options.
type Config struct {
	Target     string `yaml:"target"`
	Entry      string `yaml:"entry"`
	GlobalName string `yaml:"globalName"`

	// Bundle names the bundle a loaded project goes into.
	Bundle string `yaml:"bundle"`

	TreeShake bool `yaml:"treeshake"`

	// Keep holds globs of files tree shaking must not remove.
	Keep []string `yaml:"keep"`

	Hoisting   bool     `yaml:"hoisting"`
	HoistNames []string `yaml:"hoistNames"`

	RemoveExportsInterop bool  `yaml:"removeExportsInterop"`
	RemoveUseStrict      *bool `yaml:"removeUseStrict"`
	ReplaceTypeOf        *bool `yaml:"replaceTypeOf"`
	ReplaceProcessEnv    *bool `yaml:"replaceProcessEnv"`

	Env      map[string]string `yaml:"env"`
	Splits   []SplitConfig     `yaml:"splits"`
	Mappings []string          `yaml:"mappings"`

	HashIDs       bool   `yaml:"hashIDs"`
	ContainedAPI  bool   `yaml:"containedAPI"`
	NoConflictAPI bool   `yaml:"noConflictAPI"`
	BakeAPIInto   string `yaml:"bakeAPIInto"`

	// Manifest is the file name the manifest is written to; empty means no
	// manifest.
	Manifest string `yaml:"manifest"`

	Warnings    *bool `yaml:"warnings"`
	Concurrency int   `yaml:"concurrency"`
}

// LoadConfig decodes a YAML config. Unknown keys are an error.
func LoadConfig(r io.Reader) (*Config, error) {
	c := new(Config)

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	return c, nil
}

// Options converts the config into build options.
func (c *Config) Options() ([]Option, error) {
	var opts []Option

	if c.Target != "" {
		t, err := ParseTarget(c.Target)
		if err != nil {
			return nil, err
		}

		opts = append(opts, ForTarget(t))
	}

	if c.Entry != "" || c.GlobalName != "" {
		opts = append(opts, Entry(c.Entry, c.GlobalName))
	}

	if c.TreeShake {
		var shouldRemove func(string) bool

		if len(c.Keep) > 0 {
			for _, k := range c.Keep {
				if !doublestar.ValidatePattern(k) {
					return nil, fmt.Errorf("keep %q: %w", k, doublestar.ErrBadPattern)
				}
			}

			keep := c.Keep

			shouldRemove = func(fullPath string) bool {
				for _, k := range keep {
					if ok, _ := doublestar.Match(k, fullPath); ok {
						return false
					}
				}

				return true
			}
		}

		opts = append(opts, TreeShake(shouldRemove))
	}

	if c.Hoisting {
		opts = append(opts, Hoisting(c.HoistNames...))
	}

	for _, flag := range [...]struct {
		set bool
		opt Option
	}{
		{c.RemoveExportsInterop, RemoveExportsInterop},
		{isFalse(c.RemoveUseStrict), KeepUseStrict},
		{isFalse(c.ReplaceTypeOf), NoTypeOf},
		{isFalse(c.ReplaceProcessEnv), NoProcessEnv},
		{c.HashIDs, HashIDs},
		{c.ContainedAPI, ContainedAPI},
		{c.NoConflictAPI, NoConflictAPI},
		{c.Manifest != "", EmitManifest},
		{isFalse(c.Warnings), NoWarnings},
	} {
		if flag.set {
			opts = append(opts, flag.opt)
		}
	}

	for k, v := range c.Env {
		opts = append(opts, Env(k, v))
	}

	for _, s := range c.Splits {
		if s.Name == "" || s.Entry == "" {
			return nil, fmt.Errorf("split %q: %w", s.Name, ErrInvalidSplit)
		}

		opts = append(opts, Split(s.Name, s.Entry))
	}

	for _, m := range c.Mappings {
		opts = append(opts, MapGlob(m))
	}

	if c.BakeAPIInto != "" {
		opts = append(opts, BakeAPIInto(c.BakeAPIInto))
	}

	if c.Concurrency > 0 {
		opts = append(opts, Concurrency(c.Concurrency))
	}

	return opts, nil
}

func isFalse(b *bool) bool {
	return b != nil && !*b
}
