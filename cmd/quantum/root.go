package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"vimagination.zapto.org/quantum"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "quantum [flags] <project dir>",
	Short: "Bundle a CommonJS project",
	Long: `quantum loads a project directory (its own files plus node_modules),
gives every module an id, rewrites requires against a small runtime, and
writes one file per bundle.

Every flag can also be given as a QUANTUM_* environment variable, e.g.
QUANTUM_TARGET=server, or in the YAML file named by --config.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML build config")

	flags := rootCmd.Flags()

	flags.StringP("out", "o", "dist", "output directory")
	flags.StringP("bundle", "b", "bundle", "name of the main bundle")
	flags.StringP("target", "t", "browser", "browser, server, npm, electron or universal")
	flags.String("entry", "", "full path of the entry file, e.g. app/index.js")
	flags.String("global", "", "global name to expose the entry's exports as")
	flags.Bool("treeshake", false, "remove unreachable files and unread exports")
	flags.Bool("hoist", false, "hoist modules out of their wrappers")
	flags.Bool("hash", false, "address modules by hash")
	flags.Bool("contained", false, "keep the runtime API private to the bundle")
	flags.Bool("no-conflict", false, "give the runtime API a random name")
	flags.StringArray("split", nil, "split point as name=entry (repeatable)")
	flags.StringArray("env", nil, "process.env value as KEY=VALUE (repeatable)")
	flags.String("manifest", "", "write a manifest with this name")
	flags.BoolP("verbose", "v", false, "log every stage")

	viper.SetEnvPrefix("QUANTUM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	_ = viper.BindPFlags(flags)
}

func initConfig() {
	viper.AutomaticEnv()
}

func logger() zerolog.Logger {
	level := zerolog.InfoLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func loadConfig() (*quantum.Config, error) {
	if cfgFile == "" {
		return new(quantum.Config), nil
	}

	f, err := os.Open(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error opening config: %w", err)
	}
	defer f.Close()

	return quantum.LoadConfig(f)
}

// overlay applies the flags and environment variables that were given on
// top of the config file.
func overlay(c *quantum.Config) error {
	for key, dst := range map[string]*string{
		"target":   &c.Target,
		"entry":    &c.Entry,
		"global":   &c.GlobalName,
		"bundle":   &c.Bundle,
		"manifest": &c.Manifest,
	} {
		if viper.IsSet(key) {
			*dst = viper.GetString(key)
		}
	}

	for key, dst := range map[string]*bool{
		"treeshake":   &c.TreeShake,
		"hoist":       &c.Hoisting,
		"hash":        &c.HashIDs,
		"contained":   &c.ContainedAPI,
		"no-conflict": &c.NoConflictAPI,
	} {
		if viper.IsSet(key) {
			*dst = viper.GetBool(key)
		}
	}

	for _, s := range viper.GetStringSlice("split") {
		name, entry, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("%q: %w", s, quantum.ErrInvalidSplit)
		}

		c.Splits = append(c.Splits, quantum.SplitConfig{Name: name, Entry: entry})
	}

	for _, e := range viper.GetStringSlice("env") {
		k, v, _ := strings.Cut(e, "=")

		if c.Env == nil {
			c.Env = make(map[string]string)
		}

		c.Env[k] = v
	}

	if c.Bundle == "" {
		c.Bundle = "bundle"
	}

	return nil
}

func run(cmd *cobra.Command, args []string) error {
	zl := logger()

	c, err := loadConfig()
	if err != nil {
		return err
	} else if err := overlay(c); err != nil {
		return err
	}

	opts, err := c.Options()
	if err != nil {
		return err
	}

	g, err := quantum.OSLoad(args[0], c.Bundle)
	if err != nil {
		return fmt.Errorf("error loading project: %w", err)
	}

	res, err := quantum.BuildContext(cmd.Context(), g, append(opts, quantum.Logger(zl))...)
	if err != nil {
		return fmt.Errorf("error building: %w", err)
	}

	out := viper.GetString("out")

	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	for _, b := range res.Bundles {
		if err := os.WriteFile(filepath.Join(out, b.File), b.Code, 0o644); err != nil {
			return fmt.Errorf("error writing bundle %s: %w", b.Name, err)
		}
	}

	if res.Manifest != nil {
		if err := os.WriteFile(filepath.Join(out, c.Manifest), res.Manifest, 0o644); err != nil {
			return fmt.Errorf("error writing manifest: %w", err)
		}
	}

	zl.Info().Str("out", out).Int("bundles", len(res.Bundles)).Int("warnings", len(res.Warnings)).Msg("done")

	return nil
}
