package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix = "STYLEPACK"
	// FileName is the project file looked up in the working directory.
	FileName = "stylepack"
)

// Loader merges the project file, STYLEPACK_* environment variables and
// bound command line flags. Flags win over the environment, which wins
// over the file.
type Loader struct {
	v *viper.Viper
}

func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("outdir", "dist")
	v.SetDefault("output.cssForChunks", "extract")
	v.SetDefault("output.sourcemap", false)
	v.SetDefault("output.minify", false)
	v.SetDefault("output.splitting", true)
	v.SetDefault("assets.publicPath", "")
	v.SetDefault("assets.preserveDir", false)
	v.SetDefault("assets.inline", false)
	v.SetDefault("transform.sass.implementation", "dart")
	v.SetDefault("serve.addr", "localhost:8080")
	return &Loader{v: v}
}

// Viper exposes the underlying instance, e.g. to bind flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads configFile, or stylepack.yaml in dir when configFile is
// empty. A missing default file is not an error.
func (l *Loader) Load(dir, configFile string) (*Config, error) {
	if configFile != "" {
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(FileName)
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(dir)
	}
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	root := dir
	if used := l.v.ConfigFileUsed(); used != "" {
		root = filepath.Dir(used)
	}
	if cfg.Root == "" {
		cfg.Root = root
	} else if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(root, cfg.Root)
	}
	if abs, err := filepath.Abs(cfg.Root); err == nil {
		cfg.Root = abs
	}
	return &cfg, nil
}
