package config

import (
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/streetferret/crudo/catalog"
	"github.com/streetferret/crudo/profile"
	"github.com/streetferret/crudo/taginfo"
)

type Config struct {
	// Catalog overrides the built-in layer list.
	Catalog     []string `yaml:"catalog"`
	CatalogFile string   `yaml:"catalog_file"`
	Taginfo     Taginfo  `yaml:"taginfo"`
	Classify    Classify `yaml:"classify"`
	Workers     int      `yaml:"workers"`
	Connection  string   `yaml:"connection"`
}

type Taginfo struct {
	BaseURL       string        `yaml:"base_url"`
	Results       int           `yaml:"results"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Concurrency   int           `yaml:"concurrency"`
	UserAgent     string        `yaml:"user_agent"`
	CacheDir      string        `yaml:"cache_dir"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

type Classify struct {
	MinPixelSize  float64 `yaml:"min_pixel_size"`
	WaterSource   string  `yaml:"water_source"`
	FallbackLayer string  `yaml:"fallback_layer"`
}

const (
	defaultResults     = 10
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 2
	defaultConcurrency = 4
	defaultCacheTTL    = 7 * 24 * time.Hour
)

func Default() Config {
	return Config{
		Taginfo: Taginfo{
			BaseURL:       taginfo.DefaultBaseURL,
			Results:       defaultResults,
			Timeout:       defaultTimeout,
			MaxRetries:    defaultMaxRetries,
			RetryInterval: 500 * time.Millisecond,
			Concurrency:   defaultConcurrency,
			CacheTTL:      defaultCacheTTL,
		},
		Classify: Classify{
			MinPixelSize: profile.DefaultMinPixelSize,
			WaterSource:  profile.DefaultWaterSource,
		},
	}
}

// Parse reads a YAML config. Missing values keep their defaults.
func Parse(b []byte) (Config, error) {
	conf := Default()
	if err := yaml.UnmarshalStrict(b, &conf); err != nil {
		return conf, errors.Wrap(err, "parsing config")
	}
	return conf, nil
}

func Load(filename string) (Config, error) {
	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return Default(), err
	}
	conf, err := Parse(b)
	if err != nil {
		return conf, errors.Wrapf(err, "loading %s", filename)
	}
	return conf, nil
}

// Check returns all invalid options.
func (c *Config) Check() []error {
	errs := []error{}
	if len(c.Catalog) > 0 && c.CatalogFile != "" {
		errs = append(errs, errors.New("catalog and catalog_file are exclusive"))
	}
	if len(c.Catalog) > 0 {
		if _, err := catalog.New(c.Catalog); err != nil {
			errs = append(errs, errors.Wrap(err, "invalid catalog"))
		}
	}
	if c.Taginfo.Results <= 0 {
		errs = append(errs, errors.New("taginfo.results must be positive"))
	}
	if c.Taginfo.MaxRetries < 0 {
		errs = append(errs, errors.New("taginfo.max_retries must not be negative"))
	}
	if c.Taginfo.Concurrency <= 0 {
		errs = append(errs, errors.New("taginfo.concurrency must be positive"))
	}
	if c.Taginfo.Timeout <= 0 {
		errs = append(errs, errors.New("taginfo.timeout must be positive"))
	}
	if !strings.HasPrefix(c.Taginfo.BaseURL, "http://") && !strings.HasPrefix(c.Taginfo.BaseURL, "https://") {
		errs = append(errs, errors.Errorf("taginfo.base_url %q is not a http(s) URL", c.Taginfo.BaseURL))
	}
	if c.Classify.MinPixelSize <= 0 {
		errs = append(errs, errors.New("classify.min_pixel_size must be positive"))
	}
	if c.Workers < 0 {
		errs = append(errs, errors.New("workers must not be negative"))
	}
	return errs
}

func (c *Config) LoadCatalog() (*catalog.Catalog, error) {
	switch {
	case len(c.Catalog) > 0:
		return catalog.New(c.Catalog)
	case c.CatalogFile != "":
		return catalog.Load(c.CatalogFile)
	}
	return catalog.Default(), nil
}

func (c *Config) TaginfoConfig() taginfo.Config {
	return taginfo.Config{
		BaseURL:       c.Taginfo.BaseURL,
		Results:       c.Taginfo.Results,
		Timeout:       c.Taginfo.Timeout,
		UserAgent:     c.Taginfo.UserAgent,
		MaxRetries:    c.Taginfo.MaxRetries,
		RetryInterval: c.Taginfo.RetryInterval,
	}
}

func (c *Config) ProfileOptions() profile.Options {
	return profile.Options{
		MinPixelSize:  c.Classify.MinPixelSize,
		WaterSource:   c.Classify.WaterSource,
		FallbackLayer: c.Classify.FallbackLayer,
	}
}

// Options are the command line flags shared by all commands.
type Options struct {
	ConfigFile  string
	Quiet       bool
	Httpprofile string

	conf Config
}

func AddBaseFlags(flags *pflag.FlagSet, o *Options) {
	d := Default()
	flags.StringVar(&o.ConfigFile, "config", "", "config (yaml)")
	flags.BoolVar(&o.Quiet, "quiet", false, "only log warnings and errors")
	flags.StringVar(&o.Httpprofile, "httpprofile", "", "bind address for metrics and profile server")
	flags.StringVar(&o.conf.CatalogFile, "catalog", "", "catalog file (yaml)")
	flags.StringVar(&o.conf.Taginfo.BaseURL, "taginfo-url", d.Taginfo.BaseURL, "taginfo API base URL")
	flags.IntVar(&o.conf.Taginfo.MaxRetries, "taginfo-retries", d.Taginfo.MaxRetries, "retries per taginfo request")
	flags.IntVar(&o.conf.Taginfo.Concurrency, "taginfo-concurrency", d.Taginfo.Concurrency, "parallel taginfo requests")
	flags.StringVar(&o.conf.Taginfo.CacheDir, "cachedir", "", "cache directory for taginfo results")
	flags.StringVar(&o.conf.Classify.FallbackLayer, "fallback-layer", "", "layer for features without catalog key (default: drop)")
	flags.IntVar(&o.conf.Workers, "workers", 0, "workers per element type (default: number of CPUs)")
	flags.StringVar(&o.conf.Connection, "connection", "", "PostgreSQL connection for the output features")
}

// Resolve loads the config file and overrides it with all flags that
// were set on the command line.
func (o *Options) Resolve(flags *pflag.FlagSet) (Config, error) {
	conf := Default()
	if o.ConfigFile != "" {
		var err error
		conf, err = Load(o.ConfigFile)
		if err != nil {
			return conf, err
		}
	}

	changed := flags.Changed
	if changed("catalog") {
		conf.CatalogFile = o.conf.CatalogFile
	}
	if changed("taginfo-url") {
		conf.Taginfo.BaseURL = o.conf.Taginfo.BaseURL
	}
	if changed("taginfo-retries") {
		conf.Taginfo.MaxRetries = o.conf.Taginfo.MaxRetries
	}
	if changed("taginfo-concurrency") {
		conf.Taginfo.Concurrency = o.conf.Taginfo.Concurrency
	}
	if changed("cachedir") {
		conf.Taginfo.CacheDir = o.conf.Taginfo.CacheDir
	}
	if changed("fallback-layer") {
		conf.Classify.FallbackLayer = o.conf.Classify.FallbackLayer
	}
	if changed("workers") {
		conf.Workers = o.conf.Workers
	}
	if changed("connection") {
		conf.Connection = o.conf.Connection
	}

	if errs := conf.Check(); len(errs) != 0 {
		return conf, ErrorList(errs)
	}
	return conf, nil
}

// ErrorList reports multiple config errors at once.
type ErrorList []error

func (l ErrorList) Error() string {
	b := strings.Builder{}
	b.WriteString("errors in config/options:")
	for _, err := range l {
		fmt.Fprintf(&b, "\n\t%s", err)
	}
	return b.String()
}
