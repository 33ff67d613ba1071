package gen

import (
	"errors"
	"go/token"
	"runtime"
)

// DefaultHeader marks generated files. Files in the target directory that
// start with it are owned by the generator and may be pruned.
const DefaultHeader = "Code generated by versa. DO NOT EDIT."

// Config controls where and how the wrappers are written.
type Config struct {
	Package string // package clause of the generated files
	Target  string // output directory, defaults to Package
	Header  string
	Workers int // files rendered in parallel
}

// Option sets one Config value.
type Option func(*Config) error

// WithHeader replaces DefaultHeader. An empty header disables pruning.
func WithHeader(header string) Option {
	return func(c *Config) error {
		c.Header = header
		return nil
	}
}

// WithPackage sets the package name of the generated files.
func WithPackage(pkg string) Option {
	return func(c *Config) error {
		if !token.IsIdentifier(pkg) || token.IsKeyword(pkg) {
			return configError("package", pkg, "not a Go package name")
		}
		c.Package = pkg
		return nil
	}
}

// WithTarget sets the output directory.
func WithTarget(dir string) Option {
	return func(c *Config) error {
		if dir == "" {
			return configError("target", nil, "empty directory")
		}
		c.Target = dir
		return nil
	}
}

// WithWorkers bounds the files rendered in parallel. Zero means
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *Config) error {
		if n < 0 {
			return configError("workers", n, "negative worker count")
		}
		c.Workers = n
		return nil
	}
}

// Apply runs opts in order and stops at the first failing one.
func (c *Config) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return err
		}
	}
	return nil
}

// ApplyAll runs every option and joins their errors.
func (c *Config) ApplyAll(opts ...Option) error {
	errs := make([]error, 0, len(opts))
	for _, opt := range opts {
		errs = append(errs, opt(c))
	}
	return errors.Join(errs...)
}

// NewConfig returns the default configuration with opts applied.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{Package: "model", Header: DefaultHeader}
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Target == "" {
		c.Target = c.Package
	}
	return c, nil
}

// MustNewConfig is like NewConfig but panics on error.
func MustNewConfig(opts ...Option) *Config {
	c, err := NewConfig(opts...)
	if err != nil {
		panic(err)
	}
	return c
}
