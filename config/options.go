// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package config

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

type loadOptions struct {
	withEnvFiles    []string
	withEnvironment map[string]string
}

func loadDefaults() loadOptions {
	return loadOptions{
		withEnvFiles: []string{".env"},
	}
}

func getLoadOpts(opt ...Option) loadOptions {
	opts := loadDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithEnvFiles sets the .env files to load, defaults to ".env".
func WithEnvFiles(files ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*loadOptions); ok {
			o.withEnvFiles = files
		}
	}
}

// WithEnvironment parses the given variables instead of the process
// environment, and no .env files are loaded.
func WithEnvironment(vars map[string]string) Option {
	return func(o interface{}) {
		if o, ok := o.(*loadOptions); ok {
			o.withEnvironment = vars
		}
	}
}
