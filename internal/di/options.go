package di

import "os"

// Getenv looks up the per-account inputs. Lambda reads them from the process
// environment; the CLI builds them from flags.
type Getenv func(key string) string

// Option is a function that configures the dependency injection container.
type Option func(*options)

// WithGetenv replaces os.Getenv as the source of account inputs
func WithGetenv(getenv Getenv) Option {
	return func(opts *options) {
		opts.getenv = getenv
	}
}

// WithProviders adds constructor functions to the dependency injection container.
// Each provider should be a constructor function that returns one or more values.
// Providers can declare dependencies as function parameters, which will be
// automatically resolved by the container.
//
// Example:
//
//	WithProviders(
//	    func() *Database { return &Database{} },
//	    func(db *Database) *Service { return &Service{DB: db} },
//	)
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

type options struct {
	getenv    Getenv
	providers []any
}

func (o *options) getenvOrDefault() Getenv {
	if o.getenv == nil {
		return os.Getenv
	}
	return o.getenv
}
