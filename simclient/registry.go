package simclient

import "github.com/pkg/errors"

// registry lets a driver package register a Factory under a name without
// this module depending on it, the same seam database/sql uses for SQL
// drivers. The TCP client that actually speaks to a simulator process is
// an external collaborator (see the package doc); a real deployment
// blank-imports its driver package, which calls Register from its init.
var registry = map[string]Factory{}

// Register makes a Factory available under name. Intended to be called
// from a driver package's init function.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Lookup returns the Factory registered under name.
func Lookup(name string) (Factory, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, errors.Errorf(
			"no simulator client driver registered under %q; blank-import the driver package that calls simclient.Register for it",
			name,
		)
	}
	return factory, nil
}
