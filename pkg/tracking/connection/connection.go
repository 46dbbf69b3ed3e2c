// Package connection resolves tracking and registry URIs from named
// connection keywords. Instead of scanning installed plugins at call time,
// implementations are registered in a process-wide table at startup; a
// keyword found in the table resolves through its connection, anything else
// is passed through as a literal URI.
package connection

import (
	"fmt"
	"os"
	"sync"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Connection produces a tracking URI from credentials and options.
type Connection interface {
	TrackingURI(credentials, options map[string]string) (string, error)
}

// RegistryURIProvider is implemented by connections whose registry URI
// differs from their tracking URI. The default behavior is to delegate to
// TrackingURI.
type RegistryURIProvider interface {
	RegistryURI(credentials, options map[string]string) (string, error)
}

// Getkey reads a key from a mapping, falling back to an environment
// variable, then to a default. An empty result with no default is a missing
// credential error naming both the key and the variable.
func Getkey(mapping map[string]string, key, envKey, def string) (string, error) {
	if v, ok := mapping[key]; ok && v != "" {
		return v, nil
	}
	if v := os.Getenv(envKey); v != "" {
		return v, nil
	}
	if def != "" {
		return def, nil
	}
	return "", fmt.Errorf("%w: key '%s' not found in credentials nor in '%s' environment variable",
		sdkerrors.ErrMissingCredential, key, envKey)
}

// Resolver is a table of named connections with per-keyword memoization of
// resolved tracking URIs.
type Resolver struct {
	mu          sync.Mutex
	connections map[string]Connection
	resolved    map[string]string
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		connections: make(map[string]Connection),
		resolved:    make(map[string]string),
	}
}

// Register adds a connection under a keyword, replacing any previous one and
// dropping its memoized result.
func (r *Resolver) Register(keyword string, conn Connection) {
	r.mu.Lock()
	r.connections[keyword] = conn
	delete(r.resolved, keyword)
	r.mu.Unlock()
}

// Keywords returns the registered connection keywords.
func (r *Resolver) Keywords() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.connections))
	for k := range r.connections {
		out = append(out, k)
	}
	return out
}

// TrackingURI resolves a URI setting. A registered keyword resolves through
// its connection (memoized per keyword); any other value is returned as a
// literal URI.
func (r *Resolver) TrackingURI(setting string, credentials, options map[string]string) (string, error) {
	r.mu.Lock()
	if uri, ok := r.resolved[setting]; ok {
		r.mu.Unlock()
		return uri, nil
	}
	conn, ok := r.connections[setting]
	r.mu.Unlock()

	if !ok {
		return setting, nil
	}

	uri, err := conn.TrackingURI(credentials, options)
	if err != nil {
		return "", fmt.Errorf("connection '%s' failed to resolve tracking URI: %w", setting, err)
	}

	r.mu.Lock()
	r.resolved[setting] = uri
	r.mu.Unlock()
	return uri, nil
}

// RegistryURI resolves the model-registry URI for a setting. Connections
// without their own registry URI delegate to their tracking URI.
func (r *Resolver) RegistryURI(setting string, credentials, options map[string]string) (string, error) {
	r.mu.Lock()
	conn, ok := r.connections[setting]
	r.mu.Unlock()

	if !ok {
		return setting, nil
	}
	if provider, has := conn.(RegistryURIProvider); has {
		uri, err := provider.RegistryURI(credentials, options)
		if err != nil {
			return "", fmt.Errorf("connection '%s' failed to resolve registry URI: %w", setting, err)
		}
		return uri, nil
	}
	return r.TrackingURI(setting, credentials, options)
}

// defaultResolver is the process-wide table, populated at init with the
// built-in connections.
var defaultResolver = func() *Resolver {
	r := NewResolver()
	r.Register("databricks", DatabricksConnection{})
	r.Register("env", EnvConnection{})
	return r
}()

// Default returns the process-wide resolver.
func Default() *Resolver {
	return defaultResolver
}

// DatabricksConnection resolves the "databricks" keyword as itself: the
// downstream tracking client treats the literal as a managed endpoint.
type DatabricksConnection struct{}

// TrackingURI returns the databricks keyword unchanged.
func (DatabricksConnection) TrackingURI(credentials, options map[string]string) (string, error) {
	return "databricks", nil
}

// EnvConnection resolves tracking and registry URIs from environment
// variables, with explicit option overrides.
//
// Options (or environment fallbacks):
//   - tracking_uri / DAEDALUS_TRACKING_URI: required
//   - registry_uri / DAEDALUS_REGISTRY_URI: optional, defaults to tracking
type EnvConnection struct{}

// TrackingURI reads the tracking URI option, failing fast when absent.
func (EnvConnection) TrackingURI(credentials, options map[string]string) (string, error) {
	return Getkey(options, "tracking_uri", "DAEDALUS_TRACKING_URI", "")
}

// RegistryURI reads the registry URI option, defaulting to the tracking URI.
func (e EnvConnection) RegistryURI(credentials, options map[string]string) (string, error) {
	if uri, err := Getkey(options, "registry_uri", "DAEDALUS_REGISTRY_URI", ""); err == nil {
		return uri, nil
	}
	return e.TrackingURI(credentials, options)
}
