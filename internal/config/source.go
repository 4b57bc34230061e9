// Package config loads the daemon's settings from YAML files on disk: the
// EPS admission-control limits, with an fsnotify-driven hot-reload path so
// operators can retune without a restart, and epsd's own process-level
// AppConfig.
package config

// LookupStatus mirrors the status code returned alongside a configuration
// document by the daemon's config-lookup collaborator. StatusDisabled is
// the sentinel an operator uses to turn a feature off outright; any other
// value means "document present, parse it."
type LookupStatus int

const (
	// StatusOK indicates the document was read successfully.
	StatusOK LookupStatus = 0
	// StatusDisabled is the sentinel meaning "disabled by operator."
	StatusDisabled LookupStatus = -2
)

// Document is the pair of numeric fields the EPS limiter reads out of
// configuration. Fields are untyped because the source document (YAML or
// otherwise) may hand back a value of the wrong type, which the limiter
// must detect and coerce rather than fail on.
type Document struct {
	MaxEPS       interface{}
	TimeframeEPS interface{}
}

// Source is the configuration-lookup collaborator the EPS limiter
// consumes: load_limits_file(daemon_name) -> (document, status).
type Source interface {
	Lookup(daemonName string) (Document, LookupStatus)
}
