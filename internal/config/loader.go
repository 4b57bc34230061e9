package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// fileDocument is the on-disk shape:
//
//	eps_limits:
//	  max_eps: 100
//	  timeframe_eps: 10
type fileDocument struct {
	EPSLimits struct {
		MaxEPS       interface{} `yaml:"max_eps"`
		TimeframeEPS interface{} `yaml:"timeframe_eps"`
	} `yaml:"eps_limits"`
}

// Loader reads Document values from a YAML file and implements Source. It
// remembers the last successfully parsed document, available through
// LastKnownGood, so a caller can fall back to it when the file is
// temporarily unreadable.
type Loader struct {
	path string

	mu   sync.RWMutex
	last Document
	have bool
}

// NewLoader returns a Loader reading from path. The file need not exist
// yet; a missing file is reported as StatusDisabled.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the file path this loader watches.
func (l *Loader) Path() string { return l.path }

// Lookup implements Source. A missing file or a file that fails to parse
// as YAML is reported as StatusDisabled rather than an error: the daemon
// treats an absent or broken config file the same way it treats an
// operator explicitly disabling the feature.
func (l *Loader) Lookup(daemonName string) (Document, LookupStatus) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return Document{}, StatusDisabled
	}

	var fd fileDocument
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return Document{}, StatusDisabled
	}

	doc := Document{MaxEPS: fd.EPSLimits.MaxEPS, TimeframeEPS: fd.EPSLimits.TimeframeEPS}

	l.mu.Lock()
	l.last = doc
	l.have = true
	l.mu.Unlock()

	return doc, StatusOK
}

// LastKnownGood returns the most recently parsed document, if any.
func (l *Loader) LastKnownGood() (Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last, l.have
}
