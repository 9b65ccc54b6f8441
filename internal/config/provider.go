package config

import (
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/memristive.report/internal/ivsweep"
)

// Provider holds the active classifier. Readers always see a complete
// classifier; Reload swaps the whole reference, so in-flight
// classifications finish with the configuration they started with.
type Provider struct {
	current atomic.Pointer[ivsweep.Classifier]
	source  atomic.Pointer[string]
}

// NewProvider builds a provider around cfg.
func NewProvider(cfg ivsweep.Config) (*Provider, error) {
	c, err := ivsweep.NewClassifier(cfg)
	if err != nil {
		return nil, err
	}
	p := &Provider{}
	p.current.Store(c)
	src := "built-in"
	p.source.Store(&src)
	return p, nil
}

// Classifier returns the classifier currently in use.
func (p *Provider) Classifier() *ivsweep.Classifier {
	return p.current.Load()
}

// Classify runs in on the classifier active at the time of the call, so a
// Provider can stand in wherever a single classifier is expected.
func (p *Provider) Classify(in ivsweep.Input) (*ivsweep.Result, error) {
	return p.current.Load().Classify(in)
}

// Source describes where the active configuration came from.
func (p *Provider) Source() string {
	return *p.source.Load()
}

// Reload loads path and, when it is valid, makes it the active
// configuration. On error the previous classifier stays in place.
func (p *Provider) Reload(path string) error {
	cfg, err := LoadClassificationConfig(path)
	if err != nil {
		return err
	}
	cc, err := cfg.ClassifierConfig()
	if err != nil {
		return err
	}
	c, err := ivsweep.NewClassifier(cc)
	if err != nil {
		return fmt.Errorf("failed to build classifier from %s: %w", path, err)
	}
	p.current.Store(c)
	p.source.Store(&path)
	return nil
}
