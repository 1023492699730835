package portfolio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrPortfolioNotFound is returned for unknown portfolio ids.
var ErrPortfolioNotFound = errors.New("portfolio: not found")

// Provider supplies portfolios by id.
type Provider interface {
	Portfolio(ctx context.Context, id string) (*Portfolio, error)
}

// StaticProvider serves portfolios held in memory.
type StaticProvider struct {
	mu         sync.RWMutex
	portfolios map[string]*Portfolio
}

// NewStaticProvider creates a provider over the given portfolios.
func NewStaticProvider(portfolios ...*Portfolio) (*StaticProvider, error) {
	p := &StaticProvider{portfolios: make(map[string]*Portfolio, len(portfolios))}
	for _, pf := range portfolios {
		if err := p.Add(pf); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Add validates and registers a portfolio.
func (p *StaticProvider) Add(pf *Portfolio) error {
	if err := pf.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.portfolios[pf.ID]; exists {
		return fmt.Errorf("portfolio: duplicate portfolio %s", pf.ID)
	}
	p.portfolios[pf.ID] = pf
	return nil
}

// Portfolio implements Provider.
func (p *StaticProvider) Portfolio(ctx context.Context, id string) (*Portfolio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	pf, ok := p.portfolios[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPortfolioNotFound, id)
	}
	return pf, nil
}

// IDs returns the portfolio ids in sorted order.
func (p *StaticProvider) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.portfolios))
	for id := range p.portfolios {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type portfolioFile struct {
	Portfolios []*Portfolio `yaml:"portfolios"`
}

// ParseYAML decodes portfolios from YAML bytes.
func ParseYAML(data []byte) (*StaticProvider, error) {
	var file portfolioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("portfolio: decode: %w", err)
	}
	if len(file.Portfolios) == 0 {
		return nil, fmt.Errorf("portfolio: no portfolios defined")
	}
	return NewStaticProvider(file.Portfolios...)
}

// LoadFile loads portfolios from a YAML file.
func LoadFile(path string) (*StaticProvider, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("portfolio: read %s: %w", path, err)
	}
	provider, err := ParseYAML(content)
	if err != nil {
		return nil, fmt.Errorf("portfolio: %s: %w", path, err)
	}
	return provider, nil
}
