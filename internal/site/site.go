package site

import "fmt"

// Site is one managed site in the platform.
type Site struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Host string `json:"host" yaml:"host"`
	Env  string `json:"env" yaml:"env"` // "production", "staging", etc.
}

// Catalog is a read-only lookup of sites by ID.
// It is built once from config and never mutated afterwards.
type Catalog struct {
	byID  map[string]*Site
	order []string
}

// NewCatalog builds a Catalog from a list of sites.
func NewCatalog(sites []Site) *Catalog {
	c := &Catalog{byID: make(map[string]*Site, len(sites))}
	for i := range sites {
		s := sites[i]
		if _, exists := c.byID[s.ID]; exists {
			continue // validation rejects duplicates; first wins here
		}
		c.byID[s.ID] = &s
		c.order = append(c.order, s.ID)
	}
	return c
}

// Get returns the site for the given ID.
func (c *Catalog) Get(id string) (*Site, error) {
	s, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("no site registered with id %q", id)
	}
	return s, nil
}

// IDs returns all site IDs in catalog order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of sites in the catalog.
func (c *Catalog) Len() int { return len(c.byID) }
