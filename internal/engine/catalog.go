package engine

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Column is an immutable catalog entry.
type Column struct {
	Number    int `yaml:"number" json:"number"`
	MaxHeight int `yaml:"max_height" json:"max_height"`
}

// Catalog maps column numbers to their completion length.
type Catalog struct {
	columns map[int]Column
}

type catalogFile struct {
	Columns []Column `yaml:"columns"`
}

// DefaultCatalog returns the classic board: columns 2 through 12.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Column{
		{Number: 2, MaxHeight: 3},
		{Number: 3, MaxHeight: 5},
		{Number: 4, MaxHeight: 7},
		{Number: 5, MaxHeight: 9},
		{Number: 6, MaxHeight: 11},
		{Number: 7, MaxHeight: 13},
		{Number: 8, MaxHeight: 11},
		{Number: 9, MaxHeight: 9},
		{Number: 10, MaxHeight: 7},
		{Number: 11, MaxHeight: 5},
		{Number: 12, MaxHeight: 3},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalog validates cols and builds a catalog.
func NewCatalog(cols []Column) (*Catalog, error) {
	if len(cols) == 0 {
		return nil, errors.New("catalog has no columns")
	}
	c := &Catalog{columns: make(map[int]Column, len(cols))}
	for _, col := range cols {
		if col.MaxHeight <= 0 {
			return nil, fmt.Errorf("column %d: max_height must be positive", col.Number)
		}
		if _, dup := c.columns[col.Number]; dup {
			return nil, fmt.Errorf("column %d: duplicate entry", col.Number)
		}
		c.columns[col.Number] = col
	}
	return c, nil
}

// LoadCatalog reads a YAML catalog of the form `columns: [{number, max_height}]`.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("catalog.yaml: %w", err)
	}
	return NewCatalog(f.Columns)
}

// Lookup returns the column numbered n.
func (c *Catalog) Lookup(n int) (Column, bool) {
	col, ok := c.columns[n]
	return col, ok
}

// Columns returns every column ordered by number.
func (c *Catalog) Columns() []Column {
	out := make([]Column, 0, len(c.columns))
	for _, col := range c.columns {
		out = append(out, col)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
