// Package identity maps raw channel addresses and free text to known
// customer records. Matching is deliberately fuzzy: phone numbers are
// compared over a canonical variant set, and site names are scored with a
// token-substring heuristic. The scoring formulas are part of the observable
// behaviour and must not be "improved" without updating the tests.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
)

// Customer is immutable reference data loaded from the directory file.
// The engine binds sessions to customers but never mutates them.
type Customer struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Site    string   `json:"site"`
	Phones  []string `json:"phones"`  // up to 5 dialing forms per record
	Address string   `json:"address"`
	Email   string   `json:"email"`
	Aliases []string `json:"aliases,omitempty"` // nicknames that short-circuit site scoring
}

// Directory holds the customer list in stored order. Order matters: the
// first satisfying record wins on ties, an ambiguity inherited from the
// upstream data and kept as-is (see DESIGN.md).
type Directory struct {
	customers []Customer
}

// NewDirectory wraps an already-loaded customer list.
func NewDirectory(customers []Customer) *Directory {
	return &Directory{customers: customers}
}

// LoadDirectory reads the customer directory from a JSON file.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read customer directory: %w", err)
	}
	var customers []Customer
	if err := json.Unmarshal(data, &customers); err != nil {
		return nil, fmt.Errorf("parse customer directory: %w", err)
	}
	return &Directory{customers: customers}, nil
}

// Customers returns the list in stored order.
func (d *Directory) Customers() []Customer { return d.customers }

// ByID returns the customer with the given id, or nil.
func (d *Directory) ByID(id string) *Customer {
	for i := range d.customers {
		if d.customers[i].ID == id {
			return &d.customers[i]
		}
	}
	return nil
}

// Len returns the number of directory entries.
func (d *Directory) Len() int { return len(d.customers) }
