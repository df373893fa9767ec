package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Snapshot is a point-in-time copy of all four collections.
//
// A nil slice means the collection is missing, which is different from an empty
// collection and makes the snapshot unusable for import.
type Snapshot struct {
	Products     []Product     `json:"products"`
	Categories   []Category    `json:"categories"`
	Tables       []Table       `json:"tables"`
	Transactions []Transaction `json:"transactions"`

	// Revision is the local store revision the snapshot was read at.
	// It never leaves the device.
	Revision uint64 `json:"-"`
}

// EmptySnapshot returns a snapshot with four empty, non-nil collections.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		Products:     []Product{},
		Categories:   []Category{},
		Tables:       []Table{},
		Transactions: []Transaction{},
	}
}

// Records returns every record of collection c as Record values.
func (s *Snapshot) Records(c Collection) []Record {
	var out []Record
	switch c {
	case Products:
		for i := range s.Products {
			out = append(out, &s.Products[i])
		}
	case Categories:
		for i := range s.Categories {
			out = append(out, &s.Categories[i])
		}
	case Tables:
		for i := range s.Tables {
			out = append(out, &s.Tables[i])
		}
	case Transactions:
		for i := range s.Transactions {
			out = append(out, &s.Transactions[i])
		}
	}
	return out
}

// Count returns the number of records in collection c.
func (s *Snapshot) Count(c Collection) int {
	switch c {
	case Products:
		return len(s.Products)
	case Categories:
		return len(s.Categories)
	case Tables:
		return len(s.Tables)
	case Transactions:
		return len(s.Transactions)
	}
	return 0
}

// Missing returns the collections that are absent (nil) from the snapshot.
func (s *Snapshot) Missing() []Collection {
	var missing []Collection
	if s.Products == nil {
		missing = append(missing, Products)
	}
	if s.Categories == nil {
		missing = append(missing, Categories)
	}
	if s.Tables == nil {
		missing = append(missing, Tables)
	}
	if s.Transactions == nil {
		missing = append(missing, Transactions)
	}
	return missing
}

// Validate checks that the snapshot can replace local state in full.
// It rejects missing collections, invalid records, duplicate ids within a
// collection and duplicate category names.
func (s *Snapshot) Validate() error {
	if s == nil {
		return rejected("snapshot is empty")
	}
	if missing := s.Missing(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, c := range missing {
			names[i] = string(c)
		}
		return rejected("missing collections: %s", strings.Join(names, ", "))
	}

	for _, c := range AllCollections {
		seen := make(map[int64]bool, s.Count(c))
		for _, rec := range s.Records(c) {
			id := rec.RecordID()
			if id <= 0 {
				return rejected("%s record without id", c)
			}
			if seen[id] {
				return rejected("duplicate %s id %d", c, id)
			}
			seen[id] = true
			if err := rec.Validate(); err != nil {
				return fmt.Errorf("%w: %s %d: %v", ErrImportRejected, c, id, err)
			}
		}
	}

	names := make(map[string]bool, len(s.Categories))
	for _, cat := range s.Categories {
		if names[cat.Name] {
			return rejected("duplicate category name %q", cat.Name)
		}
		names[cat.Name] = true
	}
	return nil
}

// NormalizeMerges makes MergedWith symmetric across tables. References to
// tables that are not in the slice and self references are dropped, duplicates
// are collapsed and missing reciprocal entries are added. Order data is not
// touched.
func NormalizeMerges(tables []Table) {
	index := make(map[int64]int, len(tables))
	for i, t := range tables {
		index[t.ID] = i
	}

	pairs := make(map[[2]int64]bool)
	for _, t := range tables {
		for _, other := range t.MergedWith {
			if other == t.ID {
				continue
			}
			if _, ok := index[other]; !ok {
				continue
			}
			a, b := t.ID, other
			if a > b {
				a, b = b, a
			}
			pairs[[2]int64{a, b}] = true
		}
	}

	for i := range tables {
		tables[i].MergedWith = []int64{}
	}
	for pair := range pairs {
		ia, ib := index[pair[0]], index[pair[1]]
		tables[ia].MergedWith = append(tables[ia].MergedWith, pair[1])
		tables[ib].MergedWith = append(tables[ib].MergedWith, pair[0])
	}
	for i := range tables {
		slices.Sort(tables[i].MergedWith)
	}
}

// Document is the shared remote document: a full snapshot stamped with the
// logical clock of the device that wrote it.
type Document struct {
	Snapshot

	// LastUpdate is the logical clock in milliseconds.
	LastUpdate int64 `json:"lastUpdate"`

	// DeviceID identifies the writer. Diagnostic only.
	DeviceID string `json:"deviceId,omitempty"`
}

// DecodeDocument parses a document. Collections absent from data stay nil so
// the import step can reject them.
func DecodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &doc, nil
}
