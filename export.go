package docdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
)

type exportFile struct {
	Collections []*exportedCollection `json:"collections"`
}

type exportedCollection struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Indices    []exportedIndex   `json:"indices,omitempty"`
	Documents  []*Document       `json:"documents"`
}

type exportedIndex struct {
	Fields []string `json:"fields"`
	Kind   string   `json:"kind"`
}

func parseIndexKind(s string) (IndexKind, error) {
	for _, k := range []IndexKind{Unique, NonUnique, Fulltext} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, validationErrf("unknown index kind %q", s)
}

// Export writes the named collections, or all of them, to a JSON file. The
// file is replaced atomically.
func (db *DB) Export(path string, names ...string) error {
	if len(names) == 0 {
		names = db.ListCollections()
	}
	var ef exportFile
	for _, name := range names {
		c, err := db.Collection(name)
		if err != nil {
			return err
		}
		ec, err := exportCollection(c)
		if err != nil {
			return fmt.Errorf("docdb: exporting %s: %w", name, err)
		}
		ef.Collections = append(ef.Collections, ec)
	}

	data, err := json.MarshalIndent(&ef, "", "  ")
	if err != nil {
		return fmt.Errorf("docdb: exporting: %w", err)
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("docdb: exporting: %w", err)
	}
	return nil
}

func exportCollection(c *Collection) (*exportedCollection, error) {
	cur, err := c.Find(All())
	if err != nil {
		return nil, err
	}
	docs, err := cur.All()
	if err != nil {
		return nil, err
	}
	attrs, err := c.Attributes()
	if err != nil {
		return nil, err
	}
	indices, err := c.ListIndices()
	if err != nil {
		return nil, err
	}
	ec := &exportedCollection{
		Name:       c.Name(),
		Attributes: attrs,
		Documents:  docs,
	}
	if ec.Documents == nil {
		ec.Documents = []*Document{}
	}
	for _, desc := range indices {
		ec.Indices = append(ec.Indices, exportedIndex{Fields: desc.Fields, Kind: desc.Kind.String()})
	}
	return ec, nil
}

// Import loads a file written by Export. Documents keep their ids, so
// importing into a collection that already holds one of them fails with
// ErrUniqueConstraint. Existing indexes are kept as they are.
func (db *DB) Import(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("docdb: importing: %w", err)
	}
	var ef exportFile
	if err := json.Unmarshal(data, &ef); err != nil {
		return fmt.Errorf("docdb: importing %s: %w", path, err)
	}
	for _, ec := range ef.Collections {
		if err := db.importCollection(ec); err != nil {
			return fmt.Errorf("docdb: importing %s: %w", ec.Name, err)
		}
	}
	return nil
}

func (db *DB) importCollection(ec *exportedCollection) error {
	c, err := db.Collection(ec.Name)
	if err != nil {
		return err
	}
	docs := make([]*Document, 0, len(ec.Documents))
	for _, d := range ec.Documents {
		if d == nil {
			continue
		}
		d.delete(FieldRevision)
		d.delete(FieldModified)
		docs = append(docs, d)
	}
	if _, err := c.Insert(docs...); err != nil {
		return err
	}
	for _, ix := range ec.Indices {
		kind, err := parseIndexKind(ix.Kind)
		if err != nil {
			return err
		}
		has, err := c.HasIndex(ix.Fields...)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if err := c.CreateIndex(IndexOptions{Kind: kind}, ix.Fields...); err != nil {
			return err
		}
	}
	if len(ec.Attributes) > 0 {
		attrs, err := c.Attributes()
		if err != nil {
			return err
		}
		for k, v := range ec.Attributes {
			attrs[k] = v
		}
		return c.SetAttributes(attrs)
	}
	return nil
}
