// Package deck edits solver input decks. Decks are kept as yaml.Node trees so
// comments, key order and untouched scalars survive a load/apply/save cycle.
package deck

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chkao831/Autotuning/internal/fsutil"
	"github.com/chkao831/Autotuning/internal/sweep"
)

// documentEnd terminates every written deck.
const documentEnd = "...\n"

// Deck is an immutable-by-convention input deck. Apply returns a new Deck and
// never mutates the receiver.
type Deck struct {
	doc *yaml.Node
}

// Parse decodes a YAML deck.
func Parse(data []byte) (*Deck, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse deck: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse deck: top level must be a mapping")
	}
	return &Deck{doc: &doc}, nil
}

// Load reads and parses the deck at path.
func Load(fsys fsutil.FileSystem, path string) (*Deck, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deck %s: %w", path, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Bytes encodes the deck with two-space indentation followed by an explicit
// document end marker.
func (d *Deck) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.doc); err != nil {
		return nil, fmt.Errorf("encode deck: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode deck: %w", err)
	}
	buf.WriteString(documentEnd)
	return buf.Bytes(), nil
}

// Save writes the deck to path.
func (d *Deck) Save(fsys fsutil.FileSystem, path string) error {
	data, err := d.Bytes()
	if err != nil {
		return err
	}
	if err := fsys.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write deck %s: %w", path, err)
	}
	return nil
}

// Lookup resolves path to its node. Missing or non-mapping segments yield a
// *PathError.
func (d *Deck) Lookup(path Path) (*yaml.Node, error) {
	node := d.doc.Content[0]
	for i, key := range path {
		node = deref(node)
		if node.Kind != yaml.MappingNode {
			return nil, &PathError{Path: path, Segment: i, Reason: "parent is not a mapping, cannot find"}
		}
		next := mappingValue(node, key)
		if next == nil {
			return nil, &PathError{Path: path, Segment: i, Reason: "missing key"}
		}
		node = next
	}
	return deref(node), nil
}

// Params returns the scalar entries of a smoother's ParameterList.
func (d *Deck) Params(base Path, smoother string) (map[string]string, error) {
	list, err := d.parameterList(base, smoother)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list.Content)/2)
	for i := 0; i+1 < len(list.Content); i += 2 {
		if v := deref(list.Content[i+1]); v.Kind == yaml.ScalarNode {
			out[list.Content[i].Value] = v.Value
		}
	}
	return out, nil
}

// Apply returns a copy of the deck with every setting of a written into its
// smoother's ParameterList under base. Settings whose key does not already
// exist in the live ParameterList are skipped and returned as ignored. A
// missing smoother is an error.
func (d *Deck) Apply(base Path, a sweep.Assignment) (*Deck, []sweep.Setting, error) {
	out := d.Clone()
	var ignored []sweep.Setting
	for _, s := range a {
		list, err := out.parameterList(base, s.Group)
		if err != nil {
			return nil, nil, err
		}
		target := mappingValue(list, s.Name)
		if target == nil {
			ignored = append(ignored, s)
			continue
		}
		target = deref(target)
		if target.Kind != yaml.ScalarNode {
			return nil, nil, fmt.Errorf("deck %s: %q is not a scalar", SmootherPath(base, s.Group), s.Name)
		}
		setScalar(target, s.Value)
	}
	return out, ignored, nil
}

// Clone deep-copies the deck.
func (d *Deck) Clone() *Deck {
	seen := make(map[*yaml.Node]*yaml.Node)
	return &Deck{doc: cloneNode(d.doc, seen)}
}

func (d *Deck) parameterList(base Path, smoother string) (*yaml.Node, error) {
	node, err := d.Lookup(SmootherPath(base, smoother))
	if err != nil {
		return nil, err
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("deck %s: not a mapping", SmootherPath(base, smoother))
	}
	return node, nil
}

// Stem is the deck file name without directory or extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func setScalar(n *yaml.Node, v sweep.Value) {
	wasString := n.Tag == "!!str"
	n.Kind = yaml.ScalarNode
	n.Value = v.String()
	switch v.Kind {
	case sweep.KindFloat:
		n.Tag = "!!float"
		n.Style = 0
	case sweep.KindInt:
		n.Tag = "!!int"
		n.Style = 0
	default:
		n.Tag = "!!str"
		if !wasString {
			n.Style = 0
		}
	}
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func deref(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func cloneNode(n *yaml.Node, seen map[*yaml.Node]*yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	if c, ok := seen[n]; ok {
		return c
	}
	c := *n
	seen[n] = &c
	if n.Content != nil {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = cloneNode(child, seen)
		}
	}
	c.Alias = cloneNode(n.Alias, seen)
	return &c
}
