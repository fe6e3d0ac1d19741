package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"hugo-content/pkg/models"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const utf8BOM = "\ufeff"

// The metadata block always starts on the second line of the file.
const blockLineOffset = 1

var delimiters = map[models.Format]string{
	models.FormatYAML: "---",
	models.FormatTOML: "+++",
}

// DuplicatePolicy decides what happens when a metadata key appears twice.
type DuplicatePolicy int

const (
	// DuplicateOverwrite keeps the later value at the position of the first key.
	DuplicateOverwrite DuplicatePolicy = iota
	// DuplicateReject fails the parse with a MalformedRecordError.
	DuplicateReject
)

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite":
		return DuplicateOverwrite, nil
	case "reject":
		return DuplicateReject, nil
	}
	return DuplicateOverwrite, fmt.Errorf("unknown duplicate key policy %q (want overwrite or reject)", s)
}

func (p DuplicatePolicy) String() string {
	if p == DuplicateReject {
		return "reject"
	}
	return "overwrite"
}

type ParseOptions struct {
	// Formats limits the recognized metadata delimiters. Empty means YAML and TOML.
	Formats []models.Format
	// Duplicates applies to YAML blocks; TOML rejects duplicate keys itself.
	Duplicates DuplicatePolicy
	// AllowNested accepts mappings and nested sequences as values.
	AllowNested bool
}

func (o ParseOptions) formatFor(line string) (models.Format, bool) {
	formats := o.Formats
	if len(formats) == 0 {
		formats = []models.Format{models.FormatYAML, models.FormatTOML}
	}
	for _, f := range formats {
		if marker, ok := delimiters[f]; ok && line == marker {
			return f, true
		}
	}
	return "", false
}

// ParseFormats turns names such as "yaml,toml" into formats.
func ParseFormats(names []string) ([]models.Format, error) {
	var out []models.Format
	for _, name := range names {
		f := models.Format(strings.ToLower(strings.TrimSpace(name)))
		if f == "" {
			continue
		}
		if _, ok := delimiters[f]; !ok {
			return nil, fmt.Errorf("unknown front matter format %q", name)
		}
		out = append(out, f)
	}
	return out, nil
}

// ParseRecord splits raw file content into its metadata block and body.
//
// A file whose first line is not a recognized delimiter has no metadata and
// its whole content becomes the body. Otherwise the block runs up to the next
// line holding the same delimiter, and the body is everything after that
// line minus at most one leading blank line. Any failure is returned as a
// *MalformedRecordError and no record is produced.
func ParseRecord(file string, content []byte, opts ParseOptions) (*models.ContentRecord, error) {
	text := string(content)
	start := 0
	if strings.HasPrefix(text, utf8BOM) {
		start = len(utf8BOM)
	}

	first, off := nextLine(text, start)
	format, ok := opts.formatFor(trimLine(first))
	if !ok {
		return models.NewContentRecord(file, models.FormatNone, nil, nil, text), nil
	}
	marker := delimiters[format]

	interiorStart, closing := off, -1
	for off < len(text) {
		pos := off
		var line string
		line, off = nextLine(text, off)
		if trimLine(line) == marker {
			closing = pos
			break
		}
	}
	if closing < 0 {
		return nil, malformed(file, 1, "unterminated metadata block: no closing %q line", marker)
	}

	interior := text[interiorStart:closing]
	var (
		keys []string
		meta map[string]any
		err  error
	)
	switch format {
	case models.FormatTOML:
		keys, meta, err = parseTOMLBlock(file, interior, opts)
	default:
		keys, meta, err = parseYAMLBlock(file, interior, opts)
	}
	if err != nil {
		return nil, err
	}

	return models.NewContentRecord(file, format, keys, meta, stripBlankLine(text[off:])), nil
}

// nextLine returns the line starting at off without its terminator, and the
// offset just past it.
func nextLine(s string, off int) (string, int) {
	if i := strings.IndexByte(s[off:], '\n'); i >= 0 {
		return strings.TrimSuffix(s[off:off+i], "\r"), off + i + 1
	}
	return strings.TrimSuffix(s[off:], "\r"), len(s)
}

func trimLine(line string) string {
	return strings.TrimRight(line, " \t")
}

func stripBlankLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 && strings.TrimSpace(s[:i]) == "" {
		return s[i+1:]
	}
	return s
}

func fileLine(blockLine int) int {
	if blockLine <= 0 {
		return 0
	}
	return blockLine + blockLineOffset
}

var yamlLineError = regexp.MustCompile(`^yaml: line (\d+): (.*)$`)

func parseYAMLBlock(file, interior string, opts ParseOptions) ([]string, map[string]any, error) {
	dec := yaml.NewDecoder(strings.NewReader(interior))
	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, yamlError(file, err)
	}
	// A "..." or "--- # comment" line would start a second document.
	var next yaml.Node
	switch err := dec.Decode(&next); {
	case err == nil:
		return nil, nil, malformed(file, documentMarkerLine(interior), "unexpected document marker")
	case !errors.Is(err, io.EOF):
		return nil, nil, yamlError(file, err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, map[string]any{}, nil
		}
		root = root.Content[0]
	}
	if root.Kind == 0 {
		return nil, map[string]any{}, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, nil, malformed(file, fileLine(root.Line), "expected key: value lines")
	}

	keys := make([]string, 0, len(root.Content)/2)
	meta := make(map[string]any, len(root.Content)/2)
	firstSeen := make(map[string]int, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if k.Kind != yaml.ScalarNode || strings.TrimSpace(k.Value) == "" {
			return nil, nil, malformed(file, fileLine(k.Line), "metadata keys must be non-empty scalars")
		}
		if line, dup := firstSeen[k.Value]; dup {
			if opts.Duplicates == DuplicateReject {
				return nil, nil, malformed(file, fileLine(k.Line), "duplicate key %q (first defined on line %d)", k.Value, line)
			}
		} else {
			firstSeen[k.Value] = fileLine(k.Line)
			keys = append(keys, k.Value)
		}

		value, err := yamlValue(file, v, opts, false)
		if err != nil {
			return nil, nil, err
		}
		meta[k.Value] = value
	}
	return keys, meta, nil
}

func yamlError(file string, err error) error {
	msg := err.Error()
	if m := yamlLineError.FindStringSubmatch(msg); m != nil {
		n, _ := strconv.Atoi(m[1])
		return malformed(file, fileLine(n), "%s", m[2])
	}
	return malformed(file, 0, "%s", strings.TrimPrefix(msg, "yaml: "))
}

func documentMarkerLine(interior string) int {
	for i, line := range strings.Split(interior, "\n") {
		line = trimLine(strings.TrimSuffix(line, "\r"))
		if line == "..." || line == "---" || strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "---\t") {
			return fileLine(i + 1)
		}
	}
	return 0
}

func yamlValue(file string, n *yaml.Node, opts ParseOptions, nested bool) (any, error) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	switch n.Kind {
	case yaml.ScalarNode:
		// Dates stay in their source spelling.
		if n.ShortTag() == "!!timestamp" {
			return n.Value, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, malformed(file, fileLine(n.Line), "invalid value: %v", err)
		}
		return v, nil
	case yaml.SequenceNode:
		if nested && !opts.AllowNested {
			return nil, malformed(file, fileLine(n.Line), "nested sequences are not allowed")
		}
		items := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := yamlValue(file, item, opts, true)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case yaml.MappingNode:
		if !opts.AllowNested {
			return nil, malformed(file, fileLine(n.Line), "nested mappings are not allowed")
		}
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return nil, malformed(file, fileLine(k.Line), "mapping keys must be scalars")
			}
			v, err := yamlValue(file, n.Content[i+1], opts, true)
			if err != nil {
				return nil, err
			}
			out[k.Value] = v
		}
		return out, nil
	}
	return nil, malformed(file, fileLine(n.Line), "unsupported value")
}

var (
	tomlKeyLine   = regexp.MustCompile(`^\s*([A-Za-z0-9_-]+|"(?:[^"\\]|\\.)*"|'[^']*')\s*=`)
	// Header of a [table] or [[array]]; group 1 is the first key segment.
	tomlTableLine = regexp.MustCompile(`^\s*\[\[?\s*([A-Za-z0-9_-]+|"(?:[^"\\]|\\.)*"|'[^']*')\s*(?:\.[^\]]*)?\]\]?\s*(?:#.*)?\r?$`)
)

func parseTOMLBlock(file, interior string, opts ParseOptions) ([]string, map[string]any, error) {
	meta := map[string]any{}
	if err := toml.Unmarshal([]byte(interior), &meta); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, _ := derr.Position()
			return nil, nil, malformed(file, fileLine(row), "%s", derr.Error())
		}
		return nil, nil, malformed(file, 0, "%v", err)
	}

	keys, lines := tomlKeyOrder(interior)
	for k, v := range meta {
		checked, err := tomlValue(v, opts, false)
		if err != nil {
			return nil, nil, malformed(file, lines[k], "key %q: %v", k, err)
		}
		meta[k] = checked
	}
	return keys, meta, nil
}

// tomlKeyOrder recovers the order of top-level keys, which the map decoding
// loses, together with the file line each key was found on.
func tomlKeyOrder(interior string) ([]string, map[string]int) {
	var keys []string
	lines := map[string]int{}
	inTables := false
	for i, line := range strings.Split(interior, "\n") {
		var m []string
		if h := tomlTableLine.FindStringSubmatch(line); h != nil {
			inTables = true
			m = h
		} else if !inTables {
			m = tomlKeyLine.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		key := unquoteTOMLKey(m[1])
		if _, ok := lines[key]; !ok {
			keys = append(keys, key)
			lines[key] = fileLine(i + 1)
		}
	}
	return keys, lines
}

func unquoteTOMLKey(key string) string {
	switch {
	case strings.HasPrefix(key, `"`):
		if unq, err := strconv.Unquote(key); err == nil {
			return unq
		}
	case strings.HasPrefix(key, "'"):
		return strings.Trim(key, "'")
	}
	return key
}

func tomlValue(value any, opts ParseOptions, nested bool) (any, error) {
	switch v := value.(type) {
	case []any:
		if nested && !opts.AllowNested {
			return nil, errors.New("nested arrays are not allowed")
		}
		out := make([]any, len(v))
		for i := range v {
			item, err := tomlValue(v[i], opts, true)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case map[string]any:
		if !opts.AllowNested {
			return nil, errors.New("nested tables are not allowed")
		}
		out := make(map[string]any, len(v))
		for k, inner := range v {
			item, err := tomlValue(inner, opts, true)
			if err != nil {
				return nil, err
			}
			out[k] = item
		}
		return out, nil
	default:
		return v, nil
	}
}

// ConstructFileContent renders a record back into file text. Parsing the
// result yields a record equal to the input.
func ConstructFileContent(record *models.ContentRecord) ([]byte, error) {
	var buf bytes.Buffer
	switch record.Format() {
	case models.FormatNone:
		buf.WriteString(record.Body())
		return buf.Bytes(), nil
	case models.FormatYAML:
		buf.WriteString("---\n")
		if err := encodeYAMLBlock(&buf, record); err != nil {
			return nil, err
		}
		buf.WriteString("---\n")
	case models.FormatTOML:
		buf.WriteString("+++\n")
		if err := encodeTOMLBlock(&buf, record); err != nil {
			return nil, err
		}
		buf.WriteString("+++\n")
	default:
		return nil, fmt.Errorf("unsupported format: %s", record.Format())
	}

	if body := record.Body(); body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
	}
	return buf.Bytes(), nil
}

// NormalizeContent parses content and renders it in canonical form, filling
// absent fields from the collection defaults when a collection is given.
func NormalizeContent(file string, content []byte, collection *models.Collection, opts ParseOptions) ([]byte, error) {
	record, err := ParseRecord(file, content, opts)
	if err != nil {
		return nil, err
	}
	record = ApplyDefaults(record, collection)
	return ConstructFileContent(record)
}

func encodeYAMLBlock(buf *bytes.Buffer, record *models.ContentRecord) error {
	keys := record.Keys()
	if len(keys) == 0 {
		return nil
	}
	meta := record.Metadata()

	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		keyNode := &yaml.Node{}
		if err := keyNode.Encode(k); err != nil {
			return fmt.Errorf("encode key %q: %w", k, err)
		}
		valueNode, err := yamlNode(meta[k])
		if err != nil {
			return fmt.Errorf("encode key %q: %w", k, err)
		}
		root.Content = append(root.Content, keyNode, valueNode)
	}

	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return err
	}
	return enc.Close()
}

func yamlNode(value any) (*yaml.Node, error) {
	switch v := value.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case float64:
		return floatNode(v), nil
	case float32:
		return floatNode(float64(v)), nil
	case string:
		if isYAMLTimestamp(v) {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!timestamp", Value: v}, nil
		}
	case []any:
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, item := range v {
			n, err := yamlNode(item)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, n)
		}
		return seq, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		mapping := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range keys {
			keyNode := &yaml.Node{}
			if err := keyNode.Encode(k); err != nil {
				return nil, err
			}
			valueNode, err := yamlNode(v[k])
			if err != nil {
				return nil, err
			}
			mapping.Content = append(mapping.Content, keyNode, valueNode)
		}
		return mapping, nil
	}

	n := &yaml.Node{}
	if err := n.Encode(value); err != nil {
		return nil, err
	}
	return n, nil
}

// Layouts a plain YAML scalar resolves to a timestamp with.
var yamlTimestampLayouts = []string{
	"2006-1-2T15:4:5.999999999Z07:00",
	"2006-1-2t15:4:5.999999999Z07:00",
	"2006-1-2 15:4:5.999999999",
	"2006-1-2",
}

// isYAMLTimestamp reports whether s, written plain, reads back as a date.
// Such strings are written unquoted so dates keep their source form.
func isYAMLTimestamp(s string) bool {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i != 4 || i == len(s) || s[i] != '-' {
		return false
	}
	for _, layout := range yamlTimestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// floatNode keeps whole floats such as 2.0 from reading back as integers.
func floatNode(f float64) *yaml.Node {
	var s string
	switch {
	case math.IsNaN(f):
		s = ".nan"
	case math.IsInf(f, 1):
		s = ".inf"
	case math.IsInf(f, -1):
		s = "-.inf"
	default:
		s = strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: s}
}

func encodeTOMLBlock(buf *bytes.Buffer, record *models.ContentRecord) error {
	meta := record.Metadata()
	var tables []string
	for _, k := range record.Keys() {
		if meta[k] == nil {
			continue
		}
		if isTOMLTable(meta[k]) {
			tables = append(tables, k)
			continue
		}
		if err := encodeTOMLKey(buf, k, meta[k]); err != nil {
			return err
		}
	}
	// Tables and arrays of tables must follow every plain key of the block.
	for _, k := range tables {
		if err := encodeTOMLKey(buf, k, meta[k]); err != nil {
			return err
		}
	}
	return nil
}

// isTOMLTable reports whether a value is written under a [table] or
// [[array]] header rather than on a key = value line.
func isTOMLTable(value any) bool {
	switch v := value.(type) {
	case map[string]any:
		return true
	case []any:
		if len(v) == 0 {
			return false
		}
		for _, item := range v {
			if _, ok := item.(map[string]any); !ok {
				return false
			}
		}
		return true
	}
	return false
}

func encodeTOMLKey(buf *bytes.Buffer, key string, value any) error {
	b, err := toml.Marshal(map[string]any{key: value})
	if err != nil {
		return fmt.Errorf("encode key %q: %w", key, err)
	}
	buf.Write(b)
	return nil
}
