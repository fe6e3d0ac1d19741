package services

import (
	"fmt"
	"path"
	"strings"
	"time"

	"hugo-content/pkg/models"

	"github.com/pelletier/go-toml/v2"
)

var knownWidgets = map[string]bool{
	"":                    true,
	models.WidgetString:   true,
	models.WidgetText:     true,
	models.WidgetNumber:   true,
	models.WidgetBoolean:  true,
	models.WidgetList:     true,
	models.WidgetDatetime: true,
}

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Violation is one schema problem found in a record.
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (v Violation) String() string {
	return v.Field + ": " + v.Reason
}

// ValidateSchema checks collection names are unique and widgets are known.
func ValidateSchema(schema *models.Schema) error {
	names := map[string]bool{}
	for i, c := range schema.Collections {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("collection %d has no name", i)
		}
		if names[c.Name] {
			return fmt.Errorf("duplicate collection %q", c.Name)
		}
		names[c.Name] = true
		for _, f := range c.Fields {
			if f.Name == "" {
				return fmt.Errorf("collection %q: field without name", c.Name)
			}
			if !knownWidgets[f.Widget] {
				return fmt.Errorf("collection %q: field %q: unknown widget %q", c.Name, f.Name, f.Widget)
			}
		}
	}
	return nil
}

// CollectionFor returns the collection whose folder holds the content path,
// preferring the deepest folder. It returns nil when none matches.
func CollectionFor(schema *models.Schema, contentPath string) *models.Collection {
	if schema == nil {
		return nil
	}
	contentPath = path.Clean(contentPath)

	var best *models.Collection
	bestDepth := -1
	for i := range schema.Collections {
		c := &schema.Collections[i]
		ext := strings.TrimPrefix(c.Extension, ".")
		if ext == "" {
			ext = "md"
		}
		if strings.TrimPrefix(path.Ext(contentPath), ".") != ext {
			continue
		}

		folder := strings.Trim(path.Clean("/"+c.Folder), "/")
		depth := 0
		if folder != "" {
			if !strings.HasPrefix(contentPath, folder+"/") {
				continue
			}
			depth = strings.Count(folder, "/") + 1
		}
		if depth > bestDepth {
			best, bestDepth = c, depth
		}
	}
	return best
}

// CheckRecord reports missing required fields and values whose type does not
// match the field widget.
func CheckRecord(record *models.ContentRecord, collection *models.Collection) []Violation {
	if collection == nil {
		return nil
	}
	var violations []Violation
	for _, field := range collection.Fields {
		if field.Name == models.BodyField {
			if field.Required && strings.TrimSpace(record.Body()) == "" {
				violations = append(violations, Violation{Field: field.Name, Reason: "body is empty"})
			}
			continue
		}

		value, ok := record.Get(field.Name)
		if !ok || isEmptyValue(value) {
			if field.Required {
				violations = append(violations, Violation{Field: field.Name, Reason: "required field is missing"})
			}
			continue
		}
		if !widgetAccepts(field.Widget, value) {
			violations = append(violations, Violation{
				Field:  field.Name,
				Reason: fmt.Sprintf("expected %s, got %T", field.Widget, value),
			})
		}
	}
	return violations
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	}
	return false
}

func widgetAccepts(widget string, v any) bool {
	switch widget {
	case models.WidgetString, models.WidgetText:
		_, ok := v.(string)
		return ok
	case models.WidgetNumber:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case models.WidgetBoolean:
		_, ok := v.(bool)
		return ok
	case models.WidgetList:
		_, ok := v.([]any)
		return ok
	case models.WidgetDatetime:
		return isDatetime(v)
	default:
		return true
	}
}

func isDatetime(v any) bool {
	switch x := v.(type) {
	case time.Time, toml.LocalDate, toml.LocalDateTime:
		return true
	case string:
		for _, layout := range datetimeLayouts {
			if _, err := time.Parse(layout, x); err == nil {
				return true
			}
		}
	}
	return false
}

// ApplyDefaults returns a record with absent fields filled from the
// collection defaults. Records without a metadata block are returned as is.
func ApplyDefaults(record *models.ContentRecord, collection *models.Collection) *models.ContentRecord {
	if collection == nil || !record.HasMetadata() {
		return record
	}
	meta := record.Metadata()
	keys := record.Keys()
	changed := false
	for _, field := range collection.Fields {
		if field.Name == models.BodyField || field.Default == nil {
			continue
		}
		if _, exists := meta[field.Name]; !exists {
			meta[field.Name] = field.Default
			keys = append(keys, field.Name)
			changed = true
		}
	}
	if !changed {
		return record
	}
	return models.NewContentRecord(record.Path(), record.Format(), keys, meta, record.Body())
}

// GenerateRecord builds a new YAML record for a collection. Overrides win over
// field defaults; fields with neither get a zero value for their widget.
func GenerateRecord(contentPath string, collection *models.Collection, overrides map[string]any, now time.Time) *models.ContentRecord {
	meta := make(map[string]any)
	var keys []string
	var body string

	for _, field := range collection.Fields {
		val, ok := overrides[field.Name]
		if !ok {
			val = field.Default
		}

		if field.Name == models.BodyField {
			if s, ok := val.(string); ok {
				body = s
			}
			continue
		}

		if val == nil {
			switch field.Widget {
			case models.WidgetDatetime:
				val = now.Format(time.RFC3339)
			case models.WidgetBoolean:
				val = false
			case models.WidgetList:
				val = []any{}
			case models.WidgetNumber:
				val = 0
			default:
				val = ""
			}
		}
		meta[field.Name] = val
		keys = append(keys, field.Name)
	}

	for k, v := range overrides {
		if _, ok := meta[k]; !ok && k != models.BodyField {
			meta[k] = v
		}
	}

	return models.NewContentRecord(contentPath, models.FormatYAML, keys, meta, body)
}
