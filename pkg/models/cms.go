package models

// Widget names the expected value type of a collection field.
const (
	WidgetString   = "string"
	WidgetText     = "text"
	WidgetNumber   = "number"
	WidgetBoolean  = "boolean"
	WidgetList     = "list"
	WidgetDatetime = "datetime"
)

// BodyField is the pseudo field name that refers to a record's body.
const BodyField = "body"

// Schema describes the content collections of a site.
type Schema struct {
	Collections []Collection `yaml:"collections"`
}

type Collection struct {
	Name      string  `yaml:"name"`
	Label     string  `yaml:"label"`
	Folder    string  `yaml:"folder"`
	Extension string  `yaml:"extension"`
	Fields    []Field `yaml:"fields"`
}

type Field struct {
	Name     string      `yaml:"name"`
	Widget   string      `yaml:"widget"`
	Required bool        `yaml:"required"`
	Default  interface{} `yaml:"default,omitempty"`
}
