package services

import (
	"bytes"
	"testing"

	"hugo-content/pkg/models"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParseRecordProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	text := gen.RegexMatch(`[A-Za-z0-9 ,.:'"#&*!?%@-]{0,24}`)

	properties.Property("re-parsing rendered records is idempotent", prop.ForAll(
		func(keys []string, strs []string, ints []int, floats []float64, lists [][]string, body string) bool {
			meta := map[string]any{}
			for i, k := range keys {
				switch i % 5 {
				case 0:
					meta[k] = pick(strs, i, "")
				case 1:
					meta[k] = pick(ints, i, 0)
				case 2:
					meta[k] = pick(floats, i, 0.5)
				case 3:
					meta[k] = i%2 == 0
				default:
					items := []any{}
					for _, s := range pick(lists, i, nil) {
						items = append(items, s)
					}
					meta[k] = items
				}
			}
			original := models.NewContentRecord("p.md", models.FormatYAML, keys, meta, body)

			text1, err := ConstructFileContent(original)
			if err != nil {
				return false
			}
			first, err := ParseRecord("p.md", text1, ParseOptions{})
			if err != nil {
				return false
			}
			text2, err := ConstructFileContent(first)
			if err != nil {
				return false
			}
			second, err := ParseRecord("p.md", text2, ParseOptions{})
			if err != nil {
				return false
			}

			return first.Equal(original) && second.Equal(first) && bytes.Equal(text1, text2)
		},
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(text),
		gen.SliceOf(gen.Int()),
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
		gen.SliceOf(gen.SliceOf(text)),
		gen.AnyString(),
	))

	properties.Property("input without a marker is all body", prop.ForAll(
		func(s string) bool {
			input := "x" + s
			record, err := ParseRecord("p.md", []byte(input), ParseOptions{})
			return err == nil &&
				!record.HasMetadata() &&
				len(record.Metadata()) == 0 &&
				record.Body() == input
		},
		gen.AnyString(),
	))

	properties.Property("unterminated blocks never yield a record", prop.ForAll(
		func(lines []string) bool {
			var buf bytes.Buffer
			buf.WriteString("---\n")
			for _, l := range lines {
				buf.WriteString(l)
				buf.WriteString("\n")
			}
			record, err := ParseRecord("p.md", buf.Bytes(), ParseOptions{})
			return record == nil && IsMalformed(err)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestNestedRoundTripProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	text := gen.RegexMatch(`[A-Za-z0-9 ,.:'"#&*!?%@-]{0,24}`)

	for _, format := range []models.Format{models.FormatYAML, models.FormatTOML} {
		properties.Property(string(format)+" records with nested values round trip", prop.ForAll(
			func(keys []string, strs []string, ints []int64, lists [][]string, inner []string, body string) bool {
				original := models.NewContentRecord("p.md", format, keys, nestedMeta(format, keys, strs, ints, lists, inner), body)
				return roundTrips(original, ParseOptions{AllowNested: true})
			},
			gen.SliceOf(gen.Identifier()),
			gen.SliceOf(text),
			gen.SliceOf(gen.Int64Range(-1e6, 1e6)),
			gen.SliceOf(gen.SliceOf(text)),
			gen.SliceOf(gen.Identifier()),
			gen.AnyString(),
		))
	}

	properties.TestingRun(t)
}

// nestedMeta builds metadata mixing scalars, lists, tables and lists of
// tables, typed the way each format decodes them.
func nestedMeta(format models.Format, keys, strs []string, ints []int64, lists [][]string, inner []string) map[string]any {
	integer := func(n int64) any {
		if format == models.FormatTOML {
			return n
		}
		return int(n)
	}
	table := func(i int) map[string]any {
		return map[string]any{
			pick(inner, i, "x"):   pick(strs, i, ""),
			pick(inner, i+1, "y"): integer(pick(ints, i, 0)),
		}
	}

	meta := map[string]any{}
	for i, k := range keys {
		switch i % 7 {
		case 0:
			meta[k] = pick(strs, i, "")
		case 1:
			meta[k] = integer(pick(ints, i, 0))
		case 2:
			// exact binary fractions survive both encoders
			meta[k] = float64(pick(ints, i, 0)) + 0.25
		case 3:
			meta[k] = i%2 == 0
		case 4:
			items := []any{}
			for _, s := range pick(lists, i, nil) {
				items = append(items, s)
			}
			meta[k] = items
		case 5:
			meta[k] = table(i)
		default:
			meta[k] = []any{table(i), table(i + 1)}
		}
	}
	return meta
}

// roundTrips renders a record, parses it back twice and checks both the
// records and the rendered text are stable.
func roundTrips(original *models.ContentRecord, opts ParseOptions) bool {
	text1, err := ConstructFileContent(original)
	if err != nil {
		return false
	}
	first, err := ParseRecord("p.md", text1, opts)
	if err != nil {
		return false
	}
	text2, err := ConstructFileContent(first)
	if err != nil {
		return false
	}
	second, err := ParseRecord("p.md", text2, opts)
	if err != nil {
		return false
	}
	return first.Equal(original) && second.Equal(first) && bytes.Equal(text1, text2)
}

func pick[T any](values []T, i int, fallback T) T {
	if len(values) == 0 {
		return fallback
	}
	return values[i%len(values)]
}
