// Package validation checks lead and attachment payloads against embedded
// JSON schemas and reports the first violated constraint.
package validation

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	leadOrder  = []string{"name", "email", "message", "phone", "company", "audience", "consent"}
	quoteOrder = append(append([]string{}, leadOrder...), "service", "budget", "timeline", "clientType", "attachments")
	fileOrder  = []string{"name", "size", "contentType", "key"}
)

// hints are the public, client-facing explanations per field.
var hints = map[string]string{
	"name":        "must be between 2 and 100 characters",
	"email":       "must be a valid email address",
	"message":     "must be between 10 and 5000 characters",
	"phone":       "must be a valid phone number",
	"company":     "must be at most 200 characters",
	"audience":    "must be startup or enterprise",
	"consent":     "must be true or false",
	"service":     "must be one of the offered services",
	"budget":      "must be one of the listed budget ranges",
	"timeline":    "must be one of the listed timelines",
	"clientType":  "must be startup, enterprise or individual",
	"attachments": "at most 5 files of a supported type, each up to 25 MiB",
	"size":        "must be between 1 byte and 25 MiB",
	"contentType": "is not a supported file type",
	"key":         "must be at most 512 characters",
}

type compiled struct {
	schema     *jsonschema.Schema
	required   []string
	properties map[string]struct{}
	order      []string
}

// Validator is safe for concurrent use once built.
type Validator struct {
	leads map[domain.LeadKind]*compiled
	file  *compiled
}

func New() (*Validator, error) {
	consultation, err := load("consultation", leadOrder)
	if err != nil {
		return nil, err
	}
	quote, err := load("quote", quoteOrder)
	if err != nil {
		return nil, err
	}
	file, err := load("file", fileOrder)
	if err != nil {
		return nil, err
	}
	return &Validator{
		leads: map[domain.LeadKind]*compiled{
			domain.LeadConsultation: consultation,
			domain.LeadQuotation:    quote,
		},
		file: file,
	}, nil
}

// MustNew panics if the embedded schemas do not compile.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

func load(name string, order []string) (*compiled, error) {
	raw, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
	if err != nil {
		return nil, fmt.Errorf("read %s schema: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}

	var shape struct {
		Required   []string                   `json:"required"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("parse %s schema: %w", name, err)
	}
	props := make(map[string]struct{}, len(shape.Properties))
	for k := range shape.Properties {
		props[k] = struct{}{}
	}
	return &compiled{schema: schema, required: shape.Required, properties: props, order: order}, nil
}

// Validate checks raw against the schema for kind and decodes it.
func (v *Validator) Validate(kind domain.LeadKind, raw []byte) (domain.Lead, error) {
	c, ok := v.leads[kind]
	if !ok {
		return domain.Lead{}, fmt.Errorf("unknown lead kind %q", kind)
	}
	if err := c.check(raw); err != nil {
		return domain.Lead{}, err
	}

	var lead domain.Lead
	if err := json.Unmarshal(raw, &lead); err != nil {
		return domain.Lead{}, apperr.Validation("", "request body must be a JSON object")
	}
	lead.Kind = kind
	return lead, nil
}

// ValidateFile checks a single attachment description.
func (v *Validator) ValidateFile(raw []byte) (domain.FileMeta, error) {
	if err := v.file.check(raw); err != nil {
		return domain.FileMeta{}, err
	}
	var meta domain.FileMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return domain.FileMeta{}, apperr.Validation("", "request body must be a JSON object")
	}
	return meta, nil
}

type violation struct {
	field    string
	location string
	detail   string
}

func (c *compiled) check(raw []byte) error {
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return apperr.Validation("", "request body must be a JSON object")
	}

	result := c.schema.ValidateJSON(raw)
	if result.IsValid() {
		return nil
	}

	var found []violation
	for _, f := range c.required {
		if _, ok := doc[f]; !ok {
			found = append(found, violation{field: f, location: "/" + f, detail: "is required"})
		}
	}
	for k := range doc {
		if _, ok := c.properties[k]; !ok {
			found = append(found, violation{field: k, location: "/" + k, detail: "is not an allowed field"})
		}
	}
	collect(*result.ToList(), &found)

	if len(found) == 0 {
		return apperr.Validation("", "request does not match the expected shape")
	}
	first := c.first(found)
	return apperr.Validation(first.field, first.detail)
}

// collect walks the output list and keeps every located error below the root.
// Root level errors (required, additionalProperties) are derived from the
// document itself since their messages carry no location.
func collect(l jsonschema.List, out *[]violation) {
	if len(l.Errors) > 0 && l.InstanceLocation != "" {
		loc := l.InstanceLocation
		field, _, _ := strings.Cut(strings.TrimPrefix(loc, "/"), "/")
		detail := hints[field]
		if detail == "" {
			detail = firstMessage(l.Errors)
		}
		*out = append(*out, violation{field: field, location: loc, detail: detail})
	}
	for _, d := range l.Details {
		collect(d, out)
	}
}

func firstMessage(errs map[string]string) string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return errs[keys[0]]
}

// first orders by field position in the form, then by location, so the same
// payload always reports the same violation.
func (c *compiled) first(vs []violation) violation {
	rank := func(field string) int {
		for i, f := range c.order {
			if f == field {
				return i
			}
		}
		return len(c.order)
	}
	sort.SliceStable(vs, func(i, j int) bool {
		ri, rj := rank(vs[i].field), rank(vs[j].field)
		if ri != rj {
			return ri < rj
		}
		if vs[i].location != vs[j].location {
			return vs[i].location < vs[j].location
		}
		return vs[i].detail < vs[j].detail
	})
	return vs[0]
}
