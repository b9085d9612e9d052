package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/angelmondragon/shopfeed-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

type rawDocument struct {
	Shop       *string       `yaml:"shop" validate:"required"`
	Categories []rawCategory `yaml:"categories" validate:"required,dive"`
	Goods      []rawGood     `yaml:"goods" validate:"required,dive"`
}

type rawCategory struct {
	ID   *wholeNumber `yaml:"id" validate:"required"`
	Name *string      `yaml:"name" validate:"required"`
}

type rawGood struct {
	ID         *wholeNumber      `yaml:"id" validate:"required"`
	Category   *wholeNumber      `yaml:"category" validate:"required"`
	Model      *string           `yaml:"model"`
	Name       *string           `yaml:"name" validate:"required"`
	Price      *wholeNumber      `yaml:"price" validate:"required"`
	PriceRRC   *wholeNumber      `yaml:"price_rrc" validate:"required"`
	Quantity   *wholeNumber      `yaml:"quantity" validate:"required"`
	Parameters map[string]scalar `yaml:"parameters"`
}

// wholeNumber accepts any numeric spelling that denotes a non-negative
// integer, so 100, 100.0 and "100" are all 100.
type wholeNumber struct {
	value int64
}

func (n *wholeNumber) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: %q is not a number", node.Line, node.Value)
	}
	if !d.IsInteger() {
		return fmt.Errorf("line %d: %q is not a whole number", node.Line, node.Value)
	}
	if d.IsNegative() {
		return fmt.Errorf("line %d: %q is negative", node.Line, node.Value)
	}
	if !d.BigInt().IsInt64() {
		return fmt.Errorf("line %d: %q is out of range", node.Line, node.Value)
	}
	n.value = d.IntPart()
	return nil
}

// scalar renders any scalar parameter value as its string form.
type scalar string

func (s *scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: parameter values must be scalars", node.Line)
	}
	*s = scalar(node.Value)
	return nil
}

// Parse decodes a YAML or JSON price list. Nothing is returned unless the
// whole document is well formed.
func Parse(data []byte) (*catalog.Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeParse, "document is empty")
	}

	var raw rawDocument
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, pkgerrors.New(pkgerrors.CodeParse, "document is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeParse, err, "document is not valid").
			WithDetails(map[string]string{"error": err.Error()})
	}
	if err := validate.Struct(&raw); err != nil {
		return nil, parseValidationError(err)
	}

	doc := &catalog.Document{
		Shop:       strings.TrimSpace(*raw.Shop),
		Categories: make([]catalog.DocumentCategory, 0, len(raw.Categories)),
		Goods:      make([]catalog.DocumentGood, 0, len(raw.Goods)),
	}
	if doc.Shop == "" {
		return nil, pkgerrors.New(pkgerrors.CodeParse, "document is not valid").
			WithDetails(map[string]string{"shop": "is required"})
	}

	declared := map[int64]string{}
	for i, c := range raw.Categories {
		if prev, ok := declared[c.ID.value]; ok && prev != *c.Name {
			return nil, pkgerrors.New(pkgerrors.CodeParse, "document is not valid").
				WithDetails(map[string]string{fmt.Sprintf("categories[%d].id", i): "declared twice with different names"})
		}
		if _, ok := declared[c.ID.value]; !ok {
			doc.Categories = append(doc.Categories, catalog.DocumentCategory{ID: c.ID.value, Name: *c.Name})
		}
		declared[c.ID.value] = *c.Name
	}

	for i, g := range raw.Goods {
		if _, ok := declared[g.Category.value]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeParse, "document is not valid").
				WithDetails(map[string]string{fmt.Sprintf("goods[%d].category", i): "references an undeclared category"})
		}
		good := catalog.DocumentGood{
			ID:         g.ID.value,
			Category:   g.Category.value,
			Name:       *g.Name,
			Price:      g.Price.value,
			PriceRRC:   g.PriceRRC.value,
			Quantity:   g.Quantity.value,
			Parameters: make(map[string]string, len(g.Parameters)),
		}
		if g.Model != nil {
			good.Model = *g.Model
		}
		for name, value := range g.Parameters {
			good.Parameters[name] = string(value)
		}
		doc.Goods = append(doc.Goods, good)
	}
	return doc, nil
}

func parseValidationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return pkgerrors.Wrap(pkgerrors.CodeParse, err, "document is not valid")
	}
	details := map[string]string{}
	for _, fe := range errs {
		path := fe.Namespace()
		if idx := strings.Index(path, "."); idx >= 0 {
			path = path[idx+1:]
		}
		details[path] = "is required"
	}
	return pkgerrors.New(pkgerrors.CodeParse, "document is not valid").WithDetails(details)
}
