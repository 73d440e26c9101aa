package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest is returned when a search request is missing required fields
// or carries values of the wrong shape.
var ErrInvalidRequest = errors.New("invalid request")

// SearchType selects the regulation-search variant.
type SearchType string

const (
	SearchMetabolite SearchType = "metabolite"
	SearchGene       SearchType = "gene"
)

// Direction is the edge direction followed by a simple search.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// Result-count policies understood by regulation search.
const (
	// PolicyShortest stops at the first hop count that yields an accepted path.
	PolicyShortest = "shortest"
	// PolicyAll accumulates every hop count and disables the result cap.
	PolicyAll = "all"
)

// HopCount is a positive hop bound. It decodes from a JSON number or a numeric string.
type HopCount int

// UnmarshalJSON accepts 3, 3.0 and "3".
func (h *HopCount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: hop count: %v", ErrInvalidRequest, err)
		}
		raw = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || f > math.MaxInt32 {
		return fmt.Errorf("%w: hop count %q is not an integer", ErrInvalidRequest, raw)
	}
	*h = HopCount(f)
	return nil
}

// RegulationRequest asks for regulation paths from Source to Target.
type RegulationRequest struct {
	Source string     `json:"source" validate:"required"`
	Target string     `json:"target" validate:"required"`
	Step   HopCount   `json:"step" validate:"gte=1"`
	Nodes  []string   `json:"nodes" validate:"omitempty,dive,required"`
	Number string     `json:"number" validate:"required"`
	Type   SearchType `json:"type" validate:"required,oneof=metabolite gene"`
}

// Validate checks required fields and value shapes.
func (r RegulationRequest) Validate() error { return validateStruct(r) }

// DeepRequest asks for the paths walking an explicit chain of vertices.
type DeepRequest struct {
	IDs   []string `json:"ids" validate:"required,min=1,dive,required"`
	Edges []string `json:"edges" validate:"omitempty,dive,required"`
}

// Validate checks required fields and value shapes.
func (r DeepRequest) Validate() error { return validateStruct(r) }

// SimpleRequest asks for the multi-hop neighbourhood of a set of seed vertices.
type SimpleRequest struct {
	IDs       []string  `json:"ids" validate:"required,min=1,dive,required"`
	Direction Direction `json:"direction" validate:"required,oneof=out in both"`
	EdgeTypes []string  `json:"edge_types" validate:"omitempty,dive,required"`
	Times     HopCount  `json:"times" validate:"gte=1"`
}

// Validate checks required fields and value shapes.
func (r SimpleRequest) Validate() error { return validateStruct(r) }

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeField(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be a positive integer", fe.Field())
	case "min":
		return fmt.Sprintf("%s must contain at least %s element(s)", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
	}
}
