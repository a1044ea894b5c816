package query

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"github.com/tansive/flightctl-mcp/internal/fleetapi"
)

// Query parameter names of the list endpoints.
const (
	ParamLabelSelector = "labelSelector"
	ParamFieldSelector = "fieldSelector"
	ParamLimit         = "limit"
	ParamContinue      = "continue"
)

// Selectors filter and bound a list call. Selector strings are passed to the
// backend unchanged.
type Selectors struct {
	LabelSelector string
	FieldSelector string
	// Limit is the page size. Values <= 0 use the engine default.
	Limit int
	// Continue starts listing from a cursor returned by an earlier call.
	Continue string
	// MaxItems caps the number of returned items. Values <= 0 mean no cap.
	MaxItems int
}

// Query is a list request for one resource kind.
type Query struct {
	Kind          fleetapi.Kind
	LabelSelector string
	FieldSelector string
	Limit         int
	Continue      string
	MaxItems      int
}

// Selectors returns the filter part of q.
func (q Query) Selectors() Selectors {
	return Selectors{
		LabelSelector: q.LabelSelector,
		FieldSelector: q.FieldSelector,
		Limit:         q.Limit,
		Continue:      q.Continue,
		MaxItems:      q.MaxItems,
	}
}

// ValidateSelector rejects ASCII control characters. Nothing else about the
// selector syntax is checked here; the backend owns it.
func ValidateSelector(name, s string) error {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 || c == 0x7f {
			return ErrInvalidSelector.Msg(fmt.Sprintf("%s contains control character 0x%02x at offset %d", name, c, i))
		}
	}
	return nil
}

func validateSelectors(info fleetapi.KindInfo, sel Selectors) error {
	if sel.LabelSelector != "" && !info.LabelSelectable {
		return ErrInvalidSelector.Msg(fmt.Sprintf("%s does not support label selectors", info.Plural)).
			With(apperrors.FieldResourceKind, info.Plural)
	}
	if err := ValidateSelector(ParamLabelSelector, sel.LabelSelector); err != nil {
		return err
	}
	if err := ValidateSelector(ParamFieldSelector, sel.FieldSelector); err != nil {
		return err
	}
	return ValidateSelector(ParamContinue, sel.Continue)
}

// pageParams builds the query string for one page. Empty values are omitted.
func pageParams(sel Selectors, limit int, cursor string) url.Values {
	v := url.Values{}
	if sel.LabelSelector != "" {
		v.Set(ParamLabelSelector, sel.LabelSelector)
	}
	if sel.FieldSelector != "" {
		v.Set(ParamFieldSelector, sel.FieldSelector)
	}
	if limit > 0 {
		v.Set(ParamLimit, strconv.Itoa(limit))
	}
	if cursor != "" {
		v.Set(ParamContinue, cursor)
	}
	return v
}
