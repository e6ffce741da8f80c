package mergebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// Trigger gates webhook events on a jq filter query evaluated against the
// event's JSON payload. An empty query matches every event.
type Trigger struct {
	filterQuery *gojq.Query
}

func NewTrigger(jqQuery string) (*Trigger, error) {
	if jqQuery == "" {
		return &Trigger{}, nil
	}

	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, err
	}

	return &Trigger{filterQuery: query}, nil
}

// Match returns true if the filter query evaluates to true for the JSON
// representation of the event.
func (t *Trigger) Match(ctx context.Context, eventJSON []byte) (bool, error) {
	if t.filterQuery == nil {
		return true, nil
	}

	if len(eventJSON) == 0 {
		return false, errors.New("json representation of event is empty")
	}

	var evUn any
	if err := json.Unmarshal(eventJSON, &evUn); err != nil {
		return false, fmt.Errorf("unmarshaling json failed: %w", err)
	}

	result, errs := goJQIterToSlice(t.filterQuery.RunWithContext(ctx, evUn))
	if len(errs) != 0 {
		return false, fmt.Errorf("json query returned errors, query: %q, errors: %s", t.filterQuery.String(), errString(errs))
	}

	if len(result) != 1 {
		return false, fmt.Errorf("json query returned %d results, expected 1, query: %q", len(result), t.filterQuery.String())
	}

	boolResult, ok := result[0].(bool)
	if !ok {
		return false, fmt.Errorf(
			"json query returned non-bool result: %+v (%T), query: %q",
			result[0], result[0], t.filterQuery.String(),
		)
	}

	return boolResult, nil
}

func goJQIterToSlice(iter gojq.Iter) ([]any, []error) {
	var result []any
	var errors []error

	for {
		res, ok := iter.Next()
		if !ok {
			return result, errors
		}

		if err, isErr := res.(error); isErr {
			errors = append(errors, err)
			continue
		}

		result = append(result, res)
	}
}

func errString(errs []error) string {
	var result strings.Builder

	for i, err := range errs {
		if i > 0 {
			result.WriteString("; ")
		}

		result.WriteString(fmt.Sprintf("error %d: %s", i, err))
	}

	return result.String()
}
