package mergebot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prEventJSON = `{
  "action": "labeled",
  "number": 7,
  "pull_request": {
    "state": "open",
    "draft": false,
    "base": {"ref": "main"}
  },
  "label": {"name": "pr-pull"}
}`

func TestTriggerEmptyQueryMatchesEverything(t *testing.T) {
	trigger, err := NewTrigger("")
	require.NoError(t, err)

	match, err := trigger.Match(context.Background(), []byte(prEventJSON))
	require.NoError(t, err)
	assert.True(t, match)
}

func TestTriggerMatch(t *testing.T) {
	type testcase struct {
		name  string
		query string

		expectedMatch bool
	}

	testcases := []testcase{
		{
			name:          "matching",
			query:         `.pull_request.base.ref == "main"`,
			expectedMatch: true,
		},
		{
			name:          "notMatching",
			query:         `.pull_request.draft == true`,
			expectedMatch: false,
		},
		{
			name:          "combined",
			query:         `.action == "labeled" and .pull_request.state == "open"`,
			expectedMatch: true,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			trigger, err := NewTrigger(tc.query)
			require.NoError(t, err)

			match, err := trigger.Match(context.Background(), []byte(prEventJSON))
			require.NoError(t, err)
			assert.Equal(t, tc.expectedMatch, match)
		})
	}
}

func TestTriggerNonBoolResultIsAnError(t *testing.T) {
	trigger, err := NewTrigger(".number")
	require.NoError(t, err)

	_, err = trigger.Match(context.Background(), []byte(prEventJSON))
	assert.Error(t, err)
}

func TestTriggerInvalidQuery(t *testing.T) {
	_, err := NewTrigger(".((")
	assert.Error(t, err)
}

func TestTriggerEmptyEventJSON(t *testing.T) {
	trigger, err := NewTrigger(".action")
	require.NoError(t, err)

	_, err = trigger.Match(context.Background(), nil)
	assert.Error(t, err)
}
