package reconcile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/mohammadpnp/account-reconcile/internal/application/reconcile"
	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

func TestPlanHashIsDeterministic(t *testing.T) {
	t.Parallel()

	csv := []byte("action,email,username,groups_mode,groups\ncreate,new@x.com,New,replace,A\nupdate,john@x.com,Johnny,clear,\n")
	users := []domain.RemoteUser{john()}

	first, err := app.Preview(csv, users)
	require.NoError(t, err)
	second, err := app.Preview(csv, users)
	require.NoError(t, err)

	h1, err := app.PlanHash(first.Items)
	require.NoError(t, err)
	h2, err := app.PlanHash(second.Items)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	changed := append([]domain.PreviewItem{}, first.Items...)
	changed[0].Username = "Other"
	h3, err := app.PlanHash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestCanonicalJSONSortsKeysWithoutEscaping(t *testing.T) {
	t.Parallel()

	out, err := app.CanonicalJSON(map[string]any{
		"b": []any{map[string]any{"z": 1, "a": "<x>"}},
		"a": true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":true,"b":[{"a":"<x>","z":1}]}`, string(out))
}

func TestCSVHash(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", app.CSVHash(nil))
}
