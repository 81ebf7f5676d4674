package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := NewRecorder()
	scoped := NewScopedAPI("setreports", rec)
	nested := NewScopedAPI("client", scoped)

	nested.ReportBroken("search-course", "bad")
	nested.ReportWarning("fetch-report")
	nested.ReportCount("sids", 12)

	broken := rec.Reports("broken")
	require.Len(t, broken, 1)
	require.Equal(t, "setreports: client: search-course", broken[0].Id)
	require.Equal(t, []any{"bad"}, broken[0].Params)

	require.Len(t, rec.Reports("warning"), 1)
	require.Len(t, rec.Reports(""), 2)

	n, ok := rec.Count("setreports: client: sids")
	require.True(t, ok)
	require.Equal(t, int64(12), n)
}
