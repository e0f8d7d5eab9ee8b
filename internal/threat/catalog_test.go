package threat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSample(t *testing.T) {
	got := Sample(3)
	require.Len(t, got, 3)

	seen := map[string]bool{}
	for _, th := range got {
		assert.False(t, seen[th.Name], "duplicate %s", th.Name)
		seen[th.Name] = true
		_, ok := Lookup(th.Name)
		assert.True(t, ok)
	}

	assert.Len(t, Sample(0), 1)
	assert.Len(t, Sample(1000), len(Catalog))
}

func TestLookup(t *testing.T) {
	th, ok := Lookup("trojan.win32.larp")
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, th.Severity)

	_, ok = Lookup("Clean.File")
	assert.False(t, ok)
}

func TestBrandFitsLimits(t *testing.T) {
	for _, th := range Catalog {
		b := Brand(th)
		assert.NotEmpty(t, b.Name, th.Name)
		assert.LessOrEqual(t, len(b.Name), 32, th.Name)
		assert.True(t, len(b.Symbol) > 1 && b.Symbol[0] == '$', th.Name)
		assert.LessOrEqual(t, len(b.Symbol)-1, 10, th.Name)
		assert.LessOrEqual(t, len(b.Description), 500, th.Name)
	}

	b := Brand(Threat{Name: "Trojan.Win32.Larp", Type: "trojan", Severity: SeverityCritical})
	assert.Equal(t, "Trojan Win32 Larp", b.Name)
	assert.Equal(t, "$LARP", b.Symbol)
	assert.Contains(t, b.Description, "CRITICAL")
}
