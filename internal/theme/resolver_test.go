package theme

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/diagen/pkg/schema"
)

func TestResolveOverridePrecedence(t *testing.T) {
	preset, ok := NewRegistry().Lookup("default")
	require.True(t, ok)

	th := Resolve(schema.ThemeRequest{
		PresetID:  "default",
		Overrides: map[string]string{"nodeBkg": "#ff0000"},
	})

	assert.Equal(t, "#ff0000", th.NodeFill)
	assert.Equal(t, PickReadableTextColor("#ff0000"), th.NodeText)
	assert.NotEqual(t, preset.Text, th.NodeText)
}

func TestResolveBlankOverridesIgnored(t *testing.T) {
	preset, _ := NewRegistry().Lookup("default")

	for _, blank := range []string{"", "   ", "\t\n"} {
		th := Resolve(schema.ThemeRequest{
			PresetID:  "default",
			Overrides: map[string]string{"nodeBkg": blank},
		})
		assert.Equal(t, preset.NodeFill, th.NodeFill)
		assert.Equal(t, preset.Text, th.NodeText)
	}
}

func TestResolveUnknownPresetFallsBackToDefault(t *testing.T) {
	want := Resolve(schema.ThemeRequest{PresetID: "default"})

	for _, id := range []string{"", "no-such-theme", "  "} {
		got := Resolve(schema.ThemeRequest{PresetID: id})
		assert.Equal(t, want, got, "preset %q", id)
	}
}

func TestResolvePresetIDIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, "ocean", Resolve(schema.ThemeRequest{PresetID: " Ocean "}).PresetID)
}

func TestResolvePresetWithoutTextComputesFromFill(t *testing.T) {
	reg := NewRegistry()
	for _, p := range reg.Presets() {
		th := NewResolver(reg).Resolve(schema.ThemeRequest{PresetID: p.ID})
		if p.Text != "" {
			assert.Equal(t, p.Text, th.NodeText, p.ID)
			continue
		}
		assert.Equal(t, PickReadableTextColor(p.NodeFill), th.NodeText, p.ID)
	}
}

func TestResolveTextOverrideWins(t *testing.T) {
	th := Resolve(schema.ThemeRequest{
		PresetID:  "ocean",
		Overrides: map[string]string{"mainBkg": "#000000", "textColor": "#ff00ff"},
	})
	assert.Equal(t, "#000000", th.NodeFill)
	assert.Equal(t, "#ff00ff", th.NodeText)
}

func TestResolveSynonymPriority(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		want      string
	}{
		{"nodeBkg beats mainBkg", map[string]string{"nodeBkg": "#111111", "mainBkg": "#222222"}, "#111111"},
		{"mainBkg beats primaryColor", map[string]string{"mainBkg": "#222222", "primaryColor": "#333333"}, "#222222"},
		{"all three", map[string]string{"primaryColor": "#333333", "mainBkg": "#222222", "nodeBkg": "#111111"}, "#111111"},
		{"blank higher synonym falls through", map[string]string{"nodeBkg": " ", "primaryColor": "#333333"}, "#333333"},
		{"case-insensitive names", map[string]string{"NODEBKG": "#444444"}, "#444444"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := Resolve(schema.ThemeRequest{Overrides: tt.overrides})
			assert.Equal(t, tt.want, th.NodeFill)
			vars := th.Variables()
			assert.Equal(t, tt.want, vars["nodeBkg"])
			assert.Equal(t, tt.want, vars["mainBkg"])
			assert.Equal(t, tt.want, vars["primaryColor"])
		})
	}
}

func TestResolveTextFamilyPriority(t *testing.T) {
	th := Resolve(schema.ThemeRequest{Overrides: map[string]string{
		"textColor":        "#333333",
		"primaryTextColor": "#222222",
	}})
	assert.Equal(t, "#222222", th.NodeText)
}

func TestResolveBackgroundCascade(t *testing.T) {
	th := Resolve(schema.ThemeRequest{
		PresetID:  "default",
		Overrides: map[string]string{"background": "#000000"},
	})
	assert.Equal(t, "#000000", th.Background)
	assert.Equal(t, LightText, th.TitleColor)
	assert.Equal(t, "#000000", th.ClusterFill)
	assert.Equal(t, "#000000", th.EdgeLabelBackground)
}

func TestResolveFontSize(t *testing.T) {
	assert.Equal(t, "14px", Resolve(schema.ThemeRequest{Overrides: map[string]string{"fontSize": "14"}}).FontSize)
	assert.Equal(t, "1.2em", Resolve(schema.ThemeRequest{Overrides: map[string]string{"fontSize": "1.2em"}}).FontSize)
	assert.Equal(t, baseFontSize, Resolve(schema.ThemeRequest{}).FontSize)
}

func TestResolveUnknownKeysReported(t *testing.T) {
	th := Resolve(schema.ThemeRequest{Overrides: map[string]string{
		"nodeBkg":   "#123456",
		"glowColor": "#ffffff",
		"aura":      "#000000",
		"ghost":     "   ",
	}})
	assert.Equal(t, []string{"aura", "glowColor"}, th.Ignored)
}

func TestVariablesComplete(t *testing.T) {
	for _, p := range NewRegistry().Presets() {
		vars := Resolve(schema.ThemeRequest{PresetID: p.ID}).Variables()
		for _, name := range VariableNames() {
			v, ok := vars[name]
			assert.True(t, ok, "%s: missing %s", p.ID, name)
			assert.NotEmpty(t, v, "%s: empty %s", p.ID, name)
		}
	}
}

func TestResolveDoesNotMutateRequest(t *testing.T) {
	overrides := map[string]string{"nodeBkg": " #ff0000 ", "unknown": "x"}
	Resolve(schema.ThemeRequest{Overrides: overrides})
	assert.Equal(t, map[string]string{"nodeBkg": " #ff0000 ", "unknown": "x"}, overrides)
}

func TestRegistryExtraPresets(t *testing.T) {
	reg := NewRegistry(
		Preset{ID: "Brand", Label: "Brand", Background: "#000000", NodeFill: "#fafafa", NodeBorder: "#222222", Line: "#999999"},
		Preset{ID: "", Label: "skipped"},
	)
	p, ok := reg.Lookup("brand")
	require.True(t, ok)
	assert.Equal(t, "brand", p.ID)

	th := NewResolver(reg).Resolve(schema.ThemeRequest{PresetID: "brand"})
	assert.Equal(t, "#fafafa", th.NodeFill)
	assert.Equal(t, DarkText, th.NodeText)
	assert.Equal(t, LightText, th.TitleColor)

	_, ok = reg.Lookup("")
	assert.False(t, ok)
}

func TestResolveConcurrent(t *testing.T) {
	r := NewResolver(nil)
	want := r.Resolve(schema.ThemeRequest{PresetID: "forest"})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, r.Resolve(schema.ThemeRequest{PresetID: "forest"}))
		}()
	}
	wg.Wait()
}

func TestCachedResolver(t *testing.T) {
	c := NewCachedResolver(NewResolver(nil), 2)
	req := schema.ThemeRequest{PresetID: "dark", Overrides: map[string]string{"bogus": "1"}}

	first := c.Resolve(req)
	assert.Equal(t, Resolve(req), first)
	assert.Equal(t, 1, c.Len())

	first.Ignored[0] = "mutated"
	again := c.Resolve(req)
	assert.Equal(t, []string{"bogus"}, again.Ignored)
	assert.Equal(t, 1, c.Len())

	c.Resolve(schema.ThemeRequest{PresetID: "dark", Overrides: map[string]string{"bogus": "1", "nodeBkg": "  "}})
	assert.Equal(t, 1, c.Len())

	c.Resolve(schema.ThemeRequest{PresetID: "ocean"})
	c.Resolve(schema.ThemeRequest{PresetID: "forest"})
	assert.Equal(t, 2, c.Len())
}

func TestCachedResolverKeysDoNotCollide(t *testing.T) {
	c := NewCachedResolver(NewResolver(nil), 8)

	first := c.Resolve(schema.ThemeRequest{Overrides: map[string]string{"a=b": "c"}})
	second := c.Resolve(schema.ThemeRequest{Overrides: map[string]string{"a": "b=c"}})

	assert.Equal(t, []string{"a=b"}, first.Ignored)
	assert.Equal(t, []string{"a"}, second.Ignored)
	assert.Equal(t, 2, c.Len())
}
