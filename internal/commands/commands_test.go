package commands_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/floe/internal/commands"
	"github.com/gosuda/floe/internal/dispatch"
	"github.com/gosuda/floe/internal/interaction"
)

func newRouter(t *testing.T) *dispatch.Router {
	t.Helper()
	r := dispatch.NewRouter()
	require.NoError(t, commands.Register(r))
	return r
}

func run(t *testing.T, r *dispatch.Router, in *interaction.Interaction) *interaction.Response {
	t.Helper()

	h, _, err := r.Resolve(in)
	require.NoError(t, err)

	resp, err := h(context.Background(), in)
	require.NoError(t, err)
	return resp
}

func TestRegisterIsIdempotentPerRouter(t *testing.T) {
	t.Parallel()

	r := newRouter(t)
	assert.ErrorIs(t, commands.Register(r), dispatch.ErrDuplicateRoute)
}

func TestHello(t *testing.T) {
	t.Parallel()

	r := newRouter(t)
	resp := run(t, r, &interaction.Interaction{
		ID:   1,
		Type: interaction.TypeApplicationCommand,
		Data: &interaction.Data{Name: "hello"},
	})

	assert.Equal(t, interaction.ResponseMessage, resp.Type)
	assert.Equal(t, "Click this button!", resp.Data.Content)
	require.Len(t, resp.Data.Components, 1)
	assert.Contains(t, string(resp.Data.Components[0]), "click_me")
}

func TestClickMe(t *testing.T) {
	t.Parallel()

	r := newRouter(t)
	resp := run(t, r, &interaction.Interaction{
		ID:   2,
		Type: interaction.TypeMessageComponent,
		Data: &interaction.Data{CustomID: "click_me", ComponentType: 2},
	})

	assert.Equal(t, interaction.ResponseUpdateMessage, resp.Type)
	assert.Equal(t, "You clicked me!", resp.Data.Content)
}

func TestConfirmPattern(t *testing.T) {
	t.Parallel()

	r := newRouter(t)
	resp := run(t, r, &interaction.Interaction{
		ID:   3,
		Type: interaction.TypeMessageComponent,
		Data: &interaction.Data{CustomID: "confirm:delete-42", ComponentType: 2},
	})

	assert.Equal(t, "Confirmed: delete-42", resp.Data.Content)
}

func TestReportDefersWithContinuation(t *testing.T) {
	t.Parallel()

	r := newRouter(t)
	resp := run(t, r, &interaction.Interaction{
		ID:   4,
		Type: interaction.TypeApplicationCommand,
		Data: &interaction.Data{Name: "report"},
	})

	require.True(t, resp.IsDeferral())
	require.NotNil(t, resp.Continuation)

	final, err := resp.Continuation(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, final.Data.Embeds, 1)
	assert.Equal(t, "Report", final.Data.Embeds[0].Title)
}

func TestFeedbackModalRoundTrip(t *testing.T) {
	t.Parallel()

	r := newRouter(t)

	opened := run(t, r, &interaction.Interaction{
		ID:   5,
		Type: interaction.TypeApplicationCommand,
		Data: &interaction.Data{Name: "feedback"},
	})
	require.Equal(t, interaction.ResponseModal, opened.Type)
	assert.Equal(t, "feedback_form", opened.Data.CustomID)

	submitted := run(t, r, &interaction.Interaction{
		ID:   6,
		Type: interaction.TypeModalSubmit,
		Data: &interaction.Data{CustomID: opened.Data.CustomID},
	})
	assert.Equal(t, interaction.FlagEphemeral, submitted.Data.Flags)
}

func TestSearch(t *testing.T) {
	t.Parallel()

	r := newRouter(t)

	t.Run("autocomplete filters by prefix", func(t *testing.T) {
		t.Parallel()

		resp := run(t, r, &interaction.Interaction{
			ID:   7,
			Type: interaction.TypeAutocomplete,
			Data: &interaction.Data{
				Name: "search",
				Options: []interaction.Option{
					{Name: "query", Type: interaction.OptionString, Value: json.RawMessage(`"co"`), Focused: true},
				},
			},
		})

		require.Equal(t, interaction.ResponseAutocompleteResult, resp.Type)
		require.Len(t, resp.Data.Choices, 2)
		assert.Equal(t, "component routing", resp.Data.Choices[0].Name)
		assert.Equal(t, "command sync", resp.Data.Choices[1].Name)
	})

	t.Run("no prefix matches everything", func(t *testing.T) {
		t.Parallel()

		resp := run(t, r, &interaction.Interaction{
			ID:   8,
			Type: interaction.TypeAutocomplete,
			Data: &interaction.Data{
				Name: "search",
				Options: []interaction.Option{
					{Name: "query", Type: interaction.OptionString, Value: json.RawMessage(`""`), Focused: true},
				},
			},
		})
		assert.Len(t, resp.Data.Choices, 6)
	})

	t.Run("executes a known topic", func(t *testing.T) {
		t.Parallel()

		resp := run(t, r, &interaction.Interaction{
			ID:   9,
			Type: interaction.TypeApplicationCommand,
			Data: &interaction.Data{
				Name: "search",
				Options: []interaction.Option{
					{Name: "query", Type: interaction.OptionString, Value: json.RawMessage(`"rate limits"`)},
				},
			},
		})
		assert.Contains(t, resp.Data.Content, "rate limits")
	})
}

func TestSettingsGroup(t *testing.T) {
	t.Parallel()

	r := newRouter(t)

	sub := func(leaf string) *interaction.Interaction {
		return &interaction.Interaction{
			ID:   10,
			Type: interaction.TypeApplicationCommand,
			Data: &interaction.Data{
				Name: "settings",
				Options: []interaction.Option{{
					Name: "notifications",
					Type: interaction.OptionSubCommandGroup,
					Options: []interaction.Option{
						{Name: leaf, Type: interaction.OptionSubCommand},
					},
				}},
			},
		}
	}

	assert.Equal(t, "Notifications enabled.", run(t, r, sub("enable")).Data.Content)
	assert.Equal(t, "Notifications disabled.", run(t, r, sub("disable")).Data.Content)
}

func TestSpecsMatchRegisteredCommands(t *testing.T) {
	t.Parallel()

	specs := commands.Specs()
	require.Len(t, specs, 5)

	byName := make(map[string]interaction.CommandSpec, len(specs))
	for _, spec := range specs {
		byName[spec.Name] = spec
	}

	assert.Contains(t, byName, "hello")
	assert.Contains(t, byName, "settings")

	search, ok := byName["search"]
	require.True(t, ok)
	require.Len(t, search.Options, 1)
	assert.True(t, search.Options[0].Autocomplete)
}
