// Package commands holds the built-in command set: a minimal demonstration
// surface covering each interaction shape the engine routes.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gosuda/floe/internal/dispatch"
	"github.com/gosuda/floe/internal/interaction"
)

// Register wires the built-in handlers into the router. It must run before
// the first dispatch.
func Register(r *dispatch.Router) error {
	registrations := []struct {
		name string
		fn   func() error
	}{
		{"hello", func() error { return r.RegisterCommand("hello", handleHello) }},
		{"report", func() error { return r.RegisterCommand("report", handleReport) }},
		{"feedback", func() error { return r.RegisterCommand("feedback", handleFeedback) }},
		{"search", func() error { return r.RegisterCommand("search", handleSearch) }},
		{"settings.notifications.enable", func() error {
			return r.RegisterCommand("settings.notifications.enable", handleNotificationsEnable)
		}},
		{"settings.notifications.disable", func() error {
			return r.RegisterCommand("settings.notifications.disable", handleNotificationsDisable)
		}},
		{"component click_me", func() error { return r.RegisterComponent("click_me", handleClickMe) }},
		{"component confirm:", func() error { return r.RegisterComponentPattern("confirm:", handleConfirm) }},
		{"modal feedback_form", func() error { return r.RegisterModal("feedback_form", handleFeedbackSubmit) }},
		{"autocomplete search.query", func() error {
			return r.RegisterAutocomplete("search", "query", completeSearchQuery)
		}},
	}

	for _, reg := range registrations {
		if err := reg.fn(); err != nil {
			return fmt.Errorf("commands.Register: %s: %w", reg.name, err)
		}
	}
	return nil
}

// handleHello replies immediately with a button that routes back into the
// component namespace.
func handleHello(_ context.Context, _ *interaction.Interaction) (*interaction.Response, error) {
	button := json.RawMessage(`{"type":1,"components":[{"type":2,"style":1,"label":"Click me!","custom_id":"click_me"}]}`)
	return interaction.NewMessage("Click this button!").WithComponents(button), nil
}

// handleClickMe answers the hello button.
func handleClickMe(_ context.Context, _ *interaction.Interaction) (*interaction.Response, error) {
	return interaction.NewUpdateMessage("You clicked me!"), nil
}

// handleReport defers explicitly and finishes in the continuation.
func handleReport(_ context.Context, _ *interaction.Interaction) (*interaction.Response, error) {
	return interaction.NewDeferred(func(ctx context.Context, _ *interaction.Interaction) (*interaction.Response, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
		embed := interaction.Embed{
			Title:       "Report",
			Description: "Everything is operational.",
			Color:       0x5865F2,
		}
		return interaction.NewMessage("").WithEmbeds(embed), nil
	}, false), nil
}

// handleConfirm resolves confirm:<action> buttons by their dynamic suffix.
func handleConfirm(_ context.Context, in *interaction.Interaction) (*interaction.Response, error) {
	action := strings.TrimPrefix(in.Data.CustomID, "confirm:")
	return interaction.NewUpdateMessage(fmt.Sprintf("Confirmed: %s", action)), nil
}

// handleFeedback opens the feedback modal.
func handleFeedback(_ context.Context, _ *interaction.Interaction) (*interaction.Response, error) {
	textInput := json.RawMessage(`{"type":1,"components":[{"type":4,"custom_id":"feedback_text","label":"Your feedback","style":2,"required":true}]}`)
	return interaction.NewModal("feedback_form", "Send feedback", textInput), nil
}

// handleFeedbackSubmit acknowledges a submitted feedback modal.
func handleFeedbackSubmit(_ context.Context, _ *interaction.Interaction) (*interaction.Response, error) {
	return interaction.NewEphemeralMessage("Thanks, your feedback was recorded."), nil
}

var searchTopics = []string{
	"getting started",
	"deferred responses",
	"component routing",
	"modal forms",
	"command sync",
	"rate limits",
}

// handleSearch executes a finished search query.
func handleSearch(_ context.Context, in *interaction.Interaction) (*interaction.Response, error) {
	query := optionString(in, "query")
	for _, topic := range searchTopics {
		if topic == query {
			return interaction.NewMessage(fmt.Sprintf("Results for %q: see the %s guide.", query, topic)), nil
		}
	}
	return interaction.NewEphemeralMessage(fmt.Sprintf("Nothing found for %q.", query)), nil
}

// completeSearchQuery suggests topics matching the partial focused value.
func completeSearchQuery(_ context.Context, in *interaction.Interaction) (*interaction.Response, error) {
	partial := strings.ToLower(focusedString(in))

	var choices []interaction.Choice
	for _, topic := range searchTopics {
		if strings.HasPrefix(topic, partial) {
			choices = append(choices, interaction.Choice{Name: topic, Value: topic})
		}
	}
	return interaction.NewAutocompleteResult(choices...), nil
}

func handleNotificationsEnable(_ context.Context, _ *interaction.Interaction) (*interaction.Response, error) {
	return interaction.NewEphemeralMessage("Notifications enabled."), nil
}

func handleNotificationsDisable(_ context.Context, _ *interaction.Interaction) (*interaction.Response, error) {
	return interaction.NewEphemeralMessage("Notifications disabled."), nil
}

// optionString finds a string option by name anywhere under the invoked
// subcommand.
func optionString(in *interaction.Interaction, name string) string {
	if in.Data == nil {
		return ""
	}
	return findString(in.Data.Options, name)
}

func findString(opts []interaction.Option, name string) string {
	for _, opt := range opts {
		if opt.Name == name {
			if s, ok := opt.StringValue(); ok {
				return s
			}
			return ""
		}
		if s := findString(opt.Options, name); s != "" {
			return s
		}
	}
	return ""
}

// focusedString returns the value of the option currently being typed.
func focusedString(in *interaction.Interaction) string {
	if in.Data == nil {
		return ""
	}
	return focusedIn(in.Data.Options)
}

func focusedIn(opts []interaction.Option) string {
	for _, opt := range opts {
		if opt.Focused {
			if s, ok := opt.StringValue(); ok {
				return s
			}
			return ""
		}
		if s := focusedIn(opt.Options); s != "" {
			return s
		}
	}
	return ""
}
