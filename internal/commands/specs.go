package commands

import "github.com/gosuda/floe/internal/interaction"

// Specs declares the wire-format definitions for the built-in command set,
// used to bulk-overwrite the application's global commands at startup.
func Specs() []interaction.CommandSpec {
	return []interaction.CommandSpec{
		{
			Name:        "hello",
			Description: "Say hello and get a button back",
		},
		{
			Name:        "report",
			Description: "Generate a status report",
		},
		{
			Name:        "feedback",
			Description: "Send feedback through a form",
		},
		{
			Name:        "search",
			Description: "Search the guides",
			Options: []interaction.OptionSpec{
				{
					Name:         "query",
					Description:  "Topic to look up",
					Type:         interaction.OptionString,
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        "settings",
			Description: "Adjust service settings",
			Options: []interaction.OptionSpec{
				{
					Name:        "notifications",
					Description: "Notification settings",
					Type:        interaction.OptionSubCommandGroup,
					Options: []interaction.OptionSpec{
						{
							Name:        "enable",
							Description: "Turn notifications on",
							Type:        interaction.OptionSubCommand,
						},
						{
							Name:        "disable",
							Description: "Turn notifications off",
							Type:        interaction.OptionSubCommand,
						},
					},
				},
			},
		},
	}
}
