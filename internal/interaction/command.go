package interaction

// CommandSpec is a declarative application command definition used to sync
// the command set with Discord at startup. It mirrors the wire shape of the
// bulk-overwrite endpoint.
type CommandSpec struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Type        CommandType  `json:"type,omitempty"`
	Options     []OptionSpec `json:"options,omitempty"`
}

// OptionSpec declares one option of a command, including subcommands and
// subcommand groups.
type OptionSpec struct {
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Type         OptionType   `json:"type"`
	Required     bool         `json:"required,omitempty"`
	Autocomplete bool         `json:"autocomplete,omitempty"`
	Choices      []Choice     `json:"choices,omitempty"`
	Options      []OptionSpec `json:"options,omitempty"`
	MinValue     *float64     `json:"min_value,omitempty"`
	MaxValue     *float64     `json:"max_value,omitempty"`
	ChannelTypes []int        `json:"channel_types,omitempty"`
}
