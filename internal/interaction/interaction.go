package interaction

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

// ErrMalformedPayload is returned when a request body is not a structurally
// valid interaction.
var ErrMalformedPayload = errors.New("interaction: malformed payload")

// Type identifies the kind of inbound interaction. Unknown future values are
// preserved as-is so new platform features degrade to a routing miss instead
// of a parse failure.
type Type int

// Interaction types per the Discord wire format.
const (
	TypePing               Type = 1
	TypeApplicationCommand Type = 2
	TypeMessageComponent   Type = 3
	TypeAutocomplete       Type = 4
	TypeModalSubmit        Type = 5
)

// CommandType identifies the kind of application command.
type CommandType int

// Application command types.
const (
	CommandChatInput CommandType = 1
	CommandUser      CommandType = 2
	CommandMessage   CommandType = 3
)

// OptionType identifies the kind of a command option. Values 3 and above
// carry a concrete value; SubCommand and SubCommandGroup nest further options.
type OptionType int

// Command option types.
const (
	OptionSubCommand      OptionType = 1
	OptionSubCommandGroup OptionType = 2
	OptionString          OptionType = 3
	OptionInteger         OptionType = 4
	OptionBoolean         OptionType = 5
	OptionUser            OptionType = 6
	OptionChannel         OptionType = 7
	OptionRole            OptionType = 8
	OptionMentionable     OptionType = 9
	OptionNumber          OptionType = 10
)

// Interaction is one inbound event from Discord. It is parsed once per
// request and never mutated. Invoking-entity context (member, user, message)
// is carried opaquely; routing only inspects Type and Data.
type Interaction struct {
	ID            snowflake.ID    `json:"id"`
	ApplicationID snowflake.ID    `json:"application_id"`
	Type          Type            `json:"type"`
	Data          *Data           `json:"data,omitempty"`
	GuildID       snowflake.ID    `json:"guild_id,omitempty"`
	ChannelID     snowflake.ID    `json:"channel_id,omitempty"`
	Member        json.RawMessage `json:"member,omitempty"`
	User          json.RawMessage `json:"user,omitempty"`
	Token         string          `json:"token"`
	Version       int             `json:"version"`
	Message       json.RawMessage `json:"message,omitempty"`
	Locale        string          `json:"locale,omitempty"`
}

// Data is the polymorphic interaction payload. Which fields are populated
// depends on the interaction type: Name/Options for commands and
// autocomplete, CustomID/ComponentType/Values for components, and
// CustomID/Components for modal submissions.
type Data struct {
	ID            snowflake.ID    `json:"id,omitempty"`
	Name          string          `json:"name,omitempty"`
	Type          CommandType     `json:"type,omitempty"`
	Options       []Option        `json:"options,omitempty"`
	CustomID      string          `json:"custom_id,omitempty"`
	ComponentType int             `json:"component_type,omitempty"`
	Values        []string        `json:"values,omitempty"`
	Components    json.RawMessage `json:"components,omitempty"`
	Resolved      json.RawMessage `json:"resolved,omitempty"`
	TargetID      snowflake.ID    `json:"target_id,omitempty"`
}

// Option is a command option as received on the wire. Value is kept raw so
// unknown option types round-trip without loss.
type Option struct {
	Name    string          `json:"name"`
	Type    OptionType      `json:"type"`
	Value   json.RawMessage `json:"value,omitempty"`
	Options []Option        `json:"options,omitempty"`
	Focused bool            `json:"focused,omitempty"`
}

// StringValue decodes the option value as a string.
func (o Option) StringValue() (string, bool) {
	var s string
	if err := json.Unmarshal(o.Value, &s); err != nil {
		return "", false
	}
	return s, true
}

// IntValue decodes the option value as an integer.
func (o Option) IntValue() (int64, bool) {
	var n int64
	if err := json.Unmarshal(o.Value, &n); err != nil {
		return 0, false
	}
	return n, true
}

// FloatValue decodes the option value as a number.
func (o Option) FloatValue() (float64, bool) {
	var f float64
	if err := json.Unmarshal(o.Value, &f); err != nil {
		return 0, false
	}
	return f, true
}

// BoolValue decodes the option value as a boolean.
func (o Option) BoolValue() (bool, bool) {
	var b bool
	if err := json.Unmarshal(o.Value, &b); err != nil {
		return false, false
	}
	return b, true
}

// Parse decodes a raw request body into an Interaction. Structural failures
// wrap ErrMalformedPayload; unknown enum values are not an error.
func Parse(body []byte) (*Interaction, error) {
	var in Interaction
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("interaction.Parse: %w: %s", ErrMalformedPayload, err)
	}

	if in.Type == 0 {
		return nil, fmt.Errorf("interaction.Parse: %w: missing type", ErrMalformedPayload)
	}
	if in.ID == 0 {
		return nil, fmt.Errorf("interaction.Parse: %w: missing id", ErrMalformedPayload)
	}

	return &in, nil
}

// Choice is one autocomplete suggestion or predeclared option choice.
type Choice struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}
