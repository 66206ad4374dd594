package interaction

import (
	"context"
	"encoding/json"
)

// ResponseType identifies the synchronous reply variant sent back to Discord.
type ResponseType int

// Response types per the Discord wire format.
const (
	ResponsePong               ResponseType = 1
	ResponseMessage            ResponseType = 4
	ResponseDeferred           ResponseType = 5
	ResponseDeferredUpdate     ResponseType = 6
	ResponseUpdateMessage      ResponseType = 7
	ResponseAutocompleteResult ResponseType = 8
	ResponseModal              ResponseType = 9
)

// MessageFlags are Discord message flags.
type MessageFlags int

// FlagEphemeral makes a message visible only to the invoking user.
const FlagEphemeral MessageFlags = 1 << 6

// ContinuationFunc produces the eventual result of a deferred interaction. It
// runs detached from the request cycle; its return value is delivered through
// the follow-up endpoint.
type ContinuationFunc func(ctx context.Context, in *Interaction) (*Response, error)

// Response is the tagged outbound reply variant. Exactly one Response is
// committed synchronously per interaction; serialization is total over the
// variant set.
type Response struct {
	Type ResponseType
	Data *ResponseData

	// Continuation is consulted only when Type is a deferral variant. It is
	// never serialized.
	Continuation ContinuationFunc
}

// ResponseData carries the variant-specific payload fields.
type ResponseData struct {
	Content    string            `json:"content,omitempty"`
	Embeds     []Embed           `json:"embeds,omitempty"`
	Flags      MessageFlags      `json:"flags,omitempty"`
	Components []json.RawMessage `json:"components,omitempty"`
	// omitzero, not omitempty: an empty autocomplete result must serialize
	// as an explicit empty array.
	Choices []Choice `json:"choices,omitzero"`
	CustomID   string            `json:"custom_id,omitempty"`
	Title      string            `json:"title,omitempty"`
	TTS        bool              `json:"tts,omitempty"`
}

// MarshalJSON serializes the response in the {"type":N,"data":{...}} wire
// shape. Pong and bare deferrals carry no data object.
func (r *Response) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type ResponseType  `json:"type"`
		Data *ResponseData `json:"data,omitempty"`
	}
	return json.Marshal(wire{Type: r.Type, Data: r.Data})
}

// IsDeferral reports whether the response acknowledges now and promises a
// later result.
func (r *Response) IsDeferral() bool {
	return r.Type == ResponseDeferred || r.Type == ResponseDeferredUpdate
}

// Pong answers a liveness ping.
func Pong() *Response {
	return &Response{Type: ResponsePong}
}

// NewMessage builds an immediate channel message response.
func NewMessage(content string) *Response {
	return &Response{Type: ResponseMessage, Data: &ResponseData{Content: content}}
}

// NewEphemeralMessage builds a message response visible only to the invoker.
func NewEphemeralMessage(content string) *Response {
	return &Response{Type: ResponseMessage, Data: &ResponseData{Content: content, Flags: FlagEphemeral}}
}

// NewUpdateMessage builds a response that edits the message the component
// was attached to.
func NewUpdateMessage(content string) *Response {
	return &Response{Type: ResponseUpdateMessage, Data: &ResponseData{Content: content}}
}

// NewAutocompleteResult builds an autocomplete choice list response.
func NewAutocompleteResult(choices ...Choice) *Response {
	if choices == nil {
		choices = []Choice{}
	}
	return &Response{Type: ResponseAutocompleteResult, Data: &ResponseData{Choices: choices}}
}

// NewModal builds a modal prompt response. Components are carried opaquely.
func NewModal(customID, title string, components ...json.RawMessage) *Response {
	return &Response{Type: ResponseModal, Data: &ResponseData{
		CustomID:   customID,
		Title:      title,
		Components: components,
	}}
}

// NewDeferred acknowledges the interaction now and promises a later result.
// cont may be nil when the application delivers the follow-up itself.
func NewDeferred(cont ContinuationFunc, ephemeral bool) *Response {
	resp := &Response{Type: ResponseDeferred, Continuation: cont}
	if ephemeral {
		resp.Data = &ResponseData{Flags: FlagEphemeral}
	}
	return resp
}

// NewDeferredUpdate acknowledges a component interaction without changing the
// message, promising a later edit.
func NewDeferredUpdate(cont ContinuationFunc) *Response {
	return &Response{Type: ResponseDeferredUpdate, Continuation: cont}
}

// WithEmbeds attaches embeds to a message-bearing response.
func (r *Response) WithEmbeds(embeds ...Embed) *Response {
	if r.Data == nil {
		r.Data = &ResponseData{}
	}
	r.Data.Embeds = append(r.Data.Embeds, embeds...)
	return r
}

// WithComponents attaches raw component rows to a message-bearing response.
func (r *Response) WithComponents(components ...json.RawMessage) *Response {
	if r.Data == nil {
		r.Data = &ResponseData{}
	}
	r.Data.Components = append(r.Data.Components, components...)
	return r
}

// Ephemeral marks a message-bearing response as invoker-only.
func (r *Response) Ephemeral() *Response {
	if r.Data == nil {
		r.Data = &ResponseData{}
	}
	r.Data.Flags |= FlagEphemeral
	return r
}
