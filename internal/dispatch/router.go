package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosuda/floe/internal/interaction"
)

// Handler executes one interaction and produces its synchronous response.
// Returning a deferral variant (or nil with nil error) means the handler
// takes responsibility for finishing later; any other response is committed
// as-is when it arrives before the auto-defer timer.
type Handler func(ctx context.Context, in *interaction.Interaction) (*interaction.Response, error)

// AutoDefer configures the automatic "please wait" acknowledgment emitted
// when a handler has not resolved before Timeout.
type AutoDefer struct {
	Enabled   bool
	Timeout   time.Duration
	Ephemeral bool
}

// maxCommandDepth bounds command path nesting: command, subcommand group,
// subcommand. Deeper nesting is not defined by the platform.
const maxCommandDepth = 3

// route is one registered handler with its optional policy override.
type route struct {
	handler   Handler
	autoDefer *AutoDefer // nil inherits the dispatcher default
}

// RouteOption configures a single registration.
type RouteOption func(*route)

// WithAutoDefer overrides the dispatcher's auto-defer policy for this route.
func WithAutoDefer(policy AutoDefer) RouteOption {
	return func(r *route) {
		p := policy
		r.autoDefer = &p
	}
}

type pattern struct {
	prefix string
	route  *route
}

// Router resolves inbound interactions to registered handlers. All
// registration happens during a bounded startup phase; the table is
// read-only once the dispatcher starts serving, so concurrent lookups need
// no locking.
type Router struct {
	commands          map[string]*route
	components        map[string]*route
	componentPatterns []pattern
	modals            map[string]*route
	modalPatterns     []pattern
	autocomplete      map[string]*route
	fallback          *route

	sealed func() bool
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		commands:     make(map[string]*route),
		components:   make(map[string]*route),
		modals:       make(map[string]*route),
		autocomplete: make(map[string]*route),
		sealed:       func() bool { return false },
	}
}

func newRoute(h Handler, opts []RouteOption) *route {
	rt := &route{handler: h}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (r *Router) checkOpen(op string) error {
	if r.sealed() {
		return fmt.Errorf("dispatch.Router.%s: %w", op, ErrSealed)
	}
	return nil
}

// RegisterCommand maps a dot-joined command path ("roll", "settings.notify",
// "settings.notifications.enable") to a handler. Duplicate paths and paths
// deeper than three levels are registration errors.
func (r *Router) RegisterCommand(path string, h Handler, opts ...RouteOption) error {
	if err := r.checkOpen("RegisterCommand"); err != nil {
		return err
	}
	if err := validatePath(path); err != nil {
		return fmt.Errorf("dispatch.Router.RegisterCommand: %w", err)
	}
	if _, ok := r.commands[path]; ok {
		return fmt.Errorf("dispatch.Router.RegisterCommand: %q: %w", path, ErrDuplicateRoute)
	}

	r.commands[path] = newRoute(h, opts)
	return nil
}

// RegisterComponent maps an exact component custom identifier to a handler.
func (r *Router) RegisterComponent(customID string, h Handler, opts ...RouteOption) error {
	if err := r.checkOpen("RegisterComponent"); err != nil {
		return err
	}
	if _, ok := r.components[customID]; ok {
		return fmt.Errorf("dispatch.Router.RegisterComponent: %q: %w", customID, ErrDuplicateRoute)
	}

	r.components[customID] = newRoute(h, opts)
	return nil
}

// RegisterComponentPattern maps a custom-identifier prefix to a handler,
// matching identifiers that embed dynamic suffixes (e.g. "confirm:42").
// Exact registrations win over patterns; among matching patterns the longest
// prefix wins. Registering the same prefix twice is an error, which rules
// out dispatch-time ties.
func (r *Router) RegisterComponentPattern(prefix string, h Handler, opts ...RouteOption) error {
	if err := r.checkOpen("RegisterComponentPattern"); err != nil {
		return err
	}

	var err error
	r.componentPatterns, err = appendPattern(r.componentPatterns, prefix, newRoute(h, opts))
	if err != nil {
		return fmt.Errorf("dispatch.Router.RegisterComponentPattern: %w", err)
	}
	return nil
}

// RegisterModal maps an exact modal custom identifier to a handler. Modal
// submissions resolve in a namespace separate from components.
func (r *Router) RegisterModal(customID string, h Handler, opts ...RouteOption) error {
	if err := r.checkOpen("RegisterModal"); err != nil {
		return err
	}
	if _, ok := r.modals[customID]; ok {
		return fmt.Errorf("dispatch.Router.RegisterModal: %q: %w", customID, ErrDuplicateRoute)
	}

	r.modals[customID] = newRoute(h, opts)
	return nil
}

// RegisterModalPattern maps a modal custom-identifier prefix to a handler.
func (r *Router) RegisterModalPattern(prefix string, h Handler, opts ...RouteOption) error {
	if err := r.checkOpen("RegisterModalPattern"); err != nil {
		return err
	}

	var err error
	r.modalPatterns, err = appendPattern(r.modalPatterns, prefix, newRoute(h, opts))
	if err != nil {
		return fmt.Errorf("dispatch.Router.RegisterModalPattern: %w", err)
	}
	return nil
}

// RegisterAutocomplete maps a command path plus focused option name to an
// autocomplete handler. This namespace is distinct from the command's
// execution handler, and autocomplete routes are never auto-deferred.
func (r *Router) RegisterAutocomplete(path, option string, h Handler) error {
	if err := r.checkOpen("RegisterAutocomplete"); err != nil {
		return err
	}
	if err := validatePath(path); err != nil {
		return fmt.Errorf("dispatch.Router.RegisterAutocomplete: %w", err)
	}
	if option == "" {
		return fmt.Errorf("dispatch.Router.RegisterAutocomplete: empty option name")
	}

	key := path + ":" + option
	if _, ok := r.autocomplete[key]; ok {
		return fmt.Errorf("dispatch.Router.RegisterAutocomplete: %q: %w", key, ErrDuplicateRoute)
	}

	r.autocomplete[key] = &route{handler: h}
	return nil
}

// RegisterFallback installs a catch-all handler consulted only after every
// lookup misses. At most one fallback may be registered.
func (r *Router) RegisterFallback(h Handler, opts ...RouteOption) error {
	if err := r.checkOpen("RegisterFallback"); err != nil {
		return err
	}
	if r.fallback != nil {
		return fmt.Errorf("dispatch.Router.RegisterFallback: %w", ErrDuplicateRoute)
	}

	r.fallback = newRoute(h, opts)
	return nil
}

// Resolve finds the handler for an inbound interaction, along with the
// route's auto-defer override (nil when the route inherits the dispatcher
// default). Ping never reaches the router; every other type resolves through
// its own namespace.
func (r *Router) Resolve(in *interaction.Interaction) (Handler, *AutoDefer, error) {
	rt, err := r.resolve(in)
	if err != nil {
		return nil, nil, err
	}
	return rt.handler, rt.autoDefer, nil
}

func (r *Router) resolve(in *interaction.Interaction) (*route, error) {
	switch in.Type {
	case interaction.TypeApplicationCommand:
		path, ok := commandPath(in.Data)
		if !ok {
			return r.miss("no command path")
		}
		if rt, found := r.commands[path]; found {
			return rt, nil
		}
		return r.miss(path)

	case interaction.TypeMessageComponent:
		return r.resolveCustomID(r.components, r.componentPatterns, in.Data)

	case interaction.TypeModalSubmit:
		return r.resolveCustomID(r.modals, r.modalPatterns, in.Data)

	case interaction.TypeAutocomplete:
		path, ok := commandPath(in.Data)
		if !ok {
			return r.miss("no command path")
		}
		option, ok := focusedOption(in.Data.Options)
		if !ok {
			return r.miss(path + ": no focused option")
		}
		if rt, found := r.autocomplete[path+":"+option]; found {
			return rt, nil
		}
		return r.miss(path + ":" + option)

	default:
		return r.miss(fmt.Sprintf("unhandled interaction type %d", in.Type))
	}
}

func (r *Router) resolveCustomID(exact map[string]*route, patterns []pattern, d *interaction.Data) (*route, error) {
	if d == nil || d.CustomID == "" {
		return r.miss("no custom id")
	}
	if rt, ok := exact[d.CustomID]; ok {
		return rt, nil
	}

	var best *pattern
	for i := range patterns {
		p := &patterns[i]
		if !strings.HasPrefix(d.CustomID, p.prefix) {
			continue
		}
		if best == nil || len(p.prefix) > len(best.prefix) {
			best = p
		}
	}
	if best != nil {
		return best.route, nil
	}

	return r.miss(d.CustomID)
}

func (r *Router) miss(key string) (*route, error) {
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("dispatch.Router.Resolve: %q: %w", key, ErrRouteNotFound)
}

func appendPattern(patterns []pattern, prefix string, rt *route) ([]pattern, error) {
	if prefix == "" {
		return patterns, fmt.Errorf("empty prefix")
	}
	for _, p := range patterns {
		if p.prefix == prefix {
			return patterns, fmt.Errorf("%q: %w", prefix, ErrDuplicateRoute)
		}
	}
	return append(patterns, pattern{prefix: prefix, route: rt}), nil
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	parts := strings.Split(path, ".")
	if len(parts) > maxCommandDepth {
		return fmt.Errorf("path %q exceeds %d levels", path, maxCommandDepth)
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("path %q has an empty segment", path)
		}
	}
	return nil
}

// commandPath derives the dot-joined route key by walking the command data
// depth-first: the top-level name, then the subcommand group and subcommand
// while the first nested option is one of those kinds. More than three
// levels is a lookup miss.
func commandPath(d *interaction.Data) (string, bool) {
	if d == nil || d.Name == "" {
		return "", false
	}

	parts := []string{d.Name}
	opts := d.Options
	for len(opts) > 0 {
		first := opts[0]
		if first.Type != interaction.OptionSubCommand && first.Type != interaction.OptionSubCommandGroup {
			break
		}
		if len(parts) == maxCommandDepth {
			return "", false
		}
		parts = append(parts, first.Name)
		opts = first.Options
	}

	return strings.Join(parts, "."), true
}

// focusedOption finds the option the user is currently typing into,
// descending through subcommand nesting.
func focusedOption(opts []interaction.Option) (string, bool) {
	for _, o := range opts {
		if o.Focused {
			return o.Name, true
		}
		if name, ok := focusedOption(o.Options); ok {
			return name, true
		}
	}
	return "", false
}
