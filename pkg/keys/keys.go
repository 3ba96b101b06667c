// Package keys declares configurable key bindings and renders them as help.
package keys

import (
	"errors"
	"fmt"
	"strings"

	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
)

// Ellipsis marks truncated help text.
const Ellipsis = "…"

// ErrDuplicateKey is returned when one key code is bound twice.
var ErrDuplicateKey = errors.New("duplicate key binding")

// Key is a single key code, optionally shown under an alias.
type Key struct {
	// Code is the key as reported by the terminal, e.g. "ctrl+c".
	Code string `json:"code" jsonschema:"title=Code"`
	// Alias replaces Code in help output.
	Alias string `json:"alias,omitempty" jsonschema:"title=Alias"`
	// Hidden keys match but are not shown in help output.
	Hidden bool `json:"hidden,omitempty" jsonschema:"title=Hidden"`
}

// KeyOpt configures a [Key].
type KeyOpt func(k *Key)

// New creates a [Key].
func New(code string, opts ...KeyOpt) Key {
	k := Key{Code: code}
	for _, opt := range opts {
		opt(&k)
	}

	return k
}

// WithAlias sets [Key.Alias].
func WithAlias(alias string) KeyOpt {
	return func(k *Key) {
		k.Alias = alias
	}
}

// Hidden sets [Key.Hidden].
func Hidden() KeyOpt {
	return func(k *Key) {
		k.Hidden = true
	}
}

func (k Key) String() string {
	if k.Alias != "" {
		return k.Alias
	}

	return k.Code
}

// KeyBind binds one action to a set of keys.
type KeyBind struct {
	// Description is shown in help output.
	Description string `json:"description" jsonschema:"title=Description"`
	// Keys trigger the action.
	Keys []Key `json:"keys" jsonschema:"title=Keys"`
}

// NewBind creates a [KeyBind].
func NewBind(description string, keys ...Key) KeyBind {
	return KeyBind{
		Description: description,
		Keys:        keys,
	}
}

// String joins the visible keys with "/".
func (kb *KeyBind) String() string {
	keys := []string{}

	for _, k := range kb.Keys {
		if !k.Hidden {
			keys = append(keys, k.String())
		}
	}

	return strings.Join(keys, "/")
}

// Match reports whether key triggers the binding.
func (kb *KeyBind) Match(key string) bool {
	if kb == nil {
		return false
	}

	for _, k := range kb.Keys {
		if k.Code == key {
			return true
		}
	}

	return false
}

// SetDefaultBind fills *kb from def. Keys and description set by the user
// are kept.
func SetDefaultBind(kb **KeyBind, def KeyBind) {
	if *kb == nil {
		*kb = &def

		return
	}

	if len((*kb).Keys) == 0 {
		(*kb).Keys = def.Keys
	}

	if (*kb).Description == "" {
		(*kb).Description = def.Description
	}
}

// ValidateBinds returns [ErrDuplicateKey] for every key code that appears in
// more than one binding.
func ValidateBinds(kbs ...*KeyBind) error {
	var errs []error

	seen := map[string]string{}

	for _, kb := range kbs {
		if kb == nil {
			continue
		}

		for _, k := range kb.Keys {
			if prev, ok := seen[k.Code]; ok {
				errs = append(errs, fmt.Errorf("%w: %q used by %q and %q", ErrDuplicateKey, k.Code, prev, kb.Description))

				continue
			}

			seen[k.Code] = kb.Description
		}
	}

	return errors.Join(errs...)
}

// KeyBinds are the key bindings of the terminal UI.
type KeyBinds struct {
	Quit   *KeyBind `json:"quit,omitempty" jsonschema:"title=Quit"`
	Help   *KeyBind `json:"help,omitempty" jsonschema:"title=Help"`
	Up     *KeyBind `json:"up,omitempty" jsonschema:"title=Up"`
	Down   *KeyBind `json:"down,omitempty" jsonschema:"title=Down"`
	Focus  *KeyBind `json:"focus,omitempty" jsonschema:"title=Switch Focus"`
	Run    *KeyBind `json:"run,omitempty" jsonschema:"title=Run Command"`
	Cancel *KeyBind `json:"cancel,omitempty" jsonschema:"title=Cancel Command"`
	Edit   *KeyBind `json:"edit,omitempty" jsonschema:"title=Edit Input"`
	Blur   *KeyBind `json:"blur,omitempty" jsonschema:"title=Leave Input"`
}

// NewKeyBinds returns [KeyBinds] with every binding set to its default.
func NewKeyBinds() *KeyBinds {
	kb := &KeyBinds{}
	kb.EnsureDefaults()

	return kb
}

// EnsureDefaults sets every unset binding to its default.
func (kb *KeyBinds) EnsureDefaults() {
	SetDefaultBind(&kb.Quit, NewBind("quit", New("q"), New("ctrl+c", Hidden())))
	SetDefaultBind(&kb.Help, NewBind("help", New("?")))
	SetDefaultBind(&kb.Up, NewBind("up", New("up", WithAlias("↑")), New("k", Hidden())))
	SetDefaultBind(&kb.Down, NewBind("down", New("down", WithAlias("↓")), New("j", Hidden())))
	SetDefaultBind(&kb.Focus, NewBind("commands/items", New("tab")))
	SetDefaultBind(&kb.Run, NewBind("run", New("enter", WithAlias("⏎"))))
	SetDefaultBind(&kb.Cancel, NewBind("cancel", New("x")))
	SetDefaultBind(&kb.Edit, NewBind("edit input", New("i"), New("/", Hidden())))
	SetDefaultBind(&kb.Blur, NewBind("leave input", New("esc")))
}

// Validate checks that no key is bound twice. Blur and Run are also active
// while the input is focused, so they are checked against each other only.
func (kb *KeyBinds) Validate() error {
	return errors.Join(
		ValidateBinds(kb.Quit, kb.Help, kb.Up, kb.Down, kb.Focus, kb.Run, kb.Cancel, kb.Edit, kb.Blur),
		ValidateBinds(kb.Run, kb.Blur),
	)
}

// Renderer lays out key bindings as help text.
type Renderer struct {
	columns [][]*KeyBind
}

// AddColumn adds a column of bindings.
func (r *Renderer) AddColumn(kbs ...*KeyBind) {
	if len(kbs) > 0 {
		r.columns = append(r.columns, kbs)
	}
}

// Short renders all bindings on one line, truncated to width.
func (r *Renderer) Short(width int) string {
	parts := []string{}

	for _, col := range r.columns {
		for _, kb := range col {
			if keys := kb.String(); keys != "" {
				parts = append(parts, keys+" "+kb.Description)
			}
		}
	}

	return Truncate(strings.Join(parts, " • "), width)
}

// Full renders the columns side by side within width.
func (r *Renderer) Full(width int) string {
	if len(r.columns) == 0 {
		return ""
	}

	colWidth := max(6, width/len(r.columns)-2)

	var (
		rows    [][]string
		maxRows int
	)

	for _, col := range r.columns {
		lines := renderColumn(colWidth, col)
		rows = append(rows, lines)
		maxRows = max(maxRows, len(lines))
	}

	var sb strings.Builder

	for i := range maxRows {
		if i > 0 {
			sb.WriteString("\n")
		}

		for _, lines := range rows {
			line := strings.Repeat(" ", colWidth)
			if i < len(lines) {
				line = lines[i]
			}

			sb.WriteString(" " + line + " ")
		}
	}

	return strings.TrimRight(sb.String(), " ")
}

func renderColumn(width int, kbs []*KeyBind) []string {
	keyWidth := 0
	for _, kb := range kbs {
		keyWidth = max(keyWidth, ansi.PrintableRuneWidth(kb.String()))
	}

	descWidth := width - keyWidth - 2

	lines := []string{}

	for _, kb := range kbs {
		keys := kb.String()
		if keys == "" {
			continue
		}

		line := pad(keys, keyWidth) + "  " + pad(Truncate(kb.Description, descWidth), descWidth)
		lines = append(lines, line)
	}

	return lines
}

func pad(s string, width int) string {
	return s + strings.Repeat(" ", max(0, width-ansi.PrintableRuneWidth(s)))
}

// Truncate shortens s to width printable cells, ending with [Ellipsis] when
// it was cut.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}

	if ansi.PrintableRuneWidth(s) <= width {
		return s
	}

	return truncate.StringWithTail(s, uint(width), Ellipsis) //nolint:gosec // G115: width is positive.
}
