package expr_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/cel-go/common/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/relay/pkg/expr"
)

func TestPredicate_Eval(t *testing.T) {
	t.Parallel()

	env := expr.MustNewEnvironment()

	tcs := map[string]struct {
		expression string
		input      expr.Input
		want       bool
	}{
		"constant": {
			expression: `true`,
			want:       true,
		},
		"non-empty argument": {
			expression: `arg != ""`,
			input:      expr.Input{Arg: "main"},
			want:       true,
		},
		"empty argument": {
			expression: `arg != ""`,
			input:      expr.Input{Arg: ""},
			want:       false,
		},
		"nil argument": {
			expression: `arg == null`,
			want:       true,
		},
		"not running": {
			expression: `!running`,
			input:      expr.Input{Running: true},
			want:       false,
		},
		"state lookup": {
			expression: `has(state.selected) && state.selected != ""`,
			input:      expr.Input{State: map[string]any{"selected": "item 1"}},
			want:       true,
		},
		"missing state key": {
			expression: `has(state.selected)`,
			want:       false,
		},
		"state count": {
			expression: `state.count > 0`,
			input:      expr.Input{State: map[string]any{"count": 2}},
			want:       true,
		},
		"path functions": {
			expression: `pathBase(arg) == "config.yaml" && pathExt(arg) == ".yaml" && pathDir(arg) == "/etc/relay"`,
			input:      expr.Input{Arg: "/etc/relay/config.yaml"},
			want:       true,
		},
		"strings extension": {
			expression: `arg.lowerAscii() == "build"`,
			input:      expr.Input{Arg: "BUILD"},
			want:       true,
		},
		"list argument": {
			expression: `arg.exists(a, a == "-v")`,
			input:      expr.Input{Arg: []string{"test", "-v"}},
			want:       true,
		},
		"missing executable": {
			expression: `lookPath("relay-test-no-such-binary")`,
			want:       false,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p, err := expr.NewPredicate(env, tc.expression)
			require.NoError(t, err)
			assert.Equal(t, tc.expression, p.Expression())

			got, err := p.Eval(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPredicate_CompileErrors(t *testing.T) {
	t.Parallel()

	env := expr.MustNewEnvironment()

	tcs := map[string]struct {
		expression string
		err        error
	}{
		"syntax error": {
			expression: `arg ==`,
		},
		"unknown variable": {
			expression: `files.size() > 0`,
		},
		"not a bool": {
			expression: `1 + 1`,
			err:        expr.ErrNotBool,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := expr.NewPredicate(env, tc.expression)
			require.Error(t, err)

			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			}
		})
	}

	assert.Panics(t, func() {
		expr.MustNewPredicate(env, `arg ==`)
	})
}

func TestPredicate_EvalErrors(t *testing.T) {
	t.Parallel()

	env := expr.MustNewEnvironment()

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()

		p := expr.MustNewPredicate(env, `state.selected == "x"`)

		_, err := p.Eval(expr.Input{})
		require.Error(t, err)
	})

	t.Run("dynamic result is not a bool", func(t *testing.T) {
		t.Parallel()

		p := expr.MustNewPredicate(env, `arg`)

		_, err := p.Eval(expr.Input{Arg: "yes"})
		require.ErrorIs(t, err, expr.ErrNotBool)

		got, err := p.Eval(expr.Input{Arg: true})
		require.NoError(t, err)
		assert.True(t, got)
	})
}

func TestYamlPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: relay\ntargets:\n  - build\n  - test\n"), 0o644))

	env := expr.MustNewEnvironment()

	tcs := map[string]struct {
		expression string
		want       bool
	}{
		"scalar": {
			expression: `yamlPath(arg, "$.name") == "relay"`,
			want:       true,
		},
		"list": {
			expression: `"test" in yamlPath(arg, "$.targets")`,
			want:       true,
		},
		"missing path": {
			expression: `yamlPath(arg, "$.missing") == null`,
			want:       true,
		},
		"invalid path": {
			expression: `yamlPath(arg, "not a path") == null`,
			want:       true,
		},
		"missing file": {
			expression: `yamlPath(arg + ".nope", "$.name") == null`,
			want:       true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := expr.MustNewPredicate(env, tc.expression).Eval(expr.Input{Arg: file})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConvertToCELValue(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input    any
		expected any
		isNull   bool
	}{
		"nil value":     {input: nil, isNull: true},
		"bool":          {input: true, expected: true},
		"int":           {input: 42, expected: int64(42)},
		"int8":          {input: int8(42), expected: int64(42)},
		"uint":          {input: uint(42), expected: int64(42)},
		"uint overflow": {input: uint64(math.MaxUint64), expected: float64(math.MaxUint64)},
		"float32":       {input: float32(1.5), expected: 1.5},
		"string":        {input: "hello", expected: "hello"},
		"unsupported":   {input: complex(1, 2), isNull: true},
		"stringer":      {input: stringer("relay"), expected: "relay"},
		"uint32":        {input: uint32(7), expected: int64(7)},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			result := expr.ConvertToCELValue(tc.input)

			if tc.isNull {
				assert.Equal(t, types.NullValue, result)

				return
			}

			switch expected := tc.expected.(type) {
			case float64:
				floatVal, ok := result.Value().(float64)
				require.True(t, ok)
				assert.InDelta(t, expected, floatVal, 0.01)
			default:
				assert.Equal(t, expected, result.Value())
			}
		})
	}

	for _, in := range []any{
		[]any{1, "a", nil},
		[]string{"a", "b"},
	} {
		assert.Equal(t, "list", expr.ConvertToCELValue(in).Type().TypeName())
	}

	for _, in := range []any{
		map[any]any{"a": 1, 2: "b"},
		map[string]any{"a": map[string]any{"b": true}},
		map[string]string{"a": "b"},
	} {
		assert.Equal(t, "map", expr.ConvertToCELValue(in).Type().TypeName())
	}
}

type stringer string

func (s stringer) String() string { return string(s) }
