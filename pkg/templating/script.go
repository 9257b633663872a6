package templating

import (
	"errors"
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/CTAG07/markus/pkg/markus"
	"github.com/CTAG07/markus/pkg/tags"
)

var ErrNoRenderFunc = errors.New("script does not define render(tag)")

// scriptHandler renders a tag by calling the render function of a Starlark
// script. The module is frozen after loading, so one handler may serve
// concurrent renders, each on its own thread.
type scriptHandler struct {
	name     string
	fn       starlark.Callable
	maxSteps uint64
}

var scriptBuiltins = starlark.StringDict{
	"urlize": starlark.NewBuiltin("urlize", func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s string
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &s); err != nil {
			return nil, err
		}
		return starlark.String(tags.Urlize(s)), nil
	}),
}

func newScriptHandler(name, src string, maxSteps uint64) (*scriptHandler, error) {
	thread := newThread(name, maxSteps)
	globals, err := starlark.ExecFile(thread, name, src, scriptBuiltins)
	if err != nil {
		return nil, fmt.Errorf("loading script: %w", err)
	}
	fn, ok := globals["render"].(starlark.Callable)
	if !ok {
		return nil, ErrNoRenderFunc
	}
	return &scriptHandler{name: name, fn: fn, maxSteps: maxSteps}, nil
}

func newThread(name string, maxSteps uint64) *starlark.Thread {
	thread := &starlark.Thread{Name: name}
	if maxSteps > 0 {
		thread.SetMaxExecutionSteps(maxSteps)
	}
	return thread
}

func (h *scriptHandler) Render(c *markus.Call) (string, error) {
	v := newView(c, c.Content)
	encode := starlark.NewBuiltin("encode", func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s string
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &s); err != nil {
			return nil, err
		}
		return starlark.String(c.Encode(s)), nil
	})

	values := make([]starlark.Value, len(v.Values))
	for i, s := range v.Values {
		values[i] = starlark.String(s)
	}
	tag := starlarkstruct.FromStringDict(starlark.String("tag"), starlark.StringDict{
		"name":    starlark.String(v.Name),
		"content": starlark.String(c.Content),
		"attrs":   toStarlark(v.Attrs),
		"values":  starlark.NewList(values),
		"before":  starlark.String(v.Before),
		"after":   starlark.String(v.After),
		"data":    toStarlark(v.Data),
		"encode":  encode,
	})

	res, err := starlark.Call(newThread(h.name, h.maxSteps), h.fn, starlark.Tuple{tag}, nil)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return "", fmt.Errorf("%s: %s", h.name, evalErr.Backtrace())
		}
		return "", err
	}
	s, ok := starlark.AsString(res)
	if !ok {
		return "", fmt.Errorf("%s: render returned %s, want string", h.name, res.Type())
	}
	return s, nil
}

// toStarlark converts render data to Starlark values. Types without a
// Starlark counterpart are passed as their fmt representation.
func toStarlark(v any) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case string:
		return starlark.String(v)
	case bool:
		return starlark.Bool(v)
	case int:
		return starlark.MakeInt(v)
	case int64:
		return starlark.MakeInt64(v)
	case float64:
		return starlark.Float(v)
	case []string:
		list := make([]starlark.Value, len(v))
		for i, s := range v {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list)
	case []any:
		list := make([]starlark.Value, len(v))
		for i, e := range v {
			list[i] = toStarlark(e)
		}
		return starlark.NewList(list)
	case map[string]string:
		dict := starlark.NewDict(len(v))
		for _, k := range sortedKeys(v) {
			_ = dict.SetKey(starlark.String(k), starlark.String(v[k]))
		}
		return dict
	case map[string]any:
		dict := starlark.NewDict(len(v))
		for _, k := range sortedKeys(v) {
			_ = dict.SetKey(starlark.String(k), toStarlark(v[k]))
		}
		return dict
	default:
		return starlark.String(fmt.Sprint(v))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
