package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pyingest/pkg/types"
)

func parse(t *testing.T, src string) *types.ParsingResult {
	t.Helper()
	return New(nil).ParseSource(context.Background(), []byte(src), "sample.py")
}

func TestNew(t *testing.T) {
	p := New(nil)
	assert.NotNil(t, p)
	assert.NotNil(t, p.logger)
}

func TestParseSource_SimpleFunction(t *testing.T) {
	result := parse(t, "def f(a, b=1):\n    if a:\n        return a\n    return b\n")

	require.True(t, result.Success)
	require.Len(t, result.Elements, 1)

	el := result.Elements[0]
	assert.Equal(t, types.ElementFunction, el.ElementType)
	assert.Equal(t, "f", el.Name)
	assert.Equal(t, "f", el.QualifiedName)
	assert.Equal(t, "f(a, b = 1)", el.Signature)
	assert.Equal(t, 2, el.Complexity)
	assert.Equal(t, 1, el.LineStart)
	assert.Equal(t, 4, el.LineEnd)
	assert.Equal(t, "sample.py", el.FilePath)
	assert.Empty(t, el.ParentClass)
	assert.Equal(t, []string{"function"}, el.Tags)
	assert.Equal(t, []string{"a", "b"}, el.Dependencies)
	assert.Len(t, el.ContentHash, 16)
	assert.Equal(t, 5, result.TotalLines)
}

func TestParseSource_ClassAndMethods(t *testing.T) {
	src := `class Shape(Base, metaclass=Meta):
    """A shape."""

    def area(self):
        return 0

    @property
    def name(self):
        return "shape"

    @staticmethod
    def unit():
        return Shape()

    @classmethod
    def build(cls, *args, **kwargs):
        return cls()

    async def load(self):
        await fetch()
`
	result := parse(t, src)
	require.True(t, result.Success)

	byName := make(map[string]*types.CodeElement)
	for _, el := range result.Elements {
		byName[el.QualifiedName] = el
	}
	require.Len(t, byName, 6)

	cls := byName["Shape"]
	require.NotNil(t, cls)
	assert.Equal(t, types.ElementClass, cls.ElementType)
	assert.Equal(t, "A shape.", cls.Docstring)
	assert.Equal(t, []string{"Base"}, cls.Dependencies)
	assert.Equal(t, []string{"class", "inheritance"}, cls.Tags)

	assert.Equal(t, types.ElementMethod, byName["Shape.area"].ElementType)
	assert.Equal(t, types.ElementProperty, byName["Shape.name"].ElementType)
	assert.Equal(t, types.ElementStaticMethod, byName["Shape.unit"].ElementType)
	assert.Equal(t, types.ElementClassMethod, byName["Shape.build"].ElementType)
	assert.Equal(t, types.ElementAsyncMethod, byName["Shape.load"].ElementType)

	for _, name := range []string{"Shape.area", "Shape.name", "Shape.unit", "Shape.build", "Shape.load"} {
		assert.Equal(t, "Shape", byName[name].ParentClass, name)
		assert.True(t, byName[name].HasTag("method"), name)
	}
	assert.True(t, byName["Shape.load"].HasTag("async"))
	assert.True(t, byName["Shape.name"].HasTag("decorated"))
	assert.Equal(t, []string{"property"}, byName["Shape.name"].Decorators)
	assert.Equal(t, "build(cls, *args, **kwargs)", byName["Shape.build"].Signature)

	// self is not a dependency; the awaited call target is
	assert.Equal(t, []string{"fetch"}, byName["Shape.load"].Dependencies)
}

func TestParseSource_NestedClass(t *testing.T) {
	src := `class Outer:
    class Inner:
        def method(self):
            pass
`
	result := parse(t, src)
	require.True(t, result.Success)
	require.Len(t, result.Elements, 3)

	assert.Equal(t, "Outer", result.Elements[0].QualifiedName)
	assert.Equal(t, "Outer.Inner", result.Elements[1].QualifiedName)
	assert.Equal(t, "Outer", result.Elements[1].ParentClass)

	method := result.Elements[2]
	assert.Equal(t, "Outer.Inner.method", method.QualifiedName)
	assert.Equal(t, "Outer.Inner", method.ParentClass)
	assert.Equal(t, types.ElementMethod, method.ElementType)
}

func TestParseSource_NestedFunctionsNotEmitted(t *testing.T) {
	src := `def outer():
    def inner():
        return 1
    return inner()
`
	result := parse(t, src)
	require.True(t, result.Success)
	require.Len(t, result.Elements, 1)
	assert.Equal(t, "outer", result.Elements[0].QualifiedName)
	assert.Contains(t, result.Elements[0].SourceText, "def inner")
}

func TestParseSource_AsyncFunctionAndGenerator(t *testing.T) {
	src := `async def fetch(url: str) -> bytes:
    return await get(url)

def numbers(n):
    for i in range(n):
        yield i
`
	result := parse(t, src)
	require.True(t, result.Success)
	require.Len(t, result.Elements, 2)

	fetch := result.Elements[0]
	assert.Equal(t, types.ElementAsyncFunction, fetch.ElementType)
	assert.Equal(t, "fetch(url: str) -> bytes", fetch.Signature)
	assert.True(t, fetch.HasTag("async"))

	gen := result.Elements[1]
	assert.Equal(t, types.ElementFunction, gen.ElementType)
	assert.True(t, gen.HasTag("generator"))
	assert.Equal(t, 2, gen.Complexity)
}

func TestParseSource_DecoratorsCoverLines(t *testing.T) {
	src := `import functools

@functools.lru_cache(maxsize=None)
@trace
def cached(x):
    return x
`
	result := parse(t, src)
	require.True(t, result.Success)
	require.Len(t, result.Elements, 1)

	el := result.Elements[0]
	assert.Equal(t, 3, el.LineStart)
	assert.Equal(t, 6, el.LineEnd)
	assert.True(t, strings.HasPrefix(el.SourceText, "@functools"))
	assert.Equal(t, []string{"functools.lru_cache(maxsize=None)", "trace"}, el.Decorators)
	assert.True(t, el.HasTag("decorated"))
	assert.Equal(t, []string{"functools"}, el.Imports)
}

func TestParseSource_Signatures(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty", "def f():\n    pass\n", "f()"},
		{"typed", "def f(a: int, b: str = 'x'):\n    pass\n", "f(a: int, b: str = 'x')"},
		{"keyword only", "def f(a, *, b):\n    pass\n", "f(a, *, b)"},
		{"positional only", "def f(a, /, b):\n    pass\n", "f(a, /, b)"},
		{"splats", "def f(*args: int, **kw):\n    pass\n", "f(*args: int, **kw)"},
		{"return", "def f() -> dict[str, int]:\n    pass\n", "f() -> dict[str, int]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parse(t, tt.src)
			require.True(t, result.Success)
			require.Len(t, result.Elements, 1)
			assert.Equal(t, tt.want, result.Elements[0].Signature)
		})
	}
}

func TestParseSource_Complexity(t *testing.T) {
	src := `def decide(a, b):
    if a and b:
        return 1
    elif a or b:
        return 2
    while a:
        a -= 1
    try:
        pass
    except ValueError:
        pass
    return 0
`
	result := parse(t, src)
	require.True(t, result.Success)
	require.Len(t, result.Elements, 1)
	// if, and, elif, or, while, except
	assert.Equal(t, 7, result.Elements[0].Complexity)
}

func TestParseSource_BooleanChains(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want int
	}{
		{"single and", "a and b", 2},
		{"chained and", "a and b and c", 2},
		{"chained or", "a or b or c or d", 2},
		{"mixed operators", "a and b or c", 3},
		{"parenthesized group", "(a and b) and c", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parse(t, "def f(a, b, c, d):\n    return "+tt.expr+"\n")
			require.True(t, result.Success)
			require.Len(t, result.Elements, 1)
			assert.Equal(t, tt.want, result.Elements[0].Complexity)
		})
	}
}

func TestParseSource_Dependencies(t *testing.T) {
	t.Run("filters private and self", func(t *testing.T) {
		src := `def run(self, data):
    _hidden()
    self.store.save(data)
    return helper(data, key=compute())
`
		result := parse(t, src)
		require.True(t, result.Success)
		deps := result.Elements[0].Dependencies
		assert.Equal(t, []string{"data", "helper", "compute"}, deps)
		assert.NotContains(t, deps, "self")
		assert.NotContains(t, deps, "_hidden")
		assert.NotContains(t, deps, "store")
	})

	t.Run("capped", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("def many():\n")
		for i := 0; i < 15; i++ {
			b.WriteString("    call")
			b.WriteString(string(rune('a' + i)))
			b.WriteString("()\n")
		}
		result := parse(t, b.String())
		require.True(t, result.Success)
		deps := result.Elements[0].Dependencies
		assert.Len(t, deps, MaxDependencies)
		assert.Equal(t, "calla", deps[0])
	})
}

func TestParseSource_Docstrings(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "single line",
			src:  "def f():\n    \"\"\"Do things.\"\"\"\n",
			want: "Do things.",
		},
		{
			name: "multi line dedented",
			src:  "def f():\n    \"\"\"Summary.\n\n    Details here.\n        Indented.\n    \"\"\"\n",
			want: "Summary.\n\nDetails here.\n    Indented.",
		},
		{
			name: "single quotes",
			src:  "def f():\n    'quoted'\n",
			want: "quoted",
		},
		{
			name: "not first statement",
			src:  "def f():\n    x = 1\n    \"\"\"late\"\"\"\n",
			want: "",
		},
		{
			name: "f-string is not a docstring",
			src:  "def f():\n    f\"{x}\"\n",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parse(t, tt.src)
			require.True(t, result.Success)
			require.NotEmpty(t, result.Elements)
			assert.Equal(t, tt.want, result.Elements[0].Docstring)
		})
	}
}

func TestParseSource_ModuleElement(t *testing.T) {
	t.Run("added for top-level logic", func(t *testing.T) {
		src := `"""Script."""
import sys

config = load()
if config:
    run(config)
print("done")

def load():
    return {}
`
		result := New(nil).ParseSource(context.Background(), []byte(src), "/tmp/tool.py")
		require.True(t, result.Success)
		require.Len(t, result.Elements, 2)

		mod := result.Elements[0]
		assert.Equal(t, types.ElementModule, mod.ElementType)
		assert.Equal(t, "tool", mod.Name)
		assert.Equal(t, 1, mod.LineStart)
		assert.Equal(t, result.TotalLines, mod.LineEnd)
		assert.Equal(t, 1, mod.Complexity)
		assert.Equal(t, "Script.", mod.Docstring)
		assert.Equal(t, []string{"module", "top-level"}, mod.Tags)
		assert.Equal(t, src, mod.SourceText)

		assert.Equal(t, "load", result.Elements[1].QualifiedName)
	})

	t.Run("absent for definitions only", func(t *testing.T) {
		src := "import os\n\nX = 1\n\ndef a():\n    pass\n\nclass B:\n    pass\n"
		result := parse(t, src)
		require.True(t, result.Success)
		for _, el := range result.Elements {
			assert.NotEqual(t, types.ElementModule, el.ElementType)
		}
	})

	t.Run("stem shared with a definition", func(t *testing.T) {
		src := "import sys\n\ndef main():\n    return 0\n\nconfig = {}\nif config:\n    print(config)\nsys.exit(main())\n"
		result := New(nil).ParseSource(context.Background(), []byte(src), "/tmp/main.py")
		require.True(t, result.Success)
		require.Len(t, result.Elements, 2)

		mod := result.Elements[0]
		assert.Equal(t, types.ElementModule, mod.ElementType)
		assert.Equal(t, "main", mod.Name)
		assert.Equal(t, "main#module", mod.QualifiedName)
		assert.Equal(t, "main", result.Elements[1].QualifiedName)
		assert.Empty(t, result.Warnings)
	})

	t.Run("default name without path", func(t *testing.T) {
		result := New(nil).ParseSource(context.Background(), []byte("a = 1\nb = 2\nc = 3\n"), "")
		require.True(t, result.Success)
		require.Len(t, result.Elements, 1)
		assert.Equal(t, DefaultModuleName, result.Elements[0].Name)
	})
}

func TestParseSource_SyntaxError(t *testing.T) {
	result := parse(t, "def broken(:\n    pass\n")

	assert.False(t, result.Success)
	assert.Empty(t, result.Elements)
	require.Len(t, result.Errors, 1)
	assert.Regexp(t, `^SyntaxError: .* at line \d+$`, result.Errors[0])
}

func TestParseSource_RejectsPython2AndInvalidForms(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"print statement", "x = 1\nprint \"hello\"\n", "SyntaxError: Missing parentheses in call to 'print' at line 2"},
		{"exec statement", "exec \"x = 1\"\n", "SyntaxError: Missing parentheses in call to 'exec' at line 1"},
		{"bare walrus", "x := 1\n", "SyntaxError: invalid syntax at line 1"},
		{"unparenthesized generator", "f(x for x in y, 1)\n", "SyntaxError: Generator expression must be parenthesized at line 1"},
		{"delete call", "def g():\n    del f()\n", "SyntaxError: cannot delete function call at line 2"},
		{"delete call in tuple", "del a, f()\n", "SyntaxError: cannot delete function call at line 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parse(t, tt.src)
			assert.False(t, result.Success)
			assert.Empty(t, result.Elements)
			assert.Equal(t, []string{tt.want}, result.Errors)
		})
	}
}

func TestParseSource_AcceptsPython3Forms(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"print call", "print(\"hello\")\n"},
		{"exec call", "exec(\"x = 1\")\n"},
		{"parenthesized walrus", "(x := 1)\n"},
		{"walrus in condition", "if (n := len(a)) > 1:\n    pass\n"},
		{"sole generator argument", "f(x for x in y)\n"},
		{"parenthesized generator beside argument", "f((x for x in y), 1)\n"},
		{"delete subscripts", "del a[0], b.c\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parse(t, tt.src)
			assert.True(t, result.Success, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestParseSource_EmptySource(t *testing.T) {
	result := parse(t, "")
	assert.True(t, result.Success)
	assert.Empty(t, result.Elements)
	assert.Equal(t, 1, result.TotalLines)
}

func TestParseSource_DuplicateNames(t *testing.T) {
	src := `if FAST:
    def impl():
        return 1
else:
    def impl():
        return 2
`
	result := parse(t, src)
	require.True(t, result.Success)
	require.Len(t, result.Elements, 2)
	assert.Equal(t, "impl", result.Elements[0].QualifiedName)
	assert.Equal(t, "impl#2", result.Elements[1].QualifiedName)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "impl#2")
}

func TestParseSource_Imports(t *testing.T) {
	src := `import os.path as osp
from collections import OrderedDict, defaultdict
from . import sibling
from .pkg import thing

def f():
    import json
    return json.dumps({})

def g():
    pass
`
	result := parse(t, src)
	require.True(t, result.Success)
	require.Len(t, result.Elements, 2)

	assert.Equal(t, []string{"os.path", "collections.OrderedDict", "collections.defaultdict", "pkg.thing"},
		result.Elements[0].Imports)
	assert.Equal(t, []string{"os.path", "collections.OrderedDict", "collections.defaultdict", "pkg.thing", "json"},
		result.Elements[1].Imports)
}

func TestParseSource_Idempotent(t *testing.T) {
	src := "class A:\n    def m(self):\n        return 1\n\ndef f():\n    return A()\n"
	first := parse(t, src)
	second := parse(t, src)

	require.Len(t, first.Elements, len(second.Elements))
	for i := range first.Elements {
		assert.Equal(t, first.Elements[i].ContentHash, second.Elements[i].ContentHash)
		assert.Equal(t, first.Elements[i].QualifiedName, second.Elements[i].QualifiedName)
	}
}

func TestParseSource_ElementsWithinFile(t *testing.T) {
	src := "class A:\n    def m(self):\n        return 1\n\n    def n(self):\n        pass\n\ndef f():\n    return A()\n"
	result := parse(t, src)
	require.True(t, result.Success)

	seen := make(map[string]bool)
	for _, el := range result.Elements {
		assert.GreaterOrEqual(t, el.LineStart, 1)
		assert.LessOrEqual(t, el.LineStart, el.LineEnd)
		assert.LessOrEqual(t, el.LineEnd, result.TotalLines)
		assert.GreaterOrEqual(t, el.Complexity, 1)
		assert.LessOrEqual(t, len(el.Dependencies), MaxDependencies)
		assert.False(t, seen[el.QualifiedName], "duplicate %s", el.QualifiedName)
		seen[el.QualifiedName] = true
		assert.NoError(t, el.Validate())
	}
}

func TestSearchableContent(t *testing.T) {
	result := parse(t, "def greet(name):\n    \"\"\"Say hello.\"\"\"\n    return name\n")
	require.Len(t, result.Elements, 1)

	content := result.Elements[0].SearchableContent()
	assert.Contains(t, content, "greet")
	assert.Contains(t, content, "Say hello.")
	assert.Contains(t, content, "greet(name)")
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.py")
	require.NoError(t, os.WriteFile(path, []byte("def f():\n    pass\n"), 0o644))

	p := New(nil)
	result := p.ParseFile(context.Background(), path)
	require.True(t, result.Success)
	require.Len(t, result.Elements, 1)
	assert.Equal(t, path, result.Elements[0].FilePath)

	missing := p.ParseFile(context.Background(), filepath.Join(dir, "missing.py"))
	assert.False(t, missing.Success)
	require.Len(t, missing.Errors, 1)
	assert.Contains(t, missing.Errors[0], "failed to read file")
}

func TestParseDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("def a():\n    pass\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.py"), []byte("def b(:\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "c.py"), []byte("class C:\n    pass\n"), 0o644))

	p := New(nil)

	t.Run("recursive", func(t *testing.T) {
		results, err := p.ParseDirectory(context.Background(), dir, true, "")
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.True(t, results[0].Success)
		assert.False(t, results[1].Success)
		assert.True(t, results[2].Success)
		assert.Equal(t, filepath.Join(dir, "sub", "c.py"), results[2].FilePath)
	})

	t.Run("flat", func(t *testing.T) {
		results, err := p.ParseDirectory(context.Background(), dir, false, "*.py")
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := p.ParseDirectory(context.Background(), filepath.Join(dir, "nope"), true, "")
		assert.Error(t, err)
	})
}
