package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calltree/internal/models"
)

func TestParseDeclarationFunc(t *testing.T) {
	p := NewAutosarParser()

	fn := p.ParseDeclaration("FUNC(void, DEMO_CODE) Demo_Init(void)", "demo.c", 12)
	require.NotNil(t, fn)
	assert.Equal(t, "Demo_Init", fn.Name)
	assert.Equal(t, "void", fn.ReturnType)
	assert.Equal(t, "DEMO_CODE", fn.MemoryClass)
	assert.Equal(t, "FUNC", fn.MacroType)
	assert.Equal(t, models.FunctionTypeAutosarFunc, fn.FunctionType)
	assert.False(t, fn.IsStatic)
	assert.Equal(t, 12, fn.LineNumber)
}

func TestParseDeclarationStaticFunc(t *testing.T) {
	p := NewAutosarParser()

	fn := p.ParseDeclaration("STATIC FUNC(Std_ReturnType, APP_CODE) App_Process(void)", "app.c", 1)
	require.NotNil(t, fn)
	assert.True(t, fn.IsStatic)
	assert.Equal(t, "Std_ReturnType", fn.ReturnType)
}

func TestParseDeclarationFuncP2Var(t *testing.T) {
	p := NewAutosarParser()

	fn := p.ParseDeclaration("FUNC_P2VAR(uint8, AUTOMATIC, DEMO_CODE) GetBuffer(void)", "demo.c", 20)
	require.NotNil(t, fn)
	assert.Equal(t, "GetBuffer", fn.Name)
	assert.Equal(t, "uint8*", fn.ReturnType)
	assert.Equal(t, "DEMO_CODE", fn.MemoryClass)
	assert.Equal(t, models.FunctionTypeAutosarFuncP2Var, fn.FunctionType)
}

func TestParseDeclarationFuncP2Const(t *testing.T) {
	p := NewAutosarParser()

	fn := p.ParseDeclaration("FUNC_P2CONST(ConfigType, AUTOMATIC, DEMO_CODE) GetConfig(void)", "demo.c", 30)
	require.NotNil(t, fn)
	assert.Equal(t, "GetConfig", fn.Name)
	assert.Equal(t, "const ConfigType*", fn.ReturnType)
	assert.Equal(t, models.FunctionTypeAutosarFuncP2Const, fn.FunctionType)
}

func TestParseDeclarationNoMatch(t *testing.T) {
	p := NewAutosarParser()

	assert.Nil(t, p.ParseDeclaration("void Demo_Init(void)", "demo.c", 1))
	assert.Nil(t, p.ParseDeclaration("/* FUNC comment */", "demo.c", 1))
	assert.Nil(t, p.ParseDeclaration("", "demo.c", 1))
}

func TestParseParametersMacros(t *testing.T) {
	p := NewAutosarParser()

	params := p.ParseParameters(
		"VAR(uint32, AUTOMATIC) timerId, " +
			"P2VAR(uint8, AUTOMATIC, APPL_DATA) buffer, " +
			"P2CONST(ConfigType, AUTOMATIC, APPL_CONST) config, " +
			"CONST(uint16, APPL_CONST) limit")
	require.Len(t, params, 4)

	assert.Equal(t, models.Parameter{Name: "timerId", Type: "uint32", MemoryClass: "AUTOMATIC"}, params[0])

	assert.Equal(t, "buffer", params[1].Name)
	assert.True(t, params[1].IsPointer)
	assert.False(t, params[1].IsConst)

	assert.Equal(t, "config", params[2].Name)
	assert.True(t, params[2].IsPointer)
	assert.True(t, params[2].IsConst)

	assert.Equal(t, "limit", params[3].Name)
	assert.False(t, params[3].IsPointer)
	assert.True(t, params[3].IsConst)
}

func TestParseParametersTraditionalFallback(t *testing.T) {
	p := NewAutosarParser()

	params := p.ParseParameters("const uint8* data, uint32 length, sint16")
	require.Len(t, params, 3)

	assert.Equal(t, "data", params[0].Name)
	assert.True(t, params[0].IsPointer)
	assert.True(t, params[0].IsConst)

	assert.Equal(t, "length", params[1].Name)
	assert.Equal(t, "uint32", params[1].Type)

	// Name omitted, type only.
	assert.Equal(t, "", params[2].Name)
	assert.Equal(t, "sint16", params[2].Type)
}

func TestParseParametersVoid(t *testing.T) {
	p := NewAutosarParser()
	assert.Empty(t, p.ParseParameters("void"))
	assert.Empty(t, p.ParseParameters(""))
	assert.Empty(t, p.ParseParameters("   "))
}

func TestExtractParameterText(t *testing.T) {
	content := "FUNC(void, CODE) Demo(VAR(uint8, AUTOMATIC) x) {"
	open := strings.Index(content, "Demo(") + len("Demo")
	text, ok := ExtractParameterText(content, open)
	assert.True(t, ok)
	assert.Equal(t, "VAR(uint8, AUTOMATIC) x", text)

	_, ok = ExtractParameterText("no parens here", 3)
	assert.False(t, ok)

	_, ok = ExtractParameterText("(unbalanced", 0)
	assert.False(t, ok)
}

func TestSplitBalanced(t *testing.T) {
	parts := SplitBalanced("a, b(c, d), e[f, g]", ',')
	require.Len(t, parts, 3)
	assert.Equal(t, "a", parts[0])
	assert.Equal(t, " b(c, d)", parts[1])
	assert.Equal(t, " e[f, g]", parts[2])
}
