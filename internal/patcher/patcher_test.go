package patcher

import (
	"bytes"
	"strings"
	"testing"

	"github.com/plantarium-platform/apisync-go/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiDoc = `openapi: 3.0.0
info:
  title: Customer Service
x-ibm-configuration:
  assembly:
    execute:
      - invoke:
          target-url: https://old.example.com/customers
components:
  schemas:
    CustomerServiceRequest:
      type: object
      properties:
        id:
          type: string
    ErrorResponse:
      type: object
paths: {}
`

var nameSchema = []string{
	"type: object",
	"properties:",
	"  name:",
	"    type: string",
}

func TestFindSection(t *testing.T) {
	p := NewPatcher(DefaultContainer(), MatchFirst)

	section, found := p.FindSection([]byte(apiDoc), "CustomerServiceRequest")

	assert.True(t, found)
	assert.Equal(t, 10, section.Start)
	assert.Equal(t, 15, section.BodyEnd)
	assert.Equal(t, 4, section.Indent)
	assert.Equal(t, 6, section.ChildIndent)

	_, found = p.FindSection([]byte(apiDoc), "OrderRequest")
	assert.False(t, found)
}

func TestReplaceSection_Idempotent(t *testing.T) {
	p := NewPatcher(DefaultContainer(), MatchFirst)

	once, err := p.ReplaceSection([]byte(apiDoc), "CustomerServiceRequest", nameSchema)
	require.NoError(t, err)
	twice, err := p.ReplaceSection(once, "CustomerServiceRequest", nameSchema)
	require.NoError(t, err)

	// Applying the same patch again must not change anything
	assert.Equal(t, string(once), string(twice))

	out := string(once)
	assert.Contains(t, out, "    CustomerServiceRequest:\n      type: object\n      properties:\n        name:\n          type: string\n    ErrorResponse:\n")
	assert.NotContains(t, out, "id:")

	// Everything before the section is untouched
	prefix := apiDoc[:strings.Index(apiDoc, "    CustomerServiceRequest:")]
	assert.True(t, strings.HasPrefix(out, prefix))
	assert.True(t, strings.HasSuffix(out, "    ErrorResponse:\n      type: object\npaths: {}\n"))
}

func TestReplaceSection_Missing(t *testing.T) {
	p := NewPatcher(DefaultContainer(), MatchFirst)

	out, err := p.ReplaceSection([]byte(apiDoc), "OrderRequest", nameSchema)

	assert.ErrorIs(t, err, ErrSectionNotFound)
	assert.Equal(t, apiDoc, string(out))
}

func TestReplaceSection_VerifyFailureKeepsInput(t *testing.T) {
	doc := "x-examples:\n  FooRequest:\n    type: string\n"
	p := NewPatcher(DefaultContainer(), MatchFirst)

	out, err := p.ReplaceSection([]byte(doc), "FooRequest", []string{"type: integer"})

	assert.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeValidation))
	assert.Equal(t, doc, string(out))
}

func TestReplaceSection_MatchPolicy(t *testing.T) {
	doc := `components:
  schemas:
    FooRequest:
      type: string
x-examples:
  FooRequest:
    type: string
`
	first := NewPatcher(DefaultContainer(), MatchFirst)
	out, err := first.ReplaceSection([]byte(doc), "FooRequest", []string{"type: integer"})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(out), "type: integer"))
	assert.Contains(t, string(out), "  FooRequest:\n    type: string\n")

	all := NewPatcher(DefaultContainer(), MatchAll)
	out, err = all.ReplaceSection([]byte(doc), "FooRequest", []string{"type: integer"})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(out), "type: integer"))
	assert.NotContains(t, string(out), "type: string")
}

func TestInsertRemove_RoundTrip(t *testing.T) {
	cases := map[string]string{
		"subsection exists": `openapi: 3.0.0
components:
  schemas:
    ErrorResponse:
      type: object
paths: {}
`,
		"subsection missing": `openapi: 3.0.0
components:
  securitySchemes:
    basic:
      type: http
paths: {}
`,
		"container missing": `openapi: 3.0.0
info:
  title: Customer Service
`,
		"empty inline container":  "openapi: 3.0.0\ncomponents:\n  schemas: {}\n",
		"empty block container":   "openapi: 3.0.0\ncomponents:\n  schemas:\nx: 1\n",
		"no final newline":        "openapi: 3.0.0\ninfo:\n  title: x",
		"empty inline parent":     "openapi: 3.0.0\ncomponents: {}\npaths: {}\n",
		"inline container no eol": "openapi: 3.0.0\ncomponents:\n  schemas: {}",
	}

	p := NewPatcher(DefaultContainer(), MatchFirst)
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			inserted, err := p.InsertSection([]byte(doc), "CustomerServiceRequest", nameSchema)
			require.NoError(t, err)
			assert.NoError(t, p.Verify(inserted, "CustomerServiceRequest"))

			var removed bytes.Buffer
			restored, err := p.RemoveSection(inserted, "CustomerServiceRequest", &removed)
			require.NoError(t, err)

			// Insert followed by remove restores the exact input
			assert.Equal(t, doc, string(restored))
			assert.True(t, strings.HasPrefix(strings.TrimLeft(removed.String(), " "), "CustomerServiceRequest:\n"))
		})
	}
}

func TestInsertSection_FirstChild(t *testing.T) {
	doc := `components:
  schemas:
    ErrorResponse:
      type: object
`
	p := NewPatcher(DefaultContainer(), MatchFirst)

	out, err := p.InsertSection([]byte(doc), "FooRequest", []string{"type: object"})

	require.NoError(t, err)
	assert.Equal(t, `components:
  schemas:
    FooRequest:
      type: object
    ErrorResponse:
      type: object
`, string(out))
}

func TestInsertSection_EmptyInlineContainer(t *testing.T) {
	doc := "components:\n  schemas: {}\n"
	p := NewPatcher(DefaultContainer(), MatchFirst)

	out, err := p.InsertSection([]byte(doc), "FooRequest", []string{"type: object"})

	require.NoError(t, err)
	assert.Equal(t, "components:\n  schemas:\n    FooRequest:\n      type: object\n", string(out))
}

func TestInsertSection_AlreadyPresent(t *testing.T) {
	p := NewPatcher(DefaultContainer(), MatchFirst)

	out, err := p.InsertSection([]byte(apiDoc), "CustomerServiceRequest", nameSchema)

	assert.ErrorIs(t, err, ErrSectionExists)
	assert.Equal(t, apiDoc, string(out))
}

func TestRemoveSection_WritesSink(t *testing.T) {
	p := NewPatcher(DefaultContainer(), MatchFirst)
	var removed bytes.Buffer

	out, err := p.RemoveSection([]byte(apiDoc), "CustomerServiceRequest", &removed)

	require.NoError(t, err)
	assert.Equal(t, "    CustomerServiceRequest:\n      type: object\n      properties:\n        id:\n          type: string\n", removed.String())
	assert.NotContains(t, string(out), "CustomerServiceRequest")
	// The container still holds ErrorResponse, so it is kept
	assert.Contains(t, string(out), "components:\n  schemas:\n    ErrorResponse:\n")
}

func TestRemoveSection_KeepsExistingContainers(t *testing.T) {
	doc := `openapi: 3.0.0
components:
  schemas:
    CustomerServiceRequest:
      type: object
paths: {}
`
	p := NewPatcher(DefaultContainer(), MatchFirst)

	out, err := p.RemoveSection([]byte(doc), "CustomerServiceRequest", nil)

	// Only the subsection goes, the containers were already in the document
	require.NoError(t, err)
	assert.Equal(t, "openapi: 3.0.0\ncomponents:\n  schemas:\npaths: {}\n", string(out))
}

func TestRemoveSection_AfterLaterEditKeepsUsedContainer(t *testing.T) {
	doc := "openapi: 3.0.0\ninfo:\n  title: x\n"
	p := NewPatcher(DefaultContainer(), MatchFirst)

	inserted, err := p.InsertSection([]byte(doc), "FooRequest", []string{"type: object"})
	require.NoError(t, err)
	inserted, err = p.InsertSection(inserted, "BarRequest", []string{"type: string"})
	require.NoError(t, err)

	out, err := p.RemoveSection(inserted, "FooRequest", nil)

	// BarRequest still lives in the created container, so it stays
	require.NoError(t, err)
	assert.Equal(t, "openapi: 3.0.0\ninfo:\n  title: x\ncomponents:\n  schemas:\n    BarRequest:\n      type: string\n", string(out))
}

func TestRemoveSection_MissingKeyIsByteIdentical(t *testing.T) {
	p := NewPatcher(DefaultContainer(), MatchFirst)
	var removed bytes.Buffer

	out, err := p.RemoveSection([]byte(apiDoc), "OrderRequest", &removed)

	assert.ErrorIs(t, err, ErrSectionNotFound)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
	assert.Equal(t, apiDoc, string(out))
	assert.Empty(t, removed.String())
}

func TestVerify(t *testing.T) {
	p := NewPatcher(DefaultContainer(), MatchFirst)

	assert.NoError(t, p.Verify([]byte(apiDoc), "CustomerServiceRequest"))

	err := p.Verify([]byte(apiDoc), "OrderRequest")
	assert.True(t, models.HasCode(err, models.CodeValidation))

	err = p.Verify([]byte("info:\n  title: x\n"), "FooRequest")
	assert.True(t, models.HasCode(err, models.CodeValidation))

	duplicated := "components:\n  schemas:\n    FooRequest:\n      type: object\n    FooRequest:\n      type: string\n"
	assert.Error(t, p.Verify([]byte(duplicated), "FooRequest"))
}

func TestParseMatchPolicy(t *testing.T) {
	policy, err := ParseMatchPolicy("")
	assert.NoError(t, err)
	assert.Equal(t, MatchFirst, policy)

	policy, err = ParseMatchPolicy("ALL")
	assert.NoError(t, err)
	assert.Equal(t, MatchAll, policy)

	_, err = ParseMatchPolicy("some")
	assert.Error(t, err)
}

func TestParseContainer(t *testing.T) {
	assert.Equal(t, []string{"components", "schemas"}, ParseContainer("components.schemas"))
	assert.Equal(t, []string{"definitions"}, ParseContainer(" definitions "))
	assert.Equal(t, DefaultContainer(), ParseContainer(""))
}
