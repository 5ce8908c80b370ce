package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestParseText(t *testing.T) {
	out, _, err := runCommand(t, "", "parse", "id, title, acf.limit(10){id,title,acf{id}}")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "parse_text", []byte(out))
}

func TestParseEmpty(t *testing.T) {
	out, _, err := runCommand(t, "", "parse", " , ")
	require.NoError(t, err)
	assert.Equal(t, "empty selection\n", out)
}

func TestParseJSON(t *testing.T) {
	out, _, err := runCommand(t, "", "--format", "json", "parse", "acf.limit(2){id}")
	require.NoError(t, err)

	var got struct {
		Canonical string `json:"canonical"`
		Empty     bool   `json:"empty"`
		Tree      struct {
			Fields []struct {
				Name      string `json:"name"`
				Modifiers []struct {
					Name  string `json:"name"`
					Value any    `json:"value"`
				} `json:"modifiers"`
				Fields []struct {
					Name string `json:"name"`
				} `json:"fields"`
			} `json:"fields"`
		} `json:"tree"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "acf.limit(2){id}", got.Canonical)
	assert.False(t, got.Empty)
	require.Len(t, got.Tree.Fields, 1)
	assert.Equal(t, "acf", got.Tree.Fields[0].Name)
	require.Len(t, got.Tree.Fields[0].Modifiers, 1)
	assert.Equal(t, "limit", got.Tree.Fields[0].Modifiers[0].Name)
	assert.Equal(t, "2", got.Tree.Fields[0].Modifiers[0].Value)
	require.Len(t, got.Tree.Fields[0].Fields, 1)
	assert.Equal(t, "id", got.Tree.Fields[0].Fields[0].Name)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := runCommand(t, "", "--format", "xml", "parse", "id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

const postsJSON = `{"data":[{"id":1,"title":{"rendered":"One"},"acf":{"limit":[1,2,3],"x":1}},{"id":2,"title":{"rendered":"Two"},"content":"y"}],"total":2}`

func TestFilterStdinIndented(t *testing.T) {
	out, errOut, err := runCommand(t, postsJSON,
		"filter", "-s", "id,acf{limit.limit(2)}", "--payload-path", "$.data", "--each-item", "--indent", "  ")
	require.NoError(t, err)
	assert.Empty(t, errOut)
	newGoldie(t).Assert(t, "filter_each_item", []byte(out))
}

func TestFilterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "post.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":7,"title":"t","content":"c"}`), 0o600))

	out, _, err := runCommand(t, "", "filter", "-f", path, "-s", "title")
	require.NoError(t, err)
	assert.Equal(t, "{\"title\":\"t\"}\n", out)
}

func TestFilterNotApplied(t *testing.T) {
	out, errOut, err := runCommand(t, `{"id":1}`, "filter")
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":1}\n", out)
	assert.Equal(t, "not filtered: reason=empty_selection\n", errOut)
}

func TestFilterErrors(t *testing.T) {
	_, _, err := runCommand(t, `{"id":`, "filter", "-s", "id")
	require.Error(t, err)

	_, _, err = runCommand(t, `{}`, "filter", "-s", "id", "--payload-path", "data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--payload-path")

	_, _, err = runCommand(t, "", "filter", "-f", filepath.Join(t.TempDir(), "missing.json"), "-s", "id")
	require.Error(t, err)
}

func writeTestConfig(t *testing.T, rules string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	rulesPath := ""
	cfg := "upstream:\n  base_url: http://wp.local\n"
	if rules != "" {
		rulesPath = filepath.Join(dir, "rules.yaml")
		require.NoError(t, os.WriteFile(rulesPath, []byte(rules), 0o600))
		cfg += "filter:\n  rules_file: " + rulesPath + "\n"
	}
	cfgPath := filepath.Join(dir, "fieldproxy.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath, rulesPath
}

func TestValidate(t *testing.T) {
	cfgPath, rulesPath := writeTestConfig(t, "rules:\n  - name: posts\n    path: /wp/v2/posts/**\n")

	out, _, err := runCommand(t, "", "validate", "-c", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "config ok: "+cfgPath+"\nrules ok: "+rulesPath+" (1 rules)\n", out)

	out, _, err = runCommand(t, "", "--format", "json", "validate", "-c", cfgPath)
	require.NoError(t, err)
	var res validateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, validateResult{Valid: true, Config: cfgPath, RulesFile: rulesPath, Rules: 1}, res)
}

func TestValidateWithoutRules(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "")
	out, _, err := runCommand(t, "", "validate", "-c", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "config ok: "+cfgPath+"\nrules: none\n", out)
}

func TestValidateErrors(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "rules:\n  - name: bad\n    path: nope\n")
	_, _, err := runCommand(t, "", "validate", "-c", cfgPath)
	require.Error(t, err)

	_, _, err = runCommand(t, "", "validate", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestTUIRequiresFile(t *testing.T) {
	_, _, err := runCommand(t, "", "tui")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, _, err := runCommand(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "fieldproxy "), out)
}
