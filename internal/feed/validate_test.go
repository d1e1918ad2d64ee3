package feed

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confsched/internal/apperr"
)

func issuePaths(err error) []string {
	var out []string
	for _, is := range apperr.IssuesOf(err) {
		out = append(out, is.Path)
	}
	return out
}

func TestValidateAcceptsMinimalFeed(t *testing.T) {
	doc := mustDecode(t, `{"schedule":{"conference":{}}}`)
	assert.NoError(t, Validate(doc))

	doc = mustDecode(t, `{"schedule":{"conference":{"title":"x","days":[
		{"index":"0","date":null,"rooms":{"A":[{"title":"t","id":3,"date":null,"persons":[]}]}}
	]}},"extra":true}`)
	assert.NoError(t, Validate(doc))
}

func TestValidateReportsEveryIssue(t *testing.T) {
	doc := mustDecode(t, `{"schedule":{"conference":{"title":5,"days":[
		{"date":7,"rooms":{
			"B":[{"title":1},{"title":"ok","guid":9,"persons":"Ada"}],
			"A":"nope"
		}},
		"not a day"
	]}}}`)

	err := Validate(doc)
	require.Error(t, err)
	assert.Equal(t, apperr.KindSchemaValidation, apperr.KindOf(err))
	assert.Equal(t, []string{
		"schedule.conference.days.0.date",
		"schedule.conference.days.0.rooms.A",
		"schedule.conference.days.0.rooms.B.0.title",
		"schedule.conference.days.0.rooms.B.1.guid",
		"schedule.conference.days.0.rooms.B.1.persons",
		"schedule.conference.days.1",
		"schedule.conference.title",
	}, issuePaths(err))

	msgs := map[string]string{}
	for _, is := range apperr.IssuesOf(err) {
		msgs[is.Path] = is.Message
	}
	assert.Equal(t, "expected string | null, received number", msgs["schedule.conference.days.0.date"])
	assert.Equal(t, "expected array, received string", msgs["schedule.conference.days.0.rooms.A"])
	assert.Equal(t, "expected object, received string", msgs["schedule.conference.days.1"])
	assert.Equal(t, "expected string, received number", msgs["schedule.conference.title"])
}

func TestValidateIssuesSortNumerically(t *testing.T) {
	days := make([]string, 12)
	for i := range days {
		days[i] = `{"date":1}`
	}
	err := Validate(mustDecode(t, `{"schedule":{"conference":{"days":[`+strings.Join(days, ",")+`]}}}`))
	paths := issuePaths(err)
	require.Len(t, paths, 12)
	assert.Equal(t, "schedule.conference.days.2.date", paths[2])
	assert.Equal(t, "schedule.conference.days.10.date", paths[10])
}

func TestValidateMissingWrappers(t *testing.T) {
	err := Validate(mustDecode(t, `{"conference":{}}`))
	assert.Equal(t, []string{"schedule"}, issuePaths(err))

	err = Validate(mustDecode(t, `{"schedule":{"conference":[]}}`))
	require.Len(t, apperr.IssuesOf(err), 1)
	assert.Equal(t, "expected object, received array", apperr.IssuesOf(err)[0].Message)

	err = Validate(mustDecode(t, `[]`))
	assert.Equal(t, []string{"$"}, issuePaths(err))
}

func TestValidateMissingTitleIsRequired(t *testing.T) {
	err := Validate(mustDecode(t, `{"schedule":{"conference":{"days":[{"rooms":{"A":[{"start":"10:00"}]}}]}}}`))
	require.Len(t, apperr.IssuesOf(err), 1)
	assert.Equal(t, "schedule.conference.days.0.rooms.A.0.title: required", apperr.IssuesOf(err)[0].String())
}

func TestDecodeKeepsKeyOrder(t *testing.T) {
	doc := mustDecode(t, `{"b":1,"a/x":{"z":1,"y":2,"z":3},"c":[{"k":1}]}`)

	assert.Equal(t, []string{"b", "a/x", "c"}, doc.keys(""))
	assert.Equal(t, []string{"z", "y"}, doc.keys("/a~1x"))
	assert.Equal(t, []string{"k"}, doc.keys("/c/0"))

	inner := doc.tree.(map[string]any)["a/x"].(map[string]any)
	assert.Equal(t, json.Number("3"), inner["z"])
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{"schedule":`))
	require.Error(t, err)
	assert.Equal(t, apperr.KindSchemaValidation, apperr.KindOf(err))
	assert.Equal(t, []string{"$"}, issuePaths(err))
}
