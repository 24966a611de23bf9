package cohort

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `entity_id,program_type,category,elapsed_units,stage,engagement_flag
S1,Bootcamp,Tech,14,None,0
S2,Degree,Finance,3,Applying,1
`

func TestReadCSV(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())

	assert.Equal(t, []string{"entity_id", "program_type", "category", "elapsed_units", "stage", "engagement_flag"}, tbl.Columns)

	s1 := tbl.Entities[0]
	assert.Equal(t, "S1", s1.ID)
	assert.Equal(t, "Tech", s1.Category)
	assert.Equal(t, 14, s1.ElapsedUnits)
	assert.Equal(t, StageNone, s1.Stage)
	assert.False(t, s1.Engaged)
	assert.Equal(t, "Bootcamp", s1.Extra["program_type"])

	assert.True(t, tbl.Entities[1].Engaged)
}

func TestReadCSV_MissingColumns(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("entity_id,category,elapsed_units\nS1,Tech,3\n"))
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"stage", "engagement_flag"}, se.Columns)
}

func TestReadCSV_Empty(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no bytes", ""},
		{"header only", "entity_id,category,elapsed_units,stage,engagement_flag\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			var ie *InputError
			require.ErrorAs(t, err, &ie)
		})
	}
}

func TestReadCSV_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{"unknown stage", "S1,Tech,4,Hired,0"},
		{"flag out of range", "S1,Tech,4,None,2"},
		{"boolean flag", "S1,Tech,4,None,true"},
		{"negative units", "S1,Tech,-1,None,0"},
		{"non-integer units", "S1,Tech,four,None,0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := "entity_id,category,elapsed_units,stage,engagement_flag\n" + tt.row + "\n"
			_, err := ReadCSV(strings.NewReader(in))
			var ce *CoercionError
			require.ErrorAs(t, err, &ce)
		})
	}
}

func TestParseFlag(t *testing.T) {
	for raw, want := range map[string]bool{"0": false, "1": true, " 1 ": true} {
		got, err := ParseFlag(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	for _, raw := range []string{"t", "TRUE", "False", "2", "-1", "01", ""} {
		_, err := ParseFlag(raw)
		var ce *CoercionError
		require.ErrorAs(t, err, &ce, raw)
		assert.Equal(t, ColEngagement, ce.Column)
	}
}

func TestReadCSV_DuplicateID(t *testing.T) {
	in := "entity_id,category,elapsed_units,stage,engagement_flag\nS1,Tech,4,None,0\nS1,Tech,5,None,0\n"
	_, err := ReadCSV(strings.NewReader(in))
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, err.Error(), `duplicate entity_id "S1"`)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.csv"))
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWriteCSV_PreservesColumnsAndFlags(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	assert.Equal(t, sampleCSV, buf.String())
}

func TestEntitySet(t *testing.T) {
	e := Entity{ID: "S1", Stage: StageNone}

	require.NoError(t, e.Set(ColStage, " Interviewing "))
	assert.Equal(t, StageInterviewing, e.Stage)

	require.NoError(t, e.Set(ColEngagement, "1"))
	assert.True(t, e.Engaged)

	require.NoError(t, e.Set("notes", "called twice"))
	assert.Equal(t, "called twice", e.Get("notes"))

	var ce *CoercionError
	require.ErrorAs(t, e.Set(ColEntityID, "S2"), &ce)
	assert.Equal(t, "S1", e.ID)

	require.ErrorAs(t, e.Set(ColStage, "Hired"), &ce)
	assert.Equal(t, StageInterviewing, e.Stage, "failed coercion must not change the value")
}

func TestTableClone_IsDeep(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	cp := tbl.Clone()
	cp.Entities[0].Stage = StageOffer
	cp.Entities[0].Extra["program_type"] = "Changed"
	cp.Columns[0] = "id"

	assert.Equal(t, StageNone, tbl.Entities[0].Stage)
	assert.Equal(t, "Bootcamp", tbl.Entities[0].Extra["program_type"])
	assert.Equal(t, ColEntityID, tbl.Columns[0])
}

func TestStageHelpers(t *testing.T) {
	assert.Equal(t, []Stage{StageNone, StageApplying, StageInterviewing, StageOffer}, Stages())
	assert.True(t, StageOffer.Terminal())
	assert.False(t, StageInterviewing.Terminal())
	assert.False(t, Stage("Hired").Valid())
}
