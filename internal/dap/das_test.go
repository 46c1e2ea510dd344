package dap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDAS = `Attributes {
    time {
        String units "days since 1970-01-01";
        Float64 _FillValue -999.0;
        Int32 valid_range 0, 40;
    }
    NC_GLOBAL {
        String id "SAEON.EGAGASINI.2017";
        String title "Sea surface \"temperature\"";
        String keywords "ocean, temperature ,sst";
        Float64 geospatial_lat_min -34.5;
        Float32 geospatial_lon_min 18.25;
        Url infoUrl "http://www.saeon.ac.za/";
        # comment line
        DODS_EXTRA {
            String Unlimited_Dimension "time";
        }
    }
}
`

func TestParse(t *testing.T) {
	das, err := Parse(sampleDAS)
	require.NoError(t, err)

	nc, ok := das.Container("NC_GLOBAL")
	require.True(t, ok)

	id, ok := nc.String("id")
	require.True(t, ok)
	assert.Equal(t, "SAEON.EGAGASINI.2017", id)

	title, _ := nc.String("title")
	assert.Equal(t, `Sea surface "temperature"`, title)

	assert.Equal(t, -34.5, nc["geospatial_lat_min"])
	assert.Equal(t, 18.25, nc["geospatial_lon_min"])
	assert.Equal(t, "http://www.saeon.ac.za/", nc["infoUrl"])

	extra, ok := nc.Container("DODS_EXTRA")
	require.True(t, ok)
	assert.Equal(t, "time", extra["Unlimited_Dimension"])

	tm, ok := das.Container("time")
	require.True(t, ok)
	assert.Equal(t, []any{int64(0), int64(40)}, tm["valid_range"])
	assert.Equal(t, -999.0, tm["_FillValue"])
}

func TestParse_Empty(t *testing.T) {
	das, err := Parse("Attributes {\n}\n")
	require.NoError(t, err)
	assert.Empty(t, das)
}

func TestParse_SpecialFloats(t *testing.T) {
	das, err := Parse(`Attributes { v { Float32 missing NaN; } }`)
	require.NoError(t, err)
	v, _ := das.Container("v")
	f, ok := v["missing"].(float64)
	require.True(t, ok)
	assert.True(t, f != f)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"not das", "<html><body>Not found</body></html>", "expected 'Attributes'"},
		{"unterminated container", "Attributes { NC_GLOBAL { String a \"b\";", "unexpected end of input"},
		{"missing semicolon", "Attributes { NC_GLOBAL { String a \"b\" } }", "expected ',' or ';'"},
		{"unterminated string", "Attributes { NC_GLOBAL { String a \"b; } }", "unterminated string"},
		{"bad int", "Attributes { v { Int32 n abc; } }", "invalid Int32 value"},
		{"trailing", "Attributes { } extra", "after closing brace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_LineNumbers(t *testing.T) {
	_, err := Parse("Attributes {\n  v {\n    Int32 n abc;\n  }\n}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}
