package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Value
	}{
		{name: "string", input: `"28"`, want: "28"},
		{name: "integer", input: `28`, want: "28"},
		{name: "decimal", input: `0.5`, want: "0.5"},
		{name: "negative", input: `-3`, want: "-3"},
		{name: "range text", input: `"1-3"`, want: "1-3"},
		{name: "null", input: `null`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(tt.input), &v))
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestValue_RejectsNonScalars(t *testing.T) {
	for _, input := range []string{`true`, `{"v":1}`, `[1]`} {
		var v Value
		assert.Error(t, json.Unmarshal([]byte(input), &v), input)
	}
}

func TestCurrentConditions_MixedValueKinds(t *testing.T) {
	var c CurrentConditions
	err := json.Unmarshal([]byte(`{"obsTime":"t","text":"晴","temp":28,"feelsLike":"30","cloud":10}`), &c)

	require.NoError(t, err)
	assert.Equal(t, Value("28"), c.Temp)
	assert.Equal(t, Value("30"), c.FeelsLike)
	require.NotNil(t, c.Cloud)
	assert.Equal(t, "10", c.Cloud.String())

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"temp":"28"`)
}
