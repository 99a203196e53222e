package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calder-io/flume/internal/flume"
)

func fields(defs ...flume.FieldDefinition) *flume.DataSchema {
	return &flume.DataSchema{Fields: defs}
}

func TestCheckExactMatch(t *testing.T) {
	producer := fields(
		flume.FieldDefinition{Name: "title", Type: flume.FieldString},
		flume.FieldDefinition{Name: "count", Type: flume.FieldNumber},
	)
	consumer := fields(
		flume.FieldDefinition{Name: "title", Type: flume.FieldString},
		flume.FieldDefinition{Name: "count", Type: flume.FieldNumber},
	)
	c := Check(producer, consumer)
	require.True(t, c.OK)
	require.Empty(t, c.MissingFields)
	require.Empty(t, c.TypeMismatches)
	require.Empty(t, c.Warnings)
}

func TestCheckNilConsumerAlwaysOK(t *testing.T) {
	c := Check(fields(flume.FieldDefinition{Name: "x", Type: flume.FieldString}), nil)
	require.True(t, c.OK)
}

func TestCheckMissingField(t *testing.T) {
	producer := fields(flume.FieldDefinition{Name: "title", Type: flume.FieldString})
	consumer := fields(
		flume.FieldDefinition{Name: "title", Type: flume.FieldString},
		flume.FieldDefinition{Name: "url", Type: flume.FieldString},
	)
	c := Check(producer, consumer)
	require.False(t, c.OK)
	require.Equal(t, []string{"url"}, c.MissingFields)
}

func TestCheckTypeMismatch(t *testing.T) {
	producer := fields(flume.FieldDefinition{Name: "count", Type: flume.FieldString})
	consumer := fields(flume.FieldDefinition{Name: "count", Type: flume.FieldNumber})
	c := Check(producer, consumer)
	require.False(t, c.OK)
	require.Len(t, c.TypeMismatches, 1)
	require.Equal(t, "count", c.TypeMismatches[0].Field)
}

func TestCheckAssignability(t *testing.T) {
	tests := []struct {
		name     string
		producer flume.FieldDefinition
		consumer flume.FieldDefinition
		ok       bool
	}{
		{
			name:     "json consumes anything",
			producer: flume.FieldDefinition{Name: "f", Type: flume.FieldNumber},
			consumer: flume.FieldDefinition{Name: "f", Type: flume.FieldJSON},
			ok:       true,
		},
		{
			name:     "date assignable to string",
			producer: flume.FieldDefinition{Name: "f", Type: flume.FieldDate},
			consumer: flume.FieldDefinition{Name: "f", Type: flume.FieldString},
			ok:       true,
		},
		{
			name:     "string not assignable to date",
			producer: flume.FieldDefinition{Name: "f", Type: flume.FieldString},
			consumer: flume.FieldDefinition{Name: "f", Type: flume.FieldDate},
			ok:       false,
		},
		{
			name:     "nullable producer rejected by non-nullable consumer of another type",
			producer: flume.FieldDefinition{Name: "f", Type: flume.FieldDate, Nullable: true},
			consumer: flume.FieldDefinition{Name: "f", Type: flume.FieldString},
			ok:       false,
		},
		{
			name:     "nullable producer accepted by nullable consumer",
			producer: flume.FieldDefinition{Name: "f", Type: flume.FieldDate, Nullable: true},
			consumer: flume.FieldDefinition{Name: "f", Type: flume.FieldString, Nullable: true},
			ok:       true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Check(fields(tt.producer), fields(tt.consumer))
			require.Equal(t, tt.ok, c.OK, "mismatches: %v", c.TypeMismatches)
		})
	}
}

func TestCheckWarnsOnUnconsumedFields(t *testing.T) {
	producer := fields(
		flume.FieldDefinition{Name: "title", Type: flume.FieldString},
		flume.FieldDefinition{Name: "extra", Type: flume.FieldString},
	)
	consumer := fields(flume.FieldDefinition{Name: "title", Type: flume.FieldString})
	c := Check(producer, consumer)
	require.True(t, c.OK)
	require.Len(t, c.Warnings, 1)
	require.Contains(t, c.Warnings[0], "extra")
}

func TestProblems(t *testing.T) {
	producer := fields(flume.FieldDefinition{Name: "count", Type: flume.FieldString})
	consumer := fields(
		flume.FieldDefinition{Name: "count", Type: flume.FieldNumber},
		flume.FieldDefinition{Name: "url", Type: flume.FieldString},
	)
	problems := Check(producer, consumer).Problems()
	require.Len(t, problems, 2)
	require.Contains(t, problems[0], `"url"`)
	require.Contains(t, problems[1], `"count"`)
}
