package serde

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDB(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		serde Serde
		in    any
		want  any
	}{
		{"string", String, "a1", "a1"},
		{"string bytes", String, []byte("a1"), "a1"},
		{"int64", Int64, int64(7), int64(7)},
		{"int64 bytes", Int64, []byte("42"), int64(42)},
		{"int", Int, int64(3), 3},
		{"id", ID, int64(9), int64(9)},
		{"float", Float64, 1.5, 1.5},
		{"float bytes", Float64, []byte("2.25"), 2.25},
		{"bool int", Bool, int64(1), true},
		{"bool bytes", Bool, []byte("false"), false},
		{"time", Time, ts, ts},
		{"nil", String, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.serde.FromDB(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToDB(t *testing.T) {
	got, err := Int.ToDB(5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)

	got, err = String.ToDB("x")
	require.NoError(t, err)
	assert.Equal(t, "x", got)

	got, err = Bool.ToDB(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	local := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	got, err = Time.ToDB(local)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.(time.Time).Location())
	assert.True(t, local.Equal(got.(time.Time)))

	_, err = Int64.ToDB("not a number")
	assert.Error(t, err)
}

func TestMsgpack(t *testing.T) {
	type settings struct {
		Theme string
		Tags  []string
	}
	s := Msgpack[settings]()
	in := settings{Theme: "dark", Tags: []string{"a", "b"}}

	b, err := s.ToDB(in)
	require.NoError(t, err)
	require.IsType(t, []byte{}, b)

	out, err := s.FromDB(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = s.ToDB("wrong type")
	assert.Error(t, err)
	_, err = s.FromDB(42)
	assert.Error(t, err)
}
