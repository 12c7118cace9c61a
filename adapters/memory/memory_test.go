package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ideamans/go-sheetsync"
	"github.com/ideamans/go-sheetsync/internal/sinktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_ReadAll(t *testing.T) {
	s := New([]string{"id", "name"}, []string{"1", "a"}, []string{"", ""}, []string{"3"})

	header, rows, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Index)
	assert.Equal(t, 4, rows[1].Index)
	assert.Equal(t, map[string]string{"id": "3", "name": ""}, rows[1].Values)
}

func TestSink_EmptyReadAll(t *testing.T) {
	header, rows, err := New(nil).ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, header)
	assert.Empty(t, rows)
}

func TestSink_Writes(t *testing.T) {
	ctx := context.Background()
	s := New([]string{"id", "v"}, []string{"1", "a"}, []string{"2", "b"}, []string{"3", "c"})

	require.NoError(t, s.AppendRows(ctx, [][]interface{}{{4, true}}))
	require.NoError(t, s.BatchUpdate(ctx, []sheetsync.RowValues{{Row: 2, Values: []interface{}{"1", "z"}}}))
	require.NoError(t, s.DeleteRows(ctx, []int{4, 3}))

	assert.Equal(t, [][]string{{"id", "v"}, {"1", "z"}, {"4", "TRUE"}}, s.Grid())
	assert.Error(t, s.BatchUpdate(ctx, []sheetsync.RowValues{{Row: 1}}))
	assert.Error(t, s.DeleteRows(ctx, []int{10}))

	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, s.Grid())
}

func TestSink_TableAppend(t *testing.T) {
	s := New([]string{"id", "v"}, []string{"1", "a"}, []string{}, []string{"2", "b"}).TableAppend()

	require.NoError(t, s.AppendRows(context.Background(), [][]interface{}{{3, "c"}, {4, "d"}}))
	assert.Equal(t, [][]string{
		{"id", "v"}, {"1", "a"}, {"3", "c"}, {"4", "d"}, {}, {"2", "b"},
	}, s.Grid())

	_, rows, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, 6, rows[3].Index)
}

func TestSink_FailOn(t *testing.T) {
	s := New(nil)
	boom := errors.New("boom")
	s.FailOn("AppendRows", boom)

	err := s.AppendRows(context.Background(), [][]interface{}{{"x"}})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.Calls("AppendRows"))
	// the lock is released after a failed call
	require.NoError(t, s.Clear(context.Background()))
}

func TestSink_Contract(t *testing.T) {
	sinktest.Run(t, New(nil))
}
