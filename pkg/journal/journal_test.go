// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package journal

import (
	"encoding/csv"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndIter(t *testing.T) {
	fs := afero.NewMemMapFs()
	j, err := Open(fs, "spool", "sess-1")
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(map[string]interface{}{"speed_ms": 10.5, "message_id": 1}))
	require.NoError(t, j.Append(map[string]interface{}{"speed_ms": 11.0, "message_id": 2}))
	assert.Equal(t, int64(2), j.Appended())

	var got []map[string]interface{}
	require.NoError(t, j.Iter(func(r map[string]interface{}) error {
		got = append(got, r)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, 10.5, got[0]["speed_ms"])
	assert.Equal(t, float64(2), got[1]["message_id"])
}

func TestIterSkipsMalformedLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	j, err := Open(fs, "spool", "sess-1")
	require.NoError(t, err)

	require.NoError(t, j.Append(map[string]interface{}{"message_id": 1}))
	require.NoError(t, j.Close())

	f, err := fs.OpenFile(j.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	j2, err := Open(fs, "spool", "sess-1")
	require.NoError(t, err)
	defer j2.Close()
	require.NoError(t, j2.Append(map[string]interface{}{"message_id": 2}))

	var ids []float64
	require.NoError(t, j2.Iter(func(r map[string]interface{}) error {
		ids = append(ids, r["message_id"].(float64))
		return nil
	}))
	assert.Equal(t, []float64{1, 2}, ids)
}

func TestReopenAppends(t *testing.T) {
	fs := afero.NewMemMapFs()
	j, err := Open(fs, "spool", "sess-1")
	require.NoError(t, err)
	require.NoError(t, j.Append(map[string]interface{}{"message_id": 1}))
	require.NoError(t, j.Close())

	j2, err := Open(fs, "spool", "sess-1")
	require.NoError(t, err)
	defer j2.Close()
	require.NoError(t, j2.Append(map[string]interface{}{"message_id": 2}))

	count := 0
	require.NoError(t, j2.Iter(func(map[string]interface{}) error {
		count++
		return nil
	}))
	assert.Equal(t, 2, count)
}

func TestExportCSV(t *testing.T) {
	fs := afero.NewMemMapFs()
	j, err := Open(fs, "spool", "sess-1")
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(map[string]interface{}{
		"session_id": "sess-1", "speed_ms": 10.5, "message_id": 1,
	}))
	require.NoError(t, j.Append(map[string]interface{}{
		"session_id": "sess-1", "voltage_v": 48.0,
	}))

	rows, err := j.ExportCSV("export/out.csv", []string{"session_id", "speed_ms", "voltage_v", "message_id"})
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	raw, err := afero.ReadFile(fs, "export/out.csv")
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(raw))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"session_id", "speed_ms", "voltage_v", "message_id"}, records[0])
	assert.Equal(t, []string{"sess-1", "10.5", "", "1"}, records[1])
	assert.Equal(t, []string{"sess-1", "", "48", ""}, records[2])
}

func TestLargeSessionRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	j, err := Open(fs, "spool", "sess-big")
	require.NoError(t, err)
	defer j.Close()

	const n = 1000
	for i := 0; i < n; i++ {
		require.NoError(t, j.Append(map[string]interface{}{
			"session_id": "sess-big",
			"message_id": i + 1,
			"speed_ms":   float64(i) * 0.01,
		}))
	}
	require.Equal(t, int64(n), j.Appended())

	seen := 0
	require.NoError(t, j.Iter(func(r map[string]interface{}) error {
		seen++
		require.Equal(t, float64(seen), r["message_id"])
		return nil
	}))
	assert.Equal(t, n, seen)

	rows, err := j.ExportCSV("export/big.csv", []string{"session_id", "message_id", "speed_ms"})
	require.NoError(t, err)
	assert.Equal(t, n, rows)

	raw, err := afero.ReadFile(fs, "export/big.csv")
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(raw))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, n+1)
	assert.Equal(t, []string{"sess-big", "1000", "9.99"}, records[n])
}

func TestAppendAfterCloseFails(t *testing.T) {
	fs := afero.NewMemMapFs()
	j, err := Open(fs, "spool", "sess-1")
	require.NoError(t, err)
	require.NoError(t, j.Close())
	assert.Error(t, j.Append(map[string]interface{}{"message_id": 1}))
	assert.NoError(t, j.Close())
}
