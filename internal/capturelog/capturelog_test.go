package capturelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YingVictor/ultrasonic-positioning/internal/position"
	"github.com/YingVictor/ultrasonic-positioning/internal/site"
)

func TestWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.upos")
	params := position.DefaultParams()
	params.MaxIterations = 250

	header := Header{
		StartTime: time.Unix(1700000000, 123456789),
		Params:    params,
		Anchor:    &site.Anchor{Latitude: 33.349, Longitude: -111.758, Altitude: 359.8, Heading: 12},
		Device:    "/dev/ttyACM0",
	}
	w, err := Create(path, header)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, w.Header().SessionID)

	start := time.Unix(1700000001, 0)
	var want []Record
	for i := 0; i < 5; i++ {
		rec := Record{
			Time:    start.Add(time.Duration(i) * 500 * time.Millisecond),
			Capture: params.Synthesize(float64(i), -float64(i), 3000),
		}
		require.NoError(t, w.Append(rec))
		want = append(want, rec)
	}
	assert.Equal(t, 5, w.Count())
	require.NoError(t, w.Close())

	got, records, err := ReadFile(path)
	require.NoError(t, err)

	wantHeader := w.Header()
	if diff := cmp.Diff(&wantHeader, got); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	only, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, got.SessionID, only.SessionID)
}

func TestHeaderWithoutAnchor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.upos")
	id := uuid.New()

	w, err := Create(path, Header{SessionID: id, Params: position.DefaultParams()})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	h, records, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, id, h.SessionID)
	assert.Nil(t, h.Anchor)
	assert.Empty(t, records)
	assert.Equal(t, FormatVersion, h.FormatVersion)
	assert.False(t, h.StartTime.IsZero())
}

func TestTruncatedRecordIsDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cut.upos")
	w, err := Create(path, Header{Params: position.DefaultParams()})
	require.NoError(t, err)
	require.NoError(t, w.Append(Record{Time: time.Unix(10, 0), Capture: position.Capture{1, 2, 3, 4}}))
	require.NoError(t, w.Append(Record{Time: time.Unix(11, 0), Capture: position.Capture{5, 6, 7, 8}}))
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-3))

	_, records, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, position.Capture{1, 2, 3, 4}, records[0].Capture)
}

func TestRejectsForeignFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.bin")
	require.NoError(t, os.WriteFile(path, []byte("ARGUS\x01\x00"), 0644))

	_, _, err := ReadFile(path)
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = ReadHeader(filepath.Join(t.TempDir(), "missing.upos"))
	assert.Error(t, err)
}
