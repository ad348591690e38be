package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openelectricity/emissionfeed/internal/models"
)

func TestAppendLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "feed.jsonl")

	l, err := OpenAppendLog(path)
	require.NoError(t, err)

	require.NoError(t, l.Append(models.RawRecord{"facility_id": "F1", "power_mw": 5.0}))
	require.NoError(t, l.Append(models.RawRecord{"facility_id": "F2", "power_mw": 3.0}))
	require.NoError(t, l.Close())

	raws, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, raws, 2)

	// order of lines is order of receipt
	assert.Equal(t, "F1", raws[0]["facility_id"])
	assert.Equal(t, "F2", raws[1]["facility_id"])
	assert.Equal(t, 5.0, raws[0]["power_mw"])
}

func TestReadRecordsSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.jsonl")
	content := `{"facility_id":"F1"}
not json at all
[1,2,3]
"just a string"

{"facility_id":"F2"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	raws, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, "F1", raws[0]["facility_id"])
	assert.Equal(t, "F2", raws[1]["facility_id"])
}

func TestMirrorCoords(t *testing.T) {
	raw := models.RawRecord{"lat": 10.0, "lon": 50.0}
	MirrorCoords(raw)
	assert.Equal(t, 10.0, raw["latitude"])
	assert.Equal(t, 50.0, raw["longitude"])

	// existing canonical names are left alone
	raw = models.RawRecord{"lat": 1.0, "latitude": 2.0}
	MirrorCoords(raw)
	assert.Equal(t, 2.0, raw["latitude"])
}

func TestChangeToken(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.jsonl")
	assert.Equal(t, int64(0), ChangeToken(missing))

	path := filepath.Join(dir, "feed.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	tok := ChangeToken(path)
	assert.NotEqual(t, int64(0), tok)

	// first existing path wins
	assert.Equal(t, tok, ChangeToken(missing, path))

	// a later write moves the token
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
	assert.NotEqual(t, tok, ChangeToken(path))
}
