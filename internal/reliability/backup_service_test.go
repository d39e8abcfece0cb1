package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/metrics-updater/internal/database"
)

type memoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	deleteErr map[string]error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, deleteErr: map[string]error{}}
}

func (m *memoryStore) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) List(ctx context.Context, prefix string) ([]types.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Object
	for key, data := range m.objects {
		out = append(out, types.Object{Key: aws.String(key), Size: aws.Int64(int64(len(data)))})
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].Key < *out[j].Key })
	return out, nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[key]; err != nil {
		return err
	}
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func newHistoryDB(t *testing.T, dir string) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, "history.db"),
		Profile: database.ProfileHistory,
		Name:    database.NameHistory,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	_, err = db.Conn().Exec(`INSERT INTO runs (id, outcome, started_at, finished_at) VALUES ('r1', 'completed', 1, 2)`)
	require.NoError(t, err)
	return db
}

func readArchive(t *testing.T, path string) map[string][]byte {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	files := map[string][]byte{}
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[hdr.Name] = data
	}
	return files
}

func TestCreateArchive(t *testing.T) {
	dataDir := t.TempDir()
	db := newHistoryDB(t, dataDir)

	svc := NewBackupService(map[string]*database.DB{database.NameHistory: db}, nil, dataDir, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 14, 30, 22, 0, time.Local) }

	outDir := filepath.Join(t.TempDir(), "out")
	path, metadata, err := svc.CreateArchive(context.Background(), outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "metrics-updater-backup-2024-03-01-143022.tar.gz"), path)

	files := readArchive(t, path)
	require.Contains(t, files, "history.db")
	require.Contains(t, files, "backup-metadata.json")

	var onDisk BackupMetadata
	require.NoError(t, json.Unmarshal(files["backup-metadata.json"], &onDisk))
	require.Len(t, onDisk.Databases, 1)
	assert.Equal(t, "history", onDisk.Databases[0].Name)
	assert.Equal(t, metadata.Databases[0].Checksum, onDisk.Databases[0].Checksum)
	assert.Equal(t, fmt.Sprintf("sha256:%x", sha256.Sum256(files["history.db"])), onDisk.Databases[0].Checksum)
	assert.Equal(t, int64(len(files["history.db"])), onDisk.Databases[0].SizeBytes)

	// Staging directories are cleaned up
	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "backup-staging-")
	}
}

func TestCreateAndUploadBackup(t *testing.T) {
	dataDir := t.TempDir()
	db := newHistoryDB(t, dataDir)
	store := newMemoryStore()

	svc := NewBackupService(map[string]*database.DB{database.NameHistory: db}, store, dataDir, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 14, 30, 22, 0, time.Local) }

	require.NoError(t, svc.CreateAndUploadBackup(context.Background()))

	data, ok := store.objects["metrics-updater-backup-2024-03-01-143022.tar.gz"]
	require.True(t, ok)

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	hdr, err := tar.NewReader(gz).Next()
	require.NoError(t, err)
	assert.Equal(t, "history.db", hdr.Name)
}

func TestCreateAndUploadBackup_NotConfigured(t *testing.T) {
	svc := NewBackupService(nil, nil, t.TempDir(), zerolog.Nop())
	assert.False(t, svc.UploadEnabled())
	assert.EqualError(t, svc.CreateAndUploadBackup(context.Background()), "backup upload is not configured")
}

func TestListAndRotateBackups(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.Local)

	ages := []int{0, 1, 2, 40, 50, 60}
	for _, days := range ages {
		store.objects[ArchiveName(now.AddDate(0, 0, -days))] = []byte("x")
	}
	store.objects["unrelated.txt"] = []byte("x")
	store.objects["metrics-updater-backup-garbage.tar.gz"] = []byte("x")

	svc := NewBackupService(nil, store, t.TempDir(), zerolog.Nop())
	svc.now = func() time.Time { return now }

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, len(ages))
	assert.Equal(t, ArchiveName(now), backups[0].Filename)
	assert.Equal(t, int64(24), backups[1].AgeHours)
	assert.Equal(t, int64(1), backups[0].SizeBytes)

	store.deleteErr[ArchiveName(now.AddDate(0, 0, -50))] = errors.New("denied")

	deleted, err := svc.RotateOldBackups(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.ElementsMatch(t, []string{
		ArchiveName(now.AddDate(0, 0, -40)),
		ArchiveName(now.AddDate(0, 0, -60)),
	}, store.deleted)
}

func TestRotateOldBackups_KeepsMinimum(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.Local)
	for _, days := range []int{100, 200, 300} {
		store.objects[ArchiveName(now.AddDate(0, 0, -days))] = []byte("x")
	}

	svc := NewBackupService(nil, store, t.TempDir(), zerolog.Nop())
	svc.now = func() time.Time { return now }

	deleted, err := svc.RotateOldBackups(context.Background(), 30)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Len(t, store.objects, 3)
}

func TestParseArchiveName(t *testing.T) {
	ts, ok := ParseArchiveName("metrics-updater-backup-2024-03-01-143022.tar.gz")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 14, 30, 22, 0, time.Local), ts)

	_, ok = ParseArchiveName("other-app-backup-2024-03-01-143022.tar.gz")
	assert.False(t, ok)
	_, ok = ParseArchiveName("metrics-updater-backup-2024-03-01.tar.gz")
	assert.False(t, ok)
}
