package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/gaa1973/memo-platform/internal/database"
)

type storedObject struct {
	data     []byte
	modified time.Time
}

// mockS3Client keeps objects in memory. now stamps LastModified.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string]storedObject
	now     func() time.Time
	putErr  error
}

func newMockS3(now func() time.Time) *mockS3Client {
	return &mockS3Client{objects: make(map[string]storedObject), now: now}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*input.Key] = storedObject{data: data, modified: m.now()}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(_ context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(input.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		obj := m.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}

func (m *mockS3Client) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func testConfig() Config {
	return Config{
		Bucket:     "memos",
		AccessKey:  "key",
		SecretKey:  "secret",
		Passphrase: "correct horse",
		Retention:  7 * 24 * time.Hour,
	}
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *mockS3Client, *clock, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "memos.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`INSERT INTO users (email, name, password_hash) VALUES ('a@example.com', 'A', 'h')`); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO memos (title, content, author_id) VALUES ('kept', 'safe', 1)`); err != nil {
		t.Fatalf("seed memo: %v", err)
	}

	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	mock := newMockS3(clk.now)

	m := NewManager(cfg, db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.client = mock
	m.now = clk.now
	return m, mock, clk, dbPath
}

func TestDisabledWithoutCredentials(t *testing.T) {
	m := NewManager(Config{Bucket: "memos"}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if m.Enabled() {
		t.Fatal("manager enabled without credentials")
	}
	if _, err := m.Run(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("Run = %v, want ErrDisabled", err)
	}
	if err := m.Restore(context.Background(), "k", "x.db"); !errors.Is(err, ErrDisabled) {
		t.Errorf("Restore = %v, want ErrDisabled", err)
	}
	// Start is a no-op and Stop must not block.
	m.Start(context.Background())
	m.Stop()
}

func TestRunUploadsSealedSnapshot(t *testing.T) {
	m, mock, _, _ := newTestManager(t, testConfig())

	snap, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if snap.Key != "memos/backup-20260301T120000Z.db.enc" {
		t.Errorf("key = %q", snap.Key)
	}

	obj := mock.objects[snap.Key]
	if bytes.Contains(obj.data, []byte("SQLite format 3")) {
		t.Error("uploaded object is not encrypted")
	}
	plain, err := Open(obj.data, "correct horse")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.HasPrefix(plain, []byte("SQLite format 3")) {
		t.Error("decrypted snapshot is not a SQLite database")
	}
}

func TestRunUploadError(t *testing.T) {
	m, mock, _, _ := newTestManager(t, testConfig())
	mock.putErr = errors.New("bucket gone")

	if _, err := m.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "bucket gone") {
		t.Errorf("Run = %v, want upload error", err)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	m, _, _, _ := newTestManager(t, testConfig())
	ctx := context.Background()

	snap, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := m.Restore(ctx, snap.Key, dst); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	db, err := database.Open(dst)
	if err != nil {
		t.Fatalf("open restored: %v", err)
	}
	defer db.Close()

	var title, content string
	if err := db.QueryRow(`SELECT title, content FROM memos WHERE author_id = 1`).Scan(&title, &content); err != nil {
		t.Fatalf("query restored memo: %v", err)
	}
	if title != "kept" || content != "safe" {
		t.Errorf("restored memo = %q/%q", title, content)
	}
}

func TestRestoreWrongPassphrase(t *testing.T) {
	cfg := testConfig()
	m, mock, _, _ := newTestManager(t, cfg)
	ctx := context.Background()

	snap, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	cfg.Passphrase = "wrong"
	other := NewManager(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	other.client = mock
	if err := other.Restore(ctx, snap.Key, filepath.Join(t.TempDir(), "x.db")); err == nil {
		t.Error("expected error restoring with wrong passphrase")
	}
}

func TestPruneKeepsRecentAndNewest(t *testing.T) {
	m, mock, clk, _ := newTestManager(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := m.Run(ctx); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
		clk.t = clk.t.Add(5 * 24 * time.Hour)
	}
	// Snapshots at day 0, 5 and 10; now is day 15, cutoff day 8.
	n, err := m.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
	if keys := mock.keys(); len(keys) != 1 || keys[0] != "memos/backup-20260311T120000Z.db.enc" {
		t.Errorf("remaining = %v", keys)
	}

	// Everything is older than the cutoff now, but the newest survives.
	clk.t = clk.t.Add(30 * 24 * time.Hour)
	if n, _ := m.Prune(ctx); n != 0 {
		t.Errorf("pruned %d, want 0", n)
	}
}

func TestListNewestFirst(t *testing.T) {
	m, _, clk, _ := newTestManager(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := m.Run(ctx); err != nil {
			t.Fatal(err)
		}
		clk.t = clk.t.Add(time.Hour)
	}

	snaps, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snaps) != 2 || !snaps[0].CreatedAt.After(snaps[1].CreatedAt) {
		t.Errorf("List = %+v", snaps)
	}
}
