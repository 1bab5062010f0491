package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSpool_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	s, err := NewSpool(dir)
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}

	path, n, err := s.Save("../../Report.PDF", strings.NewReader("%PDF-1.7"), 1024)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n != 8 {
		t.Errorf("n = %d, want 8", n)
	}
	if filepath.Dir(path) != dir || filepath.Ext(path) != ".pdf" {
		t.Errorf("path = %q, want a .pdf under %s", path, dir)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "%PDF-1.7" {
		t.Errorf("contents = %q, %v", data, err)
	}

	if err := s.Remove(path); err != nil {
		t.Errorf("Remove: %v", err)
	}
	if err := s.Remove("/etc/passwd"); err == nil {
		t.Error("Remove outside spool succeeded")
	}
}

func TestSpool_SaveTooLarge(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewSpool(dir)

	_, _, err := s.Save("big.pdf", strings.NewReader(strings.Repeat("x", 11)), 10)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("partial file left behind: %v", entries)
	}
}

func TestRedisQueue_Enqueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := NewRedisQueue(client, "")
	ctx := context.Background()

	job := Job{ID: "j-1", Name: "a.pdf", Path: "/data/uploads/x.pdf", CollectionName: "c-1", UserID: "u-1", EnqueuedAt: time.Now().UTC()}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, Job{ID: "j-2"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	n, err := q.Len(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Len = %d, %v; want 2", n, err)
	}

	items, err := mr.List(DefaultQueueKey)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var got Job
	if err := json.Unmarshal([]byte(items[0]), &got); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if got.ID != "j-1" || got.CollectionName != "c-1" {
		t.Errorf("first job = %+v, want FIFO order", got)
	}
}

func TestRedisQueue_Down(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	if err := NewRedisQueue(client, "jobs").Enqueue(context.Background(), Job{ID: "j"}); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestCollectionName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report"},
		{"Q3 report (final).pdf", "Q3_report__final_"},
		{"dir/../notes.v2.docx", "notes_v2"},
		{"plain", "plain"},
	}
	for _, tc := range tests {
		if got := CollectionName(tc.in); got != tc.want {
			t.Errorf("CollectionName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if got := CollectionName(".pdf"); !strings.HasPrefix(got, "upload_") {
		t.Errorf("CollectionName(.pdf) = %q, want generated name", got)
	}
}
