package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/capagrader/internal/model"
	"github.com/pavelanni/capagrader/internal/xqueue"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var _ xqueue.Queue = (*Store)(nil)

func testDetail(uuid, student, queue string, at time.Time) model.ExternalGraderDetail {
	return model.ExternalGraderDetail{
		UUID: uuid,
		StudentItem: model.StudentItem{
			CourseID:  "course-v1:MITx+6.002x+2024",
			ItemType:  "problem",
			ItemID:    "block-v1:MITx+6.002x+2024+type@problem+block@p1",
			StudentID: student,
		},
		Answer:         "print('hi')",
		QueueName:      queue,
		GraderFileName: "grade.py",
		GraderPayload:  json.RawMessage(`{"grader_file_name":"grade.py"}`),
		PointsPossible: 2,
		Files:          map[string]string{"a.py": "x=1"},
		Status:         model.StatusSubmitted,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func TestCreateExternalGraderDetail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d := testDetail("u1", "s1", "q", now)
	stored, created, err := s.CreateExternalGraderDetail(ctx, d)
	if err != nil {
		t.Fatalf("CreateExternalGraderDetail: %v", err)
	}
	if !created {
		t.Error("expected created=true on first insert")
	}
	if stored.UUID != "u1" || stored.GraderFileName != "grade.py" || stored.Files["a.py"] != "x=1" {
		t.Errorf("stored = %+v", stored)
	}
	if string(stored.GraderPayload) != `{"grader_file_name":"grade.py"}` {
		t.Errorf("payload = %s", stored.GraderPayload)
	}
	if !stored.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", stored.CreatedAt, now)
	}

	// Same identity, different uuid: the first row wins.
	dup := testDetail("u2", "s1", "q", now.Add(time.Minute))
	stored, created, err = s.CreateExternalGraderDetail(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if created || stored.UUID != "u1" {
		t.Errorf("duplicate insert = %+v, created=%v", stored, created)
	}

	count, err := s.SubmissionCount()
	if err != nil || count != 1 {
		t.Errorf("SubmissionCount = %d, %v", count, err)
	}

	// No files stores an empty object.
	nofiles := testDetail("u3", "s2", "q", now)
	nofiles.Files = nil
	if stored, _, err = s.CreateExternalGraderDetail(ctx, nofiles); err != nil || len(stored.Files) != 0 {
		t.Errorf("nil files = %+v, %v", stored.Files, err)
	}
}

func TestCreateConcurrentSameIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, ok, err := s.CreateExternalGraderDetail(ctx, testDetail(string(rune('a'+i)), "same", "q", now))
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if created != 1 {
		t.Errorf("created %d rows, want 1", created)
	}
}

func TestSetScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := testDetail("u1", "s1", "q", time.Now().UTC())
	if _, _, err := s.CreateExternalGraderDetail(ctx, d); err != nil {
		t.Fatal(err)
	}

	if err := s.SetScore(ctx, d.StudentItem, model.StatusScored, &model.ScoreMessage{Correct: true, Score: 2, Msg: "ok"}); err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	got, err := s.GetExternalGraderDetail(ctx, d.StudentItem)
	if err != nil {
		t.Fatalf("GetExternalGraderDetail: %v", err)
	}
	if got.Status != model.StatusScored || got.Score == nil || got.Score.Score != 2 || !got.Score.Correct {
		t.Errorf("after SetScore = %+v", got)
	}

	if err := s.SetScore(ctx, d.StudentItem, model.StatusFailed, nil); !errors.Is(err, xqueue.ErrInvalidTransition) {
		t.Errorf("rescore error = %v, want ErrInvalidTransition", err)
	}

	ghost := d.StudentItem
	ghost.StudentID = "ghost"
	if err := s.SetScore(ctx, ghost, model.StatusScored, nil); !errors.Is(err, xqueue.ErrUnknownSubmission) {
		t.Errorf("unknown error = %v", err)
	}
	if _, err := s.GetExternalGraderDetail(ctx, ghost); !errors.Is(err, xqueue.ErrUnknownSubmission) {
		t.Errorf("unknown get error = %v", err)
	}
}

func TestListAndPop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, sid := range []string{"s1", "s2", "s3"} {
		queue := "q"
		if sid == "s3" {
			queue = "other"
		}
		if _, _, err := s.CreateExternalGraderDetail(ctx, testDetail("u"+sid, sid, queue, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListExternalGraderDetails(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("List all = %d, %v", len(all), err)
	}
	onQ, _ := s.ListExternalGraderDetails(ctx, "q")
	if len(onQ) != 2 || onQ[0].StudentItem.StudentID != "s1" {
		t.Errorf("List q = %+v", onQ)
	}

	first, err := s.Pop(ctx, "q", 0)
	if err != nil || first == nil || first.UUID != "us1" {
		t.Fatalf("first Pop = %+v, %v", first, err)
	}
	second, _ := s.Pop(ctx, "q", 0)
	if second == nil || second.UUID != "us2" {
		t.Fatalf("second Pop = %+v", second)
	}
	if none, err := s.Pop(ctx, "q", 0); none != nil || err != nil {
		t.Errorf("empty Pop = %+v, %v", none, err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.Pop(cctx, "empty", time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Pop error = %v", err)
	}
}

func TestExportSubmissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	a := testDetail("ua", "a", "q", now)
	b := testDetail("ub", "b", "q", now.Add(time.Second))
	for _, d := range []model.ExternalGraderDetail{a, b} {
		if _, _, err := s.CreateExternalGraderDetail(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetScore(ctx, a.StudentItem, model.StatusScored, &model.ScoreMessage{Score: 1}); err != nil {
		t.Fatal(err)
	}

	exp, err := s.ExportSubmissions(ctx, "q")
	if err != nil {
		t.Fatalf("ExportSubmissions: %v", err)
	}
	if exp.Total != 2 || exp.Scored != 1 || exp.Pending != 1 || exp.QueueName != "q" {
		t.Errorf("export = %+v", exp)
	}
}

func TestProblems(t *testing.T) {
	s := newTestStore(t)

	count, err := s.ProblemCount()
	if err != nil || count != 0 {
		t.Fatalf("ProblemCount = %d, %v", count, err)
	}
	if _, err := s.GetProblem("missing"); !errors.Is(err, ErrProblemNotFound) {
		t.Errorf("GetProblem missing error = %v", err)
	}

	id, err := s.UpsertProblem("ohm", "ohm.xml", json.RawMessage(`{"scripts":[],"contents":[]}`))
	if err != nil {
		t.Fatalf("UpsertProblem: %v", err)
	}
	again, err := s.UpsertProblem("ohm", "ohm2.xml", json.RawMessage(`{"scripts":[],"contents":[{"type":"text","text":"x"}]}`))
	if err != nil {
		t.Fatalf("UpsertProblem update: %v", err)
	}
	if again != id {
		t.Errorf("upsert changed id from %d to %d", id, again)
	}
	p, err := s.GetProblem("ohm")
	if err != nil {
		t.Fatalf("GetProblem: %v", err)
	}
	if p.Source != "ohm2.xml" || string(p.Tree) != `{"scripts":[],"contents":[{"type":"text","text":"x"}]}` {
		t.Errorf("problem = %+v", p)
	}

	if _, err := s.UpsertProblem("circuit", "c.xml", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListProblems()
	if err != nil || len(list) != 2 || list[0].Name != "circuit" {
		t.Errorf("ListProblems = %+v, %v", list, err)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	info, err := s.GetLibraryInfo()
	if err != nil {
		t.Fatalf("GetLibraryInfo: %v", err)
	}
	if info != (model.LibraryInfo{}) {
		t.Errorf("expected empty info, got %+v", info)
	}

	want := model.LibraryInfo{SourceFile: "lib.json", FileHash: "abc", ImportedAt: "2026-03-01", Count: 4}
	if err := s.SetLibraryInfo(want); err != nil {
		t.Fatalf("SetLibraryInfo: %v", err)
	}
	got, err := s.GetLibraryInfo()
	if err != nil || got != want {
		t.Errorf("GetLibraryInfo = %+v, %v", got, err)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	// Missing file returns empty string.
	hash, err := s.GetImportedFileHash("/some/path.xml")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash("/some/path.xml", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, err = s.GetImportedFileHash("/some/path.xml")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	// Update existing.
	if err := s.SetImportedFileHash("/some/path.xml", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/some/path.xml")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}
