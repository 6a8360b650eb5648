package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/capagrader/internal/i18n"
	"github.com/pavelanni/capagrader/internal/olx"
	"github.com/pavelanni/capagrader/internal/responses"
	"github.com/pavelanni/capagrader/internal/store"
	"github.com/pavelanni/capagrader/internal/xqueue"
)

const (
	testBase     = "https://lms.example.com"
	testCourseID = "course-v1:MITx+6.002x+2024_T1"
)

type testEnv struct {
	server *httptest.Server
	store  *store.Store
	queue  *xqueue.MemoryQueue
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cat, err := appI18n.New("en")
	if err != nil {
		t.Fatalf("i18n.New: %v", err)
	}

	q := xqueue.NewMemoryQueue()
	br := xqueue.New(xqueue.Config{QueueBase: testBase}, q)
	h := New(cfg, s, q, br, responses.New(responses.Config{Seed: 1}))

	r := chi.NewRouter()
	r.Use(cat.Middleware)
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, store: s, queue: q}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body []byte, header map[string]string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (e *testEnv) postJSON(t *testing.T, path string, v any, header map[string]string) (int, map[string]any) {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return e.do(t, http.MethodPost, path, "application/json", body, header)
}

func mustTree(t *testing.T, src string) json.RawMessage {
	t.Helper()
	p, err := olx.Convert(src)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Config{})
	status, body := env.do(t, http.MethodGet, "/healthz", "", nil, nil)
	if status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", status, body)
	}
}

func TestGrade(t *testing.T) {
	env := newTestEnv(t, Config{})
	tree := mustTree(t, `<problem>
<numericalresponse answer="10"><responseparam type="tolerance" default="0.5"/></numericalresponse>
<customresponse cfn="run_tests" answer="x"><answer type="loncapa/python">pass</answer></customresponse>
</problem>`)

	tests := []struct {
		name       string
		req        gradeRequest
		lang       string
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{"correct", gradeRequest{Tree: tree, Answer: "10.2"}, "", http.StatusOK, "label", "Correct"},
		{"incorrect", gradeRequest{Tree: tree, Answer: "12"}, "", http.StatusOK, "correctness", "incorrect"},
		{"localized", gradeRequest{Tree: tree, Answer: "20/2"}, "ru", http.StatusOK, "label", "Верно"},
		{"invalid answer", gradeRequest{Tree: tree, Answer: "x"}, "", http.StatusBadRequest, "error", "Could not interpret your answer: "},
		{"external", gradeRequest{Tree: tree, Response: 1, Answer: "x"}, "", http.StatusConflict, "error", "This response is graded by an external grader."},
		{"out of range", gradeRequest{Tree: tree, Response: 2, Answer: "x"}, "", http.StatusBadRequest, "error", "response index out of range"},
		{"unknown problem", gradeRequest{Problem: "nope", Answer: "1"}, "", http.StatusNotFound, "error", "problem not found: nope"},
		{"nothing to grade", gradeRequest{Answer: "1"}, "", http.StatusBadRequest, "error", "problem or tree is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := map[string]string{}
			if tt.lang != "" {
				header["Accept-Language"] = tt.lang
			}
			status, body := env.postJSON(t, "/grade", tt.req, header)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%v)", status, tt.wantStatus, body)
			}
			got, _ := body[tt.wantKey].(string)
			if !strings.HasPrefix(got, tt.wantValue) {
				t.Errorf("%s = %q, want prefix %q", tt.wantKey, got, tt.wantValue)
			}
		})
	}
}

func TestGradeStoredProblem(t *testing.T) {
	env := newTestEnv(t, Config{})
	tree := mustTree(t, `<problem><stringresponse answer="Paris" type="ci"/></problem>`)
	if _, err := env.store.UpsertProblem("capital", "capital.xml", tree); err != nil {
		t.Fatal(err)
	}

	status, body := env.postJSON(t, "/grade", gradeRequest{Problem: "capital", Answer: "paris"}, nil)
	if status != http.StatusOK || body["correctness"] != "correct" || body["fraction"] != 1.0 {
		t.Errorf("grade = %d %v", status, body)
	}
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t, Config{})

	status, body := env.postJSON(t, "/preview/latex", previewRequest{Formula: "a/b"}, nil)
	if status != http.StatusOK || body["preview"] != `\frac{a}{b}` {
		t.Errorf("latex = %d %v", status, body)
	}
	status, body = env.postJSON(t, "/preview/latex", previewRequest{Formula: "2+"}, nil)
	if status != http.StatusOK || body["preview"] != "" || body["error"] == nil {
		t.Errorf("latex error = %d %v", status, body)
	}
	status, body = env.postJSON(t, "/preview/chemistry", previewRequest{Formula: "H2O + CO2"}, nil)
	if status != http.StatusOK || body["preview"] != `<span class="math">H<sub>2</sub>O+CO<sub>2</sub></span>` {
		t.Errorf("chemistry = %d %v", status, body)
	}
}

func TestConvert(t *testing.T) {
	env := newTestEnv(t, Config{})

	status, body := env.do(t, http.MethodPost, "/problems/convert", "application/xml",
		[]byte(`<problem><text>Ohm</text><numericalresponse answer="2"/></problem>`), nil)
	if status != http.StatusOK {
		t.Fatalf("convert = %d %v", status, body)
	}
	contents, _ := body["contents"].([]any)
	if len(contents) != 2 {
		t.Errorf("contents = %v", body["contents"])
	}

	status, body = env.do(t, http.MethodPost, "/problems/convert", "application/xml",
		[]byte(`<problem><text><text>x</text></text></problem>`), nil)
	if status != http.StatusUnprocessableEntity || !strings.Contains(body["error"].(string), "invalid nesting") {
		t.Errorf("bad convert = %d %v", status, body)
	}
}

func multipartProblem(t *testing.T, filename, content string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("problem_file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUploadProblem(t *testing.T) {
	env := newTestEnv(t, Config{AdminToken: "secret"})
	body, ctype := multipartProblem(t, "library/ohm.xml", `<problem><numericalresponse answer="2"/></problem>`)
	auth := map[string]string{"Authorization": "Bearer secret"}

	if status, _ := env.do(t, http.MethodPost, "/problems", ctype, body, nil); status != http.StatusUnauthorized {
		t.Errorf("no token = %d", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/problems", ctype, body, map[string]string{"Authorization": "Bearer wrong!"}); status != http.StatusForbidden {
		t.Errorf("wrong token = %d", status)
	}

	status, resp := env.do(t, http.MethodPost, "/problems", ctype, body, auth)
	if status != http.StatusCreated || resp["name"] != "ohm" || resp["fields"] != 1.0 {
		t.Fatalf("upload = %d %v", status, resp)
	}
	status, resp = env.do(t, http.MethodPost, "/problems", ctype, body, auth)
	if status != http.StatusOK || resp["unchanged"] != true {
		t.Errorf("re-upload = %d %v", status, resp)
	}

	status, resp = env.do(t, http.MethodGet, "/problems/ohm", "", nil, nil)
	if status != http.StatusOK || resp["source"] != "library/ohm.xml" {
		t.Errorf("get = %d %v", status, resp)
	}
	if status, _ := env.do(t, http.MethodGet, "/problems/missing", "", nil, nil); status != http.StatusNotFound {
		t.Errorf("missing = %d", status)
	}

	bad, badType := multipartProblem(t, "broken.xml", `<problem><text><text/></text></problem>`)
	if status, _ := env.do(t, http.MethodPost, "/problems", badType, bad, auth); status != http.StatusUnprocessableEntity {
		t.Errorf("broken upload = %d", status)
	}
}

func submitBody(student string) submitRequest {
	body, _ := json.Marshal(map[string]any{
		"student_info":     map[string]any{"anonymous_student_id": student},
		"student_response": "def f(x): return x",
		"grader_payload":   map[string]any{"grader_file_name": "grade_f.py"},
	})
	return submitRequest{
		Block: &xqueue.Block{
			CourseID: testCourseID,
			ItemID:   xqueue.UsageKey(testCourseID, "problem", "p1"),
			MaxScore: 3,
		},
		Header: json.RawMessage(`"{\"queue_name\": \"MITx-6.002x\"}"`),
		Body:   body,
	}
}

func TestSubmitAndScoreUpdate(t *testing.T) {
	env := newTestEnv(t, Config{CallbackToken: "cb"})

	status, body := env.postJSON(t, "/xqueue/submit", submitBody("s1"), nil)
	if status != http.StatusAccepted || body["queue_name"] != "MITx-6.002x" || body["message"] == "" {
		t.Fatalf("submit = %d %v", status, body)
	}
	callback, _ := body["callback_url"].(string)
	if !strings.HasPrefix(callback, testBase+"/courses/") {
		t.Fatalf("callback_url = %q", callback)
	}

	status, body = env.postJSON(t, "/xqueue/submit", submitBody("s1"), nil)
	if status != http.StatusOK || body["duplicate"] != true {
		t.Errorf("duplicate submit = %d %v", status, body)
	}

	bad := submitBody("s2")
	bad.Body = json.RawMessage(`{"student_info": {"anonymous_student_id": "s2"}}`)
	status, body = env.postJSON(t, "/xqueue/submit", bad, nil)
	if status != http.StatusBadRequest || body["error"] != "Validation error: The field 'student_response' does not exist." {
		t.Errorf("bad submit = %d %v", status, body)
	}

	u, err := url.Parse(callback)
	if err != nil {
		t.Fatal(err)
	}
	path := u.EscapedPath()
	reply := []byte(`{"correct": true, "score": 3, "msg": "<p>ok</p>"}`)
	auth := map[string]string{"Authorization": "Bearer cb"}

	if status, _ := env.do(t, http.MethodPost, path, "application/json", reply, nil); status != http.StatusUnauthorized {
		t.Errorf("callback without token = %d", status)
	}
	status, body = env.do(t, http.MethodPost, path, "application/json", reply, auth)
	if status != http.StatusOK || body["success"] != true || body["score"] != 3.0 {
		t.Fatalf("score_update = %d %v", status, body)
	}
	if status, _ := env.do(t, http.MethodPost, path, "application/json", reply, auth); status != http.StatusConflict {
		t.Errorf("second score_update = %d", status)
	}

	ghost := strings.Replace(path, "/xqueue/s1/", "/xqueue/ghost/", 1)
	if status, _ := env.do(t, http.MethodPost, ghost, "application/json", reply, auth); status != http.StatusNotFound {
		t.Errorf("unknown score_update = %d", status)
	}

	status, body = env.do(t, http.MethodGet, "/xqueue/submissions?queue=MITx-6.002x", "", nil, nil)
	if status != http.StatusOK || body["total"] != 1.0 || body["scored"] != 1.0 {
		t.Errorf("export = %d %v", status, body)
	}
}

func TestScoreUpdateForm(t *testing.T) {
	env := newTestEnv(t, Config{})

	status, body := env.postJSON(t, "/xqueue/submit", submitBody("s9"), nil)
	if status != http.StatusAccepted {
		t.Fatalf("submit = %d %v", status, body)
	}
	u, _ := url.Parse(body["callback_url"].(string))

	form := url.Values{"xqueue_body": {`{"correct": false, "score": "1", "msg": ""}`}}
	status, body = env.do(t, http.MethodPost, u.EscapedPath(), "application/x-www-form-urlencoded", []byte(form.Encode()), nil)
	if status != http.StatusBadRequest || !strings.HasPrefix(body["error"].(string), "Type error: ") {
		t.Errorf("bad reply = %d %v", status, body)
	}

	exp, err := env.queue.ExportSubmissions(t.Context(), "")
	if err != nil || exp.Failed != 1 {
		t.Errorf("export = %+v, %v", exp, err)
	}
}
