package rest

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dfryer1193/blogcms/blog/application"
	"github.com/dfryer1193/blogcms/blog/persistence"
	"github.com/dfryer1193/blogcms/internal/middleware"
	"github.com/dfryer1193/blogcms/shared/db/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	testBaseURL = "http://blog.test"
	testPrefix  = "static"
)

type testServer struct {
	router    *gin.Engine
	uploadDir string
	db        *sql.DB
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database := sqlite.NewSQLiteDB(&sqlite.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, database.Connect(context.Background()))
	t.Cleanup(func() { database.Close() })

	uploadDir := t.TempDir()
	files := persistence.NewLocalFileStore(uploadDir)
	service := application.NewPostService(
		persistence.NewPostRepository(database.DB()),
		files,
		application.NewImageResolver(testBaseURL, testPrefix),
	)

	router := NewEngine(EngineOptions{UploadDir: uploadDir, StoragePrefix: testPrefix})
	NewApi(router, NewPostsHandler(service), middleware.Upload(files, middleware.UploadOptions{
		MaxBytes:          1 << 20,
		AllowedMIMETypes:  []string{"model/gltf-binary", "image/png"},
		AllowedExtensions: []string{".glb", ".usdz", ".png"},
	}))

	return &testServer{router: router, uploadDir: uploadDir, db: database.DB()}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
		assert.Equal(t, rec.Code, env.Status, "envelope status mirrors HTTP status")
	}
	return rec, env
}

func (s *testServer) uploads(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func jsonRequest(method, target string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type upload struct {
	name    string
	content []byte
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, file *upload) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="blogImage"; filename="%s"`, file.name))
		h.Set("Content-Type", "application/octet-stream")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodePost(t *testing.T, env envelope) map[string]any {
	t.Helper()
	var post map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &post))
	return post
}

func (s *testServer) createPost(t *testing.T, body map[string]string) map[string]any {
	t.Helper()
	rec, env := s.do(t, jsonRequest(http.MethodPost, "/posts", body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodePost(t, env)
}

func TestCreatePost_MissingFields(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{name: "no title", body: map[string]string{"content": "c", "blogImageUrl": "https://x/y.png"}},
		{name: "no content", body: map[string]string{"title": "t", "blogImageUrl": "https://x/y.png"}},
		{name: "blank title", body: map[string]string{"title": "  ", "content": "c", "blogImageUrl": "https://x/y.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, jsonRequest(http.MethodPost, "/posts", tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Fill required fields", env.Message)
		})
	}

	rec, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/posts", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "nothing should have been persisted")
}

func TestCreatePost_ImageRequired(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, jsonRequest(http.MethodPost, "/posts", map[string]string{"title": "t", "content": "c"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Blog image is required", env.Message)

	rec, env = s.do(t, multipartRequest(t, http.MethodPost, "/posts", map[string]string{"title": "t", "content": "c"}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Blog image is required", env.Message)
}

func TestCreatePost_WithUpload(t *testing.T) {
	s := newTestServer(t)
	content := []byte("glTF\x02\x00\x00\x00model")

	rec, env := s.do(t, multipartRequest(t, http.MethodPost, "/posts",
		map[string]string{"title": "Model", "content": "A 3D model"},
		&upload{name: "scene.glb", content: content},
	))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Blog created", env.Message)

	post := decodePost(t, env)
	image, _ := post["blogImage"].(string)
	prefix := testBaseURL + "/" + testPrefix + "/uploads/"
	require.True(t, strings.HasPrefix(image, prefix), "blogImage %q should start with %q", image, prefix)
	assert.Equal(t, ".glb", filepath.Ext(image))

	filename := strings.TrimPrefix(image, prefix)
	assert.Equal(t, []string{filename}, s.uploads(t))

	// the stored reference is served by the static route
	staticRec := httptest.NewRecorder()
	s.router.ServeHTTP(staticRec, httptest.NewRequest(http.MethodGet, "/"+testPrefix+"/uploads/"+filename, nil))
	assert.Equal(t, http.StatusOK, staticRec.Code)
	assert.Equal(t, content, staticRec.Body.Bytes())
}

func TestCreatePost_ExternalURL(t *testing.T) {
	s := newTestServer(t)
	imageURL := "https://cdn.example.com/images/cover.png?size=large"

	created := s.createPost(t, map[string]string{"title": "T", "content": "C", "blogImageUrl": imageURL})
	assert.Equal(t, imageURL, created["blogImage"])
	assert.Empty(t, s.uploads(t))

	var stored string
	require.NoError(t, s.db.QueryRow("SELECT blog_image FROM posts WHERE id = ?", created["_id"]).Scan(&stored))
	assert.Equal(t, imageURL, stored)
}

func TestCreatePost_BlogImageTextAlias(t *testing.T) {
	s := newTestServer(t)

	form := url.Values{}
	form.Set("title", "T")
	form.Set("content", "C")
	form.Set("blogImage", "https://cdn.example.com/alias.png")
	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec, env := s.do(t, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "https://cdn.example.com/alias.png", decodePost(t, env)["blogImage"])
}

func TestCreatePost_UnknownField(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, jsonRequest(http.MethodPost, "/posts", map[string]string{
		"title": "T", "content": "C", "blogImageUrl": "https://x/y.png", "author": "me",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown field: author", env.Message)

	rec, env = s.do(t, multipartRequest(t, http.MethodPost, "/posts",
		map[string]string{"title": "T", "content": "C", "tags": "go"},
		&upload{name: "a.png", content: []byte("png")},
	))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown field: tags", env.Message)
	assert.Empty(t, s.uploads(t), "rejected request must not leave its upload behind")
}

func TestCreatePost_RejectedBodies(t *testing.T) {
	s := newTestServer(t)
	oversized := strings.Repeat("x", middleware.DefaultBodyBytes)

	tests := []struct {
		name        string
		contentType string
		body        string
		message     string
	}{
		{name: "unknown json key", contentType: "application/json", body: `{"title":"T","content":"C","blogImageUrl":"https://x/y.png","revision":3}`, message: "Unknown field: revision"},
		{name: "malformed json", contentType: "application/json", body: `{"title":`, message: "Invalid JSON body"},
		{name: "non-string field", contentType: "application/json", body: `{"title":5,"content":"C","blogImageUrl":"https://x/y.png"}`, message: "Invalid JSON body"},
		{name: "json array", contentType: "application/json", body: `["title"]`, message: "Invalid JSON body"},
		{name: "oversized json", contentType: "application/json", body: `{"title":"T","content":"` + oversized + `"}`, message: "Request body too large"},
		{name: "oversized form", contentType: "application/x-www-form-urlencoded", body: "title=T&content=" + oversized, message: "Request body too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)

			rec, env := s.do(t, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, env.Message)
		})
	}

	rec, env := s.do(t, httptest.NewRequest(http.MethodGet, "/posts", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "no rejected body may create a post")
	assert.Equal(t, "No blogs found", env.Message)
}

func TestCreatePost_FailedRequestRemovesUpload(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, multipartRequest(t, http.MethodPost, "/posts",
		map[string]string{"content": "C"},
		&upload{name: "a.png", content: []byte("png")},
	))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Fill required fields", env.Message)
	assert.Empty(t, s.uploads(t))
}

func TestCreatePost_RejectedFileType(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, multipartRequest(t, http.MethodPost, "/posts",
		map[string]string{"title": "T", "content": "C"},
		&upload{name: "script.sh", content: []byte("#!/bin/sh\necho hi\n")},
	))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid file type", env.Message)
	assert.Empty(t, s.uploads(t))
}

func TestListPosts(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 2; i++ {
		rec, env := s.do(t, httptest.NewRequest(http.MethodGet, "/posts", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "No blogs found", env.Message)
	}

	first := s.createPost(t, map[string]string{"title": "First", "content": "C", "blogImageUrl": "https://x/1.png"})
	second := s.createPost(t, map[string]string{"title": "Second", "content": "C", "blogImageUrl": "https://x/2.png"})

	rec, env := s.do(t, httptest.NewRequest(http.MethodGet, "/posts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Blogs retrieved", env.Message)

	var posts []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &posts))
	require.Len(t, posts, 2)
	assert.Equal(t, first["_id"], posts[0]["_id"])
	assert.Equal(t, second["_id"], posts[1]["_id"])
	for _, p := range posts {
		assert.NotContains(t, p, "revision")
		assert.NotContains(t, p, "Revision")
		assert.NotContains(t, p, "__v")
	}
}

func TestListPosts_RewritesRelativeImages(t *testing.T) {
	s := newTestServer(t)

	_, err := s.db.Exec(
		"INSERT INTO posts (id, title, content, blog_image, revision, created_at) VALUES (?, ?, ?, ?, 0, CURRENT_TIMESTAMP)",
		primitive.NewObjectID().Hex(), "Legacy", "C", "uploads/legacy.png",
	)
	require.NoError(t, err)

	rec, env := s.do(t, httptest.NewRequest(http.MethodGet, "/posts", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var posts []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, testBaseURL+"/uploads/legacy.png", posts[0]["blogImage"])
}

func TestGetPost(t *testing.T) {
	s := newTestServer(t)
	created := s.createPost(t, map[string]string{"title": "T", "content": "Body", "blogImageUrl": "https://cdn.example.com/a.png"})
	id := created["_id"].(string)

	tests := []struct {
		name    string
		id      string
		status  int
		message string
	}{
		{name: "existing", id: id, status: http.StatusOK, message: "Blog retrieved"},
		{name: "well formed but missing", id: primitive.NewObjectID().Hex(), status: http.StatusNotFound, message: "Blog not found"},
		{name: "malformed", id: "not-an-id", status: http.StatusBadRequest, message: "Invalid blog ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, httptest.NewRequest(http.MethodGet, "/posts/"+tt.id, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, env.Message)
		})
	}

	// round trip
	_, env := s.do(t, httptest.NewRequest(http.MethodGet, "/posts/"+id, nil))
	got := decodePost(t, env)
	assert.Equal(t, "T", got["title"])
	assert.Equal(t, "Body", got["content"])
	assert.Equal(t, "https://cdn.example.com/a.png", got["blogImage"])
	assert.NotContains(t, got, "revision")
}

func TestUpdatePost(t *testing.T) {
	s := newTestServer(t)
	created := s.createPost(t, map[string]string{"title": "Old", "content": "Body", "blogImageUrl": "https://cdn.example.com/old.png"})
	id := created["_id"].(string)

	rec, env := s.do(t, jsonRequest(http.MethodPut, "/posts/"+id, map[string]string{"blogImageUrl": "https://cdn.example.com/new.png"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Blog updated", env.Message)
	assert.Equal(t, "https://cdn.example.com/new.png", decodePost(t, env)["blogImage"])

	rec, env = s.do(t, multipartRequest(t, http.MethodPut, "/posts/"+id, map[string]string{"title": "New"}, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodePost(t, env)
	assert.Equal(t, "New", updated["title"])
	assert.Equal(t, "Body", updated["content"])
	assert.Equal(t, "https://cdn.example.com/new.png", updated["blogImage"], "no image field leaves image unchanged")
	assert.Equal(t, id, updated["_id"])

	rec, env = s.do(t, multipartRequest(t, http.MethodPut, "/posts/"+id, nil, &upload{name: "cover.png", content: []byte("png")}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	image := decodePost(t, env)["blogImage"].(string)
	assert.True(t, strings.HasPrefix(image, testBaseURL+"/"+testPrefix+"/uploads/"), image)
	assert.Len(t, s.uploads(t), 1)
}

func TestUpdatePost_Errors(t *testing.T) {
	s := newTestServer(t)
	created := s.createPost(t, map[string]string{"title": "T", "content": "C", "blogImageUrl": "https://x/y.png"})
	id := created["_id"].(string)

	tests := []struct {
		name    string
		id      string
		body    map[string]string
		status  int
		message string
	}{
		{name: "malformed id", id: "123", body: map[string]string{"title": "x"}, status: http.StatusBadRequest, message: "Invalid blog ID"},
		{name: "not found", id: primitive.NewObjectID().Hex(), body: map[string]string{"title": "x"}, status: http.StatusNotFound, message: "Blog not found"},
		{name: "empty title", id: id, body: map[string]string{"title": ""}, status: http.StatusBadRequest, message: "title cannot be empty"},
		{name: "unknown field", id: id, body: map[string]string{"views": "10"}, status: http.StatusBadRequest, message: "Unknown field: views"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, jsonRequest(http.MethodPut, "/posts/"+tt.id, tt.body))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, env.Message)
		})
	}

	_, env := s.do(t, httptest.NewRequest(http.MethodGet, "/posts/"+id, nil))
	assert.Equal(t, "T", decodePost(t, env)["title"])
}

func TestDeletePost(t *testing.T) {
	s := newTestServer(t)
	created := s.createPost(t, map[string]string{"title": "Doomed", "content": "C", "blogImageUrl": "https://x/y.png"})
	id := created["_id"].(string)

	rec, env := s.do(t, httptest.NewRequest(http.MethodDelete, "/posts/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Blog deleted", env.Message)
	assert.Equal(t, "Doomed", decodePost(t, env)["title"])

	rec, env = s.do(t, httptest.NewRequest(http.MethodDelete, "/posts/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Blog not found", env.Message)

	rec, env = s.do(t, httptest.NewRequest(http.MethodDelete, "/posts/xyz", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid blog ID", env.Message)
}

func TestServerError(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.db.Close())

	rec, env := s.do(t, httptest.NewRequest(http.MethodGet, "/posts", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Server error", env.Message)
	assert.NotEmpty(t, env.Error)
}

func TestNoRoute(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found", env.Message)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewEngine(EngineOptions{CORSAllowedOrigins: []string{"https://app.example.com"}})
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUploadsRoute(t *testing.T) {
	tests := []struct {
		prefix   string
		expected string
	}{
		{prefix: "", expected: "/uploads"},
		{prefix: "static", expected: "/static/uploads"},
		{prefix: "/media/", expected: "/media/uploads"},
	}

	for _, tt := range tests {
		if got := UploadsRoute(tt.prefix); got != tt.expected {
			t.Errorf("UploadsRoute(%q) = %q, want %q", tt.prefix, got, tt.expected)
		}
	}
}
