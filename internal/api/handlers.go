package api

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/FocuswithJustin/jatspkg/core/cas"
	"github.com/FocuswithJustin/jatspkg/core/convert"
	"github.com/FocuswithJustin/jatspkg/core/errors"
	"github.com/FocuswithJustin/jatspkg/internal/archive"
	"github.com/FocuswithJustin/jatspkg/internal/catalog"
	"github.com/FocuswithJustin/jatspkg/internal/logging"
	"github.com/FocuswithJustin/jatspkg/internal/server"
	"github.com/FocuswithJustin/jatspkg/internal/validation"
)

const blobPrefix = "/r/"

// APIResponse is the standard response envelope.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta carries response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

func respond(w http.ResponseWriter, status int, data any) {
	respondMeta(w, status, data, 0)
}

func respondMeta(w http.ResponseWriter, status int, data any, total int) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Total: total, Timestamp: now()},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Error: &APIError{Code: code, Message: message},
		Meta:  &APIMeta{Timestamp: now()},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to write response", "error", err)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"name": "jatspkg",
		"endpoints": []string{
			"POST /jobs?article_id=<id>",
			"GET /jobs",
			"GET /jobs/{id}",
			"DELETE /jobs/{id}",
			"GET /jobs/{id}/package.json",
			"GET /jobs/{id}/index.html",
			"GET /r/{digest}",
			"GET /conversions",
			"GET /conversions/{article_id}",
			"GET /ws?job=<id>",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"websocket_clients": s.hub.Len(),
		"jobs":              len(s.jobs.List()),
	})
}

// uploadNames maps request content types to the archive name the upload is
// saved as.
var uploadNames = map[string]string{
	"application/zip":          "bundle.zip",
	"application/x-zip":        "bundle.zip",
	"application/gzip":         "bundle.tar.gz",
	"application/x-gzip":       "bundle.tar.gz",
	"application/x-tgz":        "bundle.tar.gz",
	"application/x-tar":        "bundle.tar",
	"application/x-xz":         "bundle.tar.xz",
	"application/x-xz-tarball": "bundle.tar.xz",
}

// uploadName picks the saved name of an upload from ?filename= or the
// Content-Type header.
func uploadName(r *http.Request) (string, bool) {
	if name := r.URL.Query().Get("filename"); name != "" {
		if validation.ValidateFilename(name) != nil || !archive.IsArchive(name) {
			return "", false
		}
		_, ext := archive.SplitExt(name)
		return "bundle" + strings.ToLower(ext), true
	}
	ct, _, _ := strings.Cut(r.Header.Get("Content-Type"), ";")
	name, ok := uploadNames[strings.TrimSpace(strings.ToLower(ct))]
	return name, ok
}

// handleCreateJob handles POST /jobs. The body is the article's bundle
// archive; ?article_id= names the article.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	articleID := r.URL.Query().Get("article_id")
	if err := validation.ValidateArticleID(articleID); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ARTICLE_ID", err.Error())
		return
	}
	name, ok := uploadName(r)
	if !ok {
		respondError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_ARCHIVE",
			"body must be a zip, tar, tar.gz or tar.xz archive")
		return
	}

	job, ctx := s.jobs.Create(s.ctx, articleID, s.jobDir)
	upload := filepath.Join(job.dir, name)
	if err := s.saveUpload(w, r, upload); err != nil {
		s.jobs.Fail(job.ID, err)
		os.RemoveAll(job.dir)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "UPLOAD_FAILED", err.Error())
		return
	}

	logging.InfoContext(r.Context(), "job_created", "job_id", job.ID, "article_id", articleID)
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.runJob(withJob(ctx, job.ID), job, upload)
	}()
	respond(w, http.StatusAccepted, job)
}

func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request, dst string) error {
	body := io.Reader(r.Body)
	if s.cfg.MaxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.NewIO("mkdir", filepath.Dir(dst), err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return errors.NewIO("create", dst, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// runJob unpacks the upload, converts the bundle and writes the outputs
// into the job directory.
func (s *Server) runJob(ctx context.Context, job Job, upload string) {
	s.observe(ctx, StageUnpack)
	bundle := filepath.Join(job.dir, "bundle")
	if err := s.unpacker.Unpack(ctx, upload, bundle); err != nil {
		s.finish(ctx, job, nil, err)
		return
	}
	os.Remove(upload)

	res, err := s.conv.Convert(ctx, convert.Input{ArticleID: job.ArticleID, BundleDir: bundleRoot(bundle)})
	if err == nil {
		err = convert.WriteOutputs(res, filepath.Join(job.dir, "out"))
	}
	s.finish(ctx, job, res, err)
}

func (s *Server) finish(ctx context.Context, job Job, res *convert.Result, err error) {
	if err != nil {
		if _, ok := s.jobs.Fail(job.ID, err); ok {
			s.hub.Broadcast(ProgressMessage{Type: "error", JobID: job.ID, ArticleID: job.ArticleID, Message: err.Error()})
		}
		s.record(ctx, catalog.Failed(job.ArticleID, err))
		return
	}

	result := &JobResult{
		ConversionID: res.ID,
		Package:      res.Package.Name,
		DOI:          res.Package.DOI,
		Resources:    len(res.Package.All()),
	}
	if _, ok := s.jobs.Complete(job.ID, result); ok {
		s.hub.Broadcast(ProgressMessage{Type: "complete", JobID: job.ID, ArticleID: job.ArticleID, Progress: 100, Message: res.Package.Name})
	}
	s.record(ctx, catalog.Succeeded(job.ArticleID, filepath.Join(job.dir, "out"), res))
}

func (s *Server) record(ctx context.Context, e catalog.Entry) {
	if s.catalog == nil {
		return
	}
	// The job context may be cancelled already; the record still lands.
	if err := s.catalog.Record(context.WithoutCancel(ctx), e); err != nil {
		logging.ErrorContext(ctx, "catalog record failed", "article_id", e.ArticleID, "error", err)
	}
}

// observe turns conversion stages into job progress.
func (s *Server) observe(ctx context.Context, stage string) {
	id := jobFrom(ctx)
	if id == "" {
		return
	}
	job, ok := s.jobs.Stage(id, stage)
	if !ok {
		return
	}
	s.hub.Broadcast(ProgressMessage{
		Type:      "progress",
		JobID:     id,
		ArticleID: job.ArticleID,
		Stage:     stage,
		Progress:  job.Progress,
	})
}

// bundleRoot descends through directories that are the only entry of
// their parent, so an archive wrapping its files in one folder still
// yields the folder holding the article.
func bundleRoot(dir string) string {
	for {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) != 1 || !entries[0].IsDir() {
			return dir
		}
		dir = filepath.Join(dir, entries[0].Name())
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.List()
	respondMeta(w, http.StatusOK, jobs, len(jobs))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
		return
	}
	respond(w, http.StatusOK, job)
}

// handleDeleteJob cancels a running job or removes a finished one with
// its files.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := s.jobs.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
		return
	}
	if !job.Status.Done() {
		if job, err := s.jobs.Cancel(id); err == nil {
			s.hub.Broadcast(ProgressMessage{Type: "error", JobID: id, ArticleID: job.ArticleID, Message: "cancelled"})
			respond(w, http.StatusOK, job)
			return
		}
	}
	dir, err := s.jobs.Remove(id)
	if err != nil {
		respondError(w, http.StatusConflict, "DELETE_FAILED", err.Error())
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logging.WarnContext(r.Context(), "failed to remove job directory", "job_id", id, "error", err)
	}
	respond(w, http.StatusOK, map[string]string{"message": "Job removed"})
}

var outputTypes = map[string]string{
	convert.PackageFile: "application/json",
	convert.HTMLFile:    "text/html; charset=utf-8",
}

// handleJobOutput serves GET /jobs/{id}/package.json and index.html.
func (s *Server) handleJobOutput(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	ctype, ok := outputTypes[file]
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Unknown output")
		return
	}
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
		return
	}
	if job.Status != JobStatusCompleted {
		respondError(w, http.StatusConflict, "NOT_READY", "Job status is "+string(job.Status))
		return
	}

	f, err := os.Open(filepath.Join(job.dir, "out", file))
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Output missing")
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", ctype)
	if file == convert.HTMLFile {
		w.Header().Set("Content-Security-Policy", server.ArticleCSP(s.cfg.BlobHost).String())
	}
	http.ServeContent(w, r, file, time.Time{}, f)
}

// handleBlob serves GET /r/{digest} from the content-addressed store.
// SHA-256 and BLAKE3 digests are both accepted.
func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No blob store configured")
		return
	}
	digest := strings.ToLower(r.PathValue("digest"))
	sha, err := s.store.Resolve(digest)
	switch {
	case errors.Is(err, cas.ErrInvalidHash):
		respondError(w, http.StatusBadRequest, "INVALID_DIGEST", "Digest must be 64 hex characters")
		return
	case errors.Is(err, cas.ErrBlobNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Blob not found")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	f, err := s.store.Open(sha)
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Blob not found")
		return
	}
	defer f.Close()
	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Cache-Control", "public, max-age=31536000, immutable")
	h.Set("ETag", `"`+sha+`"`)
	http.ServeContent(w, r, "", time.Time{}, f)
}

func (s *Server) handleListConversions(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No catalog configured")
		return
	}
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := s.catalog.List(r.Context(), q.Get("status"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "CATALOG_ERROR", err.Error())
		return
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	respondMeta(w, http.StatusOK, entries, len(entries))
}

func (s *Server) handleGetConversion(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No catalog configured")
		return
	}
	e, err := s.catalog.Get(r.Context(), r.PathValue("article"))
	if errors.Is(err, errors.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Conversion not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "CATALOG_ERROR", err.Error())
		return
	}
	respond(w, http.StatusOK, e)
}
