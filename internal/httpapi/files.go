package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/aistaff-ai/agentcore/internal/apierr"
)

const maxUploadBytes = 25 << 20 // 25MiB, matching the teacher's attachment size ceiling

type uploadResponse struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	URL         string `json:"url"`
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, "image")
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, "file")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, kind string) {
	principal, err := s.principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, apierr.New(apierr.KindValidation, "upload exceeds size limit or is malformed"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apierr.New(apierr.KindValidation, "missing multipart field \"file\""))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.KindValidation, "could not read upload", err))
		return
	}

	var sessionID *string
	if v := r.FormValue("session_id"); v != "" {
		sessionID = &v
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	att, err := s.Artifacts.RegisterNow(r.Context(), kind, header.Filename, contentType, data, principal.TeamID, nil, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	token := s.Artifacts.IssueDownloadToken(att.FileID, principal.TeamID, 24*time.Hour)
	writeJSON(w, http.StatusCreated, uploadResponse{
		FileID: att.FileID, Filename: att.Filename, ContentType: att.ContentType, SizeBytes: att.SizeBytes,
		URL: s.fileURL(att.FileID, token),
	})
}

func (s *Server) fileURL(fileID, token string) string {
	base := s.Config.PublicBaseURL
	return base + "/files/" + fileID + "?token=" + token
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, false)
}

func (s *Server) handlePreviewFile(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, true)
}

// serveFile resolves a signed download token and streams the file, setting
// Content-Disposition to inline for previews and attachment for downloads.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, inline bool) {
	principal, err := s.principal(r)
	if err != nil {
		writeError(w, err)
		return
	}
	fileID := r.PathValue("file_id")
	token := r.URL.Query().Get("token")

	absPath, contentType, filename, err := s.Artifacts.ResolveForDownload(r.Context(), principal.TeamID, fileID, token)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := s.Artifacts.ReadForTool(absPath)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.KindNotFound, "file is no longer available", err))
		return
	}

	disposition := "attachment"
	if inline {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", disposition+"; filename=\""+filename+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
