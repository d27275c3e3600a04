// Package handlers implements the registry's HTTP surface (C10, §6):
// a gorilla/mux router over the index repository and blob store,
// request authentication, and the per-identity/per-IP rate limits of
// §5.
package handlers

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/registry/app"
	"github.com/wisp-pm/wisp/internal/source"
)

const (
	writeRateLimit = 10
	readRateLimit  = 120
	rateWindow     = time.Minute
)

// Router builds the registry's full route tree of §6.
func Router(a *app.App) *mux.Router {
	h := &handler{app: a, writeLimit: newBucket(writeRateLimit, rateWindow), readLimit: newBucket(readRateLimit, rateWindow)}

	r := mux.NewRouter()
	r.HandleFunc("/v0/", h.version).Methods(http.MethodGet)
	r.HandleFunc("/v0/search", h.search).Methods(http.MethodGet)
	r.HandleFunc("/v0/packages/{scope}/{name}/versions", h.versions).Methods(http.MethodGet)
	r.HandleFunc("/v0/packages/{scope}/{name}/{versionReq}/{targetReq}", h.getVersion).Methods(http.MethodGet)
	r.HandleFunc("/v0/packages", h.publish).Methods(http.MethodPost)
	return r
}

type handler struct {
	app        *app.App
	writeLimit *bucket
	readLimit  *bucket
}

func (h *handler) version(w http.ResponseWriter, r *http.Request) {
	if !h.allowRead(w, r) {
		return
	}
	io.WriteString(w, h.app.Version)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: msg})
}

func (h *handler) allowRead(w http.ResponseWriter, r *http.Request) bool {
	ip := clientIP(r)
	if !h.readLimit.Allow(ip) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	if !h.app.Config.AuthorizeRead(bearerToken(r)) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	return true
}

func (h *handler) allowWrite(w http.ResponseWriter, r *http.Request, identity string) bool {
	if !h.writeLimit.Allow(identity) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ")
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	if !h.allowRead(w, r) {
		return
	}
	q := r.URL.Query().Get("query")
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	results, err := h.app.Search.Search(q, offset)
	if err != nil {
		logrus.WithError(err).Error("search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *handler) versions(w http.ResponseWriter, r *http.Request) {
	if !h.allowRead(w, r) {
		return
	}
	vars := mux.Vars(r)
	idxFile, err := source.ReadPackageFile(h.app.Index, vars["scope"], vars["name"])
	if err != nil {
		logrus.WithError(err).Error("read package file failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if idxFile == nil {
		writeError(w, http.StatusNotFound, "package not found")
		return
	}
	writeJSON(w, http.StatusOK, idxFile.Entries)
}

func (h *handler) getVersion(w http.ResponseWriter, r *http.Request) {
	if !h.allowRead(w, r) {
		return
	}
	vars := mux.Vars(r)
	scope, name := vars["scope"], vars["name"]

	idxFile, err := source.ReadPackageFile(h.app.Index, scope, name)
	if err != nil {
		logrus.WithError(err).Error("read package file failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if idxFile == nil {
		writeError(w, http.StatusNotFound, "package not found")
		return
	}

	entry, ok := selectEntry(idxFile.Entries, vars["versionReq"], vars["targetReq"])
	if !ok {
		writeError(w, http.StatusNotFound, "version not found")
		return
	}

	if r.Header.Get("Accept") == "application/octet-stream" {
		h.streamArchive(w, r, scope, name, entry)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handler) streamArchive(w http.ResponseWriter, r *http.Request, scope, name string, entry source.IndexEntry) {
	pn, err := names.ParsePackageName(scope + "/" + name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	sv, err := semverCompatVersion(entry.Version)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	vid := names.NewVersionID(sv, entry.TargetKind)
	key := archiveKeyFor(pn, vid)

	if url, ok := h.app.Blobs.SignedURL(key); ok {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	rc, err := h.app.Blobs.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "archive not found")
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, rc)
}

func (h *handler) publish(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	identity := token
	if !h.app.Config.AuthorizeWrite(token) {
		writeError(w, http.StatusForbidden, "unauthorized")
		return
	}
	if !h.allowWrite(w, r, identity) {
		return
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "malformed multipart body")
		return
	}
	file, _, err := r.FormFile("archive")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing archive field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	result, err := h.app.Publish(r.Context(), identity, data)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    result.Name.String(),
		"version": result.Version.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
