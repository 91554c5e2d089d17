package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/sessionedit/internal/annotation"
	"github.com/sessionedit/internal/backend"
	"github.com/sessionedit/internal/logger"
	"github.com/sessionedit/internal/model"
	"github.com/sessionedit/internal/session"
)

// maxJSONBody — предел тела JSON-запросов (upload идёт отдельно, через multipart).
const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

// writeSessionError переводит ошибки сессии в HTTP-статусы.
// Текст ошибки сервера чанков отдаётся клиенту без изменений.
func writeSessionError(w http.ResponseWriter, err error) {
	var opErr *session.OpError
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, session.ErrSuperseded):
		writeError(w, http.StatusConflict, "superseded")
	case errors.Is(err, session.ErrNoFileLoaded), errors.Is(err, session.ErrNothingToResume):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrInvalidDirection),
		errors.Is(err, session.ErrUnknownMessage),
		errors.Is(err, annotation.ErrMalformedKey):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, backend.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, backend.ErrUnavailable.Error())
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		writeError(w, http.StatusNotFound, apiErr.Message)
	case errors.As(err, &opErr):
		writeError(w, http.StatusBadGateway, opErr.Error())
	default:
		logger.Errorf("handler: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON читает и валидирует тело запроса. Пустое тело допустимо, если allowEmpty.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return false
		}
	}
	if err := validateStruct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// writeDownload передаёт бинарный ответ сервера чанков клиенту как вложение.
func writeDownload(w http.ResponseWriter, d *backend.Download, fallbackName string, inline bool) {
	defer d.Body.Close()
	ct := d.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	if d.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(d.ContentLength, 10))
	}
	name := d.Filename
	if name == "" {
		name = fallbackName
	}
	disposition := "attachment"
	if inline {
		disposition = "inline"
	}
	if name != "" {
		disposition += "; filename=" + strconv.Quote(name)
	}
	w.Header().Set("Content-Disposition", disposition)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, d.Body); err != nil {
		logger.Errorf("handler: stream %s: %v", name, err)
	}
}
