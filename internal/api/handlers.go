package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kdimtricp/homecam/internal/home"
	"github.com/kdimtricp/homecam/internal/recognition"
)

const maxBodySize = 1 << 20

type App struct {
	Home   *home.Service
	Logger *slog.Logger
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func (app *App) StatusHandler(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, http.StatusOK, app.Home.Status())
}

func (app *App) BoxHealthHandler(w http.ResponseWriter, r *http.Request) {
	health, err := app.Home.BoxHealth(r.Context())
	if err != nil {
		app.writeError(w, err)
		return
	}
	status := http.StatusOK
	if !health.OK {
		status = http.StatusServiceUnavailable
	}
	app.writeJSON(w, status, health)
}

func (app *App) FrameHandler(w http.ResponseWriter, r *http.Request) {
	frame, ok := app.Home.LatestFrame()
	if !ok {
		http.Error(w, "No frame yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame.Data)))
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	w.Write(frame.Data)
}

func (app *App) ListPeopleHandler(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, http.StatusOK, map[string]any{"people": app.Home.People()})
}

func (app *App) AddPersonHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !app.decode(w, r, &body) {
		return
	}
	added, err := app.Home.AddPerson(r.Context(), body.Name)
	if err != nil {
		app.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	app.writeJSON(w, status, map[string]any{"name": strings.TrimSpace(body.Name), "added": added})
}

func (app *App) RemovePersonHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !app.Home.RemovePerson(r.Context(), name) {
		app.writeJSON(w, http.StatusNotFound, errorBody(fmt.Sprintf("%s is not tracked", name)))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) SetRelationshipHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Relationship string `json:"relationship"`
	}
	if !app.decode(w, r, &body) {
		return
	}
	name := chi.URLParam(r, "name")
	if err := app.Home.SetRelationship(r.Context(), name, body.Relationship); err != nil {
		app.logger().Error("failed to set relationship", "name", name, "error", err)
		app.writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	app.writeJSON(w, http.StatusOK, map[string]string{
		"name":         name,
		"relationship": strings.TrimSpace(body.Relationship),
	})
}

func (app *App) GuardHandler(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, http.StatusOK, map[string]bool{"active": app.Home.Alerts().GuardMode()})
}

func (app *App) SetGuardHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active *bool `json:"active"`
	}
	if !app.decode(w, r, &body) {
		return
	}
	if body.Active == nil {
		app.writeJSON(w, http.StatusBadRequest, errorBody("active is required"))
		return
	}
	changed := app.Home.SetGuardMode(r.Context(), *body.Active)
	app.writeJSON(w, http.StatusOK, map[string]bool{"active": *body.Active, "changed": changed})
}

func (app *App) EventsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			app.writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	app.writeJSON(w, http.StatusOK, map[string]any{"events": app.Home.Events().Events(limit)})
}

func (app *App) LabelsHandler(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") == "true"
	labels, err := app.Home.Labels(r.Context(), refresh)
	if err != nil {
		app.writeError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, map[string]any{"labels": labels})
}

func (app *App) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	// Fields missing from the body keep their defaults.
	req := recognition.DefaultRegisterRequest("")
	if !app.decode(w, r, &req) {
		return
	}

	res, err := app.Home.Register(r.Context(), req)
	if err != nil {
		app.writeError(w, err)
		return
	}
	status := http.StatusOK
	if res.Accepted {
		status = http.StatusAccepted
	}
	app.writeJSON(w, status, res)
}

func (app *App) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	labels, err := app.Home.Reload(r.Context())
	if err != nil {
		app.writeError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, map[string]any{"labels": labels})
}

func (app *App) DeleteLabelHandler(w http.ResponseWriter, r *http.Request) {
	labels, err := app.Home.DeleteLabel(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		app.writeError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, map[string]any{"labels": labels})
}

func (app *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		app.writeJSON(w, http.StatusBadRequest, errorBody("Invalid JSON body"))
		return false
	}
	return true
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// writeError maps box and validation errors onto HTTP statuses.
func (app *App) writeError(w http.ResponseWriter, err error) {
	var statusErr *recognition.StatusError
	switch {
	case errors.Is(err, recognition.ErrEmptyLabel):
		app.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, recognition.ErrBusy):
		app.writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound:
		app.writeJSON(w, http.StatusNotFound, errorBody(statusErr.Message))
	case errors.As(err, &statusErr) && statusErr.Code == http.StatusBadRequest:
		app.writeJSON(w, http.StatusBadRequest, errorBody(statusErr.Message))
	default:
		app.logger().Warn("box request failed", "error", err)
		app.writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
	}
}

func (app *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.logger().Error("failed to encode response", "error", err)
	}
}

func (app *App) logger() *slog.Logger {
	if app.Logger != nil {
		return app.Logger
	}
	return slog.Default()
}
