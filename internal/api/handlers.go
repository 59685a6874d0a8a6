// Package api exposes board columns and the reorder operation over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/nhle/taskboard/internal/broadcast"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/reorder"
	"github.com/nhle/taskboard/internal/store"
)

// HeaderUserID carries the authenticated requester, set by the proxy in
// front of the service.
const HeaderUserID = "X-User-ID"

const maxBodySize = 64 << 10

// Storage is the subset of the store the handlers read and write directly.
type Storage interface {
	GetProjectByID(ctx context.Context, id string) (*model.Project, error)
	CreateTask(ctx context.Context, task model.Task) (*model.Task, error)
	FindColumnOrderedByRank(ctx context.Context, col model.ColumnKey) ([]model.Task, error)
}

// Reorderer moves tasks and rewrites columns.
type Reorderer interface {
	Reorder(ctx context.Context, req reorder.Request) (*reorder.Result, error)
	RebalanceColumn(ctx context.Context, col model.ColumnKey) ([]model.Task, error)
	RebalanceProject(ctx context.Context, projectID string) ([]model.Task, error)
}

type handlers struct {
	store  Storage
	mover  Reorderer
	pub    broadcast.Publisher
	logger *log.Logger
}

// Register wires up all API routes on the provided Echo instance. pub may be
// nil when broadcasting is disabled.
func Register(e *echo.Echo, st Storage, mover Reorderer, pub broadcast.Publisher, logger *log.Logger) {
	if pub == nil {
		pub = broadcast.Nop{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &handlers{store: st, mover: mover, pub: pub, logger: logger}

	e.GET("/healthz", h.healthz)
	e.GET("/projects/:project/columns/:status", h.getColumn)
	e.POST("/projects/:project/tasks", h.createTask)
	e.POST("/projects/:project/columns/:status/rebalance", h.rebalanceColumn)
	e.POST("/projects/:project/rebalance", h.rebalanceProject)
	e.POST("/tasks/:id/move", h.moveTask)
}

type errorResponse struct {
	Error string `json:"error"`
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`
}

type moveRequest struct {
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
	Index     *int   `json:"index"`
}

type rebalanceResponse struct {
	Affected []model.Task `json:"affected"`
}

func (h *handlers) healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *handlers) getColumn(c echo.Context) error {
	ctx := c.Request().Context()
	col := model.ColumnKey{ProjectID: c.Param("project"), Status: c.Param("status")}
	if !model.ValidStatus(col.Status) {
		return fail(c, http.StatusBadRequest, "unknown status "+col.Status)
	}
	if _, err := h.store.GetProjectByID(ctx, col.ProjectID); err != nil {
		return h.fromError(c, err)
	}

	tasks, err := h.store.FindColumnOrderedByRank(ctx, col)
	if err != nil {
		return h.fromError(c, err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return c.JSON(http.StatusOK, tasks)
}

func (h *handlers) createTask(c echo.Context) error {
	ctx := c.Request().Context()
	var body createTaskRequest
	if err := decode(c, &body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(body.Title) == "" {
		return fail(c, http.StatusBadRequest, "title is required")
	}
	if body.Status != "" && !model.ValidStatus(body.Status) {
		return fail(c, http.StatusBadRequest, "unknown status "+body.Status)
	}

	project, err := h.store.GetProjectByID(ctx, c.Param("project"))
	if err != nil {
		return h.fromError(c, err)
	}
	if project.Archived {
		return fail(c, http.StatusBadRequest, "project is archived")
	}

	task, err := h.store.CreateTask(ctx, model.Task{
		ProjectID:   project.ID,
		Title:       body.Title,
		Description: body.Description,
		Status:      body.Status,
		Priority:    body.Priority,
	})
	if err != nil {
		return h.fromError(c, err)
	}
	return c.JSON(http.StatusCreated, task)
}

func (h *handlers) moveTask(c echo.Context) error {
	ctx := c.Request().Context()
	var body moveRequest
	if err := decode(c, &body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if body.Index == nil {
		return fail(c, http.StatusBadRequest, "index is required")
	}

	res, err := h.mover.Reorder(ctx, reorder.Request{
		TaskID:      c.Param("id"),
		Column:      model.ColumnKey{ProjectID: body.ProjectID, Status: body.Status},
		Index:       *body.Index,
		RequesterID: c.Request().Header.Get(HeaderUserID),
	})
	if err != nil {
		return h.fromError(c, err)
	}

	if err := h.pub.PublishReorder(ctx, res.Moved.Column(), res); err != nil {
		h.logger.WithError(err).WithField("task", res.Moved.ID).Warn("publishing reorder event failed")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) rebalanceColumn(c echo.Context) error {
	ctx := c.Request().Context()
	col := model.ColumnKey{ProjectID: c.Param("project"), Status: c.Param("status")}
	if err := h.checkOwner(c, col.ProjectID); err != nil {
		return h.fromError(c, err)
	}

	updated, err := h.mover.RebalanceColumn(ctx, col)
	if err != nil {
		return h.fromError(c, err)
	}
	if err := h.pub.PublishRebalance(ctx, col, updated); err != nil {
		h.logger.WithError(err).WithField("column", col.String()).Warn("publishing rebalance event failed")
	}
	return c.JSON(http.StatusOK, rebalanceResponse{Affected: updated})
}

func (h *handlers) rebalanceProject(c echo.Context) error {
	ctx := c.Request().Context()
	projectID := c.Param("project")
	if err := h.checkOwner(c, projectID); err != nil {
		return h.fromError(c, err)
	}

	updated, err := h.mover.RebalanceProject(ctx, projectID)
	if err != nil {
		return h.fromError(c, err)
	}
	for _, status := range model.Statuses {
		col := model.ColumnKey{ProjectID: projectID, Status: status}
		var inColumn []model.Task
		for _, t := range updated {
			if t.Status == status {
				inColumn = append(inColumn, t)
			}
		}
		if err := h.pub.PublishRebalance(ctx, col, inColumn); err != nil {
			h.logger.WithError(err).WithField("column", col.String()).Warn("publishing rebalance event failed")
		}
	}
	if updated == nil {
		updated = []model.Task{}
	}
	return c.JSON(http.StatusOK, rebalanceResponse{Affected: updated})
}

// checkOwner loads the project and, when the request names a user, requires
// that user to own it.
func (h *handlers) checkOwner(c echo.Context, projectID string) error {
	project, err := h.store.GetProjectByID(c.Request().Context(), projectID)
	if err != nil {
		return err
	}
	if user := c.Request().Header.Get(HeaderUserID); user != "" && user != project.OwnerID {
		return fmt.Errorf("requester %s does not own project %s: %w", user, project.ID, reorder.ErrInvalidRequest)
	}
	return nil
}

// fromError maps domain errors to HTTP status codes. Anything unexpected is
// logged and reported as 500 without detail.
func (h *handlers) fromError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, reorder.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, reorder.ErrInvalidRequest):
		return fail(c, http.StatusBadRequest, err.Error())
	default:
		h.logger.WithError(err).WithFields(log.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
		}).Error("request failed")
		return fail(c, http.StatusInternalServerError, "internal error")
	}
}

func fail(c echo.Context, code int, msg string) error {
	return c.JSON(code, errorResponse{Error: msg})
}

func decode(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
