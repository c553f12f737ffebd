package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/board"
	"taskboard-api/domain"
)

const (
	requestBodyMaxSize = 1 << 20
	activityTimeout    = 5 * time.Second
)

// Register wires up all API routes on the provided Echo instance. The
// returned session manager must be closed on shutdown to drain pending
// persistence work.
func Register(e *echo.Echo, svc RecordService, auth Authenticator, deduper Deduper, logger *log.Logger) *SessionManager {
	opts := board.Options{
		Workers:        envInt("MOVE_WORKERS", 0),
		QueueSize:      envInt("MOVE_QUEUE_SIZE", 0),
		PersistTimeout: envDur("MOVE_PERSIST_TIMEOUT", 0),
		HandoffTimeout: envDur("MOVE_HANDOFF_TIMEOUT", 0),
	}
	sessions := NewSessionManager(svc, logger, opts, envDur("SESSION_IDLE_TTL", time.Hour))

	e.GET("/api/tasks", getTasks(sessions, auth))
	e.GET("/api/board", getBoard(sessions, auth))
	e.GET("/api/stats", getStats(sessions, auth))
	e.GET("/api/notifications", getNotifications(sessions, auth))
	e.POST("/api/tasks", createTask(sessions, svc, auth, logger))
	e.PATCH("/api/tasks/:id", updateTask(sessions, svc, auth, logger))
	e.DELETE("/api/tasks/:id", deleteTask(sessions, svc, auth, logger))
	e.POST("/api/tasks/:id/move", moveTask(sessions, svc, auth, deduper, logger))
	e.PUT("/api/tasks/:id/tags", replaceTags(sessions, svc, auth, logger))
	e.GET("/api/tasks/stream", streamBoard(sessions, auth))
	e.DELETE("/api/session", endSession(sessions, auth))
	e.GET("/healthz", healthz())

	return sessions
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getTasks(sessions *SessionManager, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		filters := domain.Filters{
			Status:   domain.Status(c.QueryParam("status")),
			Priority: domain.Priority(c.QueryParam("priority")),
			Search:   c.QueryParam("search"),
		}
		if filters.Status != "" && !filters.Status.Valid() {
			return c.String(http.StatusBadRequest, "unknown status")
		}
		if filters.Priority != "" && !filters.Priority.Valid() {
			return c.String(http.StatusBadRequest, "unknown priority")
		}

		sortBy := domain.DefaultSort()
		if col := c.QueryParam("sortBy"); col != "" {
			switch col {
			case "created_at", "updated_at", "due_date", "position", "title", "description", "status", "priority":
				sortBy.Column = col
			default:
				return c.String(http.StatusBadRequest, "unknown sort column")
			}
			sortBy.Ascending = true
		}
		if v := c.QueryParam("ascending"); v != "" {
			asc, parseErr := strconv.ParseBool(v)
			if parseErr != nil {
				return c.String(http.StatusBadRequest, "invalid ascending flag")
			}
			sortBy.Ascending = asc
		}

		sess, err := sessions.Acquire(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		tasks := domain.Project(sess.Store.Snapshot(), filters, sortBy)
		return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
	}
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

func getBoard(sessions *SessionManager, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		sess, err := sessions.Acquire(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, boardResponse{Columns: domain.Board(sess.Store.Snapshot())})
	}
}

type boardResponse struct {
	Columns []domain.BoardColumn `json:"columns"`
}

func getStats(sessions *SessionManager, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		sess, err := sessions.Acquire(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, sess.Store.Stats())
	}
}

func getNotifications(sessions *SessionManager, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		notes := sessions.Notifications(userID)
		if notes == nil {
			notes = []board.Notification{}
		}
		return c.JSON(http.StatusOK, notificationsResponse{Notifications: notes})
	}
}

type notificationsResponse struct {
	Notifications []board.Notification `json:"notifications"`
}

type createTaskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      domain.Status   `json:"status"`
	Priority    domain.Priority `json:"priority"`
	DueDate     time.Time       `json:"due_date"`
	TagIDs      []string        `json:"tag_ids"`
	CategoryID  string          `json:"category_id"`
}

func createTask(sessions *SessionManager, svc RecordService, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createTaskRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Status == "" {
			req.Status = domain.StatusToDo
		}
		if req.Priority == "" {
			req.Priority = domain.PriorityMedium
		}

		sess, err := sessions.Acquire(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		now := time.Now().UTC()
		positions := sess.Store.ColumnPositions(req.Status, "")
		task := domain.Task{
			ID:          uuid.NewString(),
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
			Priority:    req.Priority,
			DueDate:     req.DueDate,
			Position:    domain.AllocatePosition(positions, len(positions)),
			CategoryID:  req.CategoryID,
			Owner:       userID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := task.Validate(); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}

		if err := svc.InsertTask(ctx, userID, task); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if len(req.TagIDs) > 0 {
			if err := svc.ReplaceTaskTags(ctx, userID, task.ID, req.TagIDs); err != nil {
				// The row exists without its tags; surface the failure but keep
				// the store consistent with what was written.
				sess.Store.Insert(task)
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, "task created but tags were not saved")
			}
			task.TagIDs = append([]string(nil), req.TagIDs...)
		}
		sess.Store.Insert(task)
		recordActivity(svc, logger, userID, task.ID, domain.ActivityTaskCreated, task)

		return c.JSON(http.StatusCreated, task)
	}
}

func updateTask(sessions *SessionManager, svc RecordService, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		taskID := c.Param("id")

		var patch domain.TaskPatch
		if err := decodeBody(c.Request().Body, &patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if patch.TagIDs != nil {
			return c.String(http.StatusBadRequest, "tags are managed through the tags endpoint")
		}
		if patch.Empty() {
			return c.String(http.StatusBadRequest, "empty patch")
		}
		if err := patch.Validate(); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}

		sess, err := sessions.Acquire(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		if err := svc.UpdateTaskFields(ctx, userID, taskID, patch); err != nil {
			if errors.Is(err, domain.ErrTaskNotFound) {
				return c.String(http.StatusNotFound, "task not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		sess.Store.Patch(taskID, patch)
		recordActivity(svc, logger, userID, taskID, domain.ActivityTaskUpdated, patch)

		task, ok := sess.Store.Get(taskID)
		if !ok {
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(sessions *SessionManager, svc RecordService, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		taskID := c.Param("id")

		sess, err := sessions.Acquire(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		if err := svc.DeleteTask(ctx, userID, taskID); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		sess.Store.Remove(taskID)
		recordActivity(svc, logger, userID, taskID, domain.ActivityTaskDeleted, nil)

		return c.NoContent(http.StatusNoContent)
	}
}

type moveRequest struct {
	Column domain.Status `json:"column"`
	Index  int           `json:"index"`
}

type moveResponse struct {
	board.MoveResult
	Duplicate bool `json:"duplicate,omitempty"`
}

func moveTask(sessions *SessionManager, svc RecordService, auth Authenticator, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newMoveRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}
		taskID := c.Param("id")

		var req moveRequest
		if decodeErr := decodeBody(c.Request().Body, &req); decodeErr != nil {
			metrics.SetErrorStage("invalid_body")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}
		if !req.Column.Valid() {
			metrics.SetErrorStage("invalid_column")
			err = c.String(http.StatusBadRequest, "unknown column")
			return err
		}
		if req.Index < 0 {
			metrics.SetErrorStage("invalid_index")
			err = c.String(http.StatusBadRequest, "negative index")
			return err
		}
		metrics.SetDestination(string(req.Column), req.Index)

		dedupeKey := ""
		if key := c.Request().Header.Get("Idempotency-Key"); key != "" {
			added, dedupeErr := deduper.Add(ctx, userID, key)
			if dedupeErr != nil {
				// Dedupe is advisory; a Redis outage must not block moves.
				logger.WithField("error", dedupeErr.Error()).Warn("idempotency check failed; proceeding")
			} else if !added {
				metrics.SetDuplicate(true)
				err = c.JSON(http.StatusAccepted, moveResponse{Duplicate: true})
				return err
			} else {
				dedupeKey = key
			}
		}

		sess, acquireErr := sessions.Acquire(ctx, userID)
		if acquireErr != nil {
			metrics.SetErrorStage("session")
			c.Logger().Error(acquireErr)
			err = c.String(http.StatusInternalServerError, acquireErr.Error())
			return err
		}

		applyStart := time.Now()
		result := sess.Coordinator.Move(taskID, req.Column, req.Index)
		metrics.ObserveApply(time.Since(applyStart))
		metrics.SetApplied(result.Applied)
		if result.Applied {
			recordActivity(svc, logger, userID, taskID, domain.ActivityTaskMoved, req)
		} else if dedupeKey != "" {
			// Nothing was applied, so the gesture may honestly be retried.
			if removeErr := deduper.Remove(ctx, userID, dedupeKey); removeErr != nil {
				logger.WithField("error", removeErr.Error()).Warn("idempotency key release failed")
			}
		}

		err = c.JSON(http.StatusAccepted, moveResponse{MoveResult: result})
		return err
	}
}

type replaceTagsRequest struct {
	TagIDs []string `json:"tag_ids"`
}

func replaceTags(sessions *SessionManager, svc RecordService, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		taskID := c.Param("id")

		var req replaceTagsRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.TagIDs == nil {
			req.TagIDs = []string{}
		}

		sess, err := sessions.Acquire(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if _, ok := sess.Store.Get(taskID); !ok {
			return c.String(http.StatusNotFound, "task not found")
		}

		if err := svc.ReplaceTaskTags(ctx, userID, taskID, req.TagIDs); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		tagIDs := req.TagIDs
		sess.Store.Patch(taskID, domain.TaskPatch{TagIDs: &tagIDs})
		recordActivity(svc, logger, userID, taskID, domain.ActivityTaskUpdated, req)

		task, _ := sess.Store.Get(taskID)
		return c.JSON(http.StatusOK, task)
	}
}

func endSession(sessions *SessionManager, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		sessions.Evict(userID)
		return c.NoContent(http.StatusNoContent)
	}
}

func decodeBody(body io.Reader, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(body, requestBodyMaxSize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// recordActivity publishes a best-effort activity event. Failures are logged
// and never surfaced to the caller.
func recordActivity(svc RecordService, logger *log.Logger, userID, taskID, activityType string, detail any) {
	var raw sonic.NoCopyRawMessage
	if detail != nil {
		if data, err := sonic.Marshal(detail); err == nil {
			raw = data
		}
	}
	activity := domain.Activity{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Type:      activityType,
		Detail:    raw,
		Timestamp: time.Now().UnixMilli(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), activityTimeout)
		defer cancel()
		if err := svc.EnqueueActivity(ctx, userID, []domain.Activity{activity}); err != nil {
			logger.WithField("error", err.Error()).Warn("activity enqueue failed")
		}
	}()
}
