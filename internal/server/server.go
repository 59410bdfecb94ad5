package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"teamtask/internal/engine"
	"teamtask/internal/engine/auth"
)

// Config for the HTTP API handler.
type Config struct {
	Engine         engine.Engine
	BasePath       string
	Auth           AuthConfig
	RequestTimeout time.Duration
	Logger         log.FieldLogger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"access denied: required role Manager, you are Member"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"required\":[\"Manager\"],\"current\":\"Member\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the task API.
func New(cfg Config) (http.Handler, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("jwt secret not configured")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	configureHuma()
	h := handlers{e: cfg.Engine, auth: cfg.Auth, log: logger}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(newRequestLogger(logger))
	router.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	router.Use(newAuthMiddleware(basePath, h))

	hcfg := huma.DefaultConfig("Team Task API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, h)
	registerUsers(group, h)
	registerTasks(group, h)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

var humaOnce sync.Once

// configureHuma routes huma's own errors through the API envelope. The hooks
// are package-level in huma, so they are installed once per process.
func configureHuma() {
	humaOnce.Do(func() {
		huma.DefaultArrayNullable = false
		huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
			return newAPIError(status, "", msg, nil)
		}
		huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
			if status == http.StatusUnprocessableEntity {
				// Schema and body decoding failures are client input errors.
				status = http.StatusBadRequest
			}
			var details map[string]any
			if len(errs) > 0 {
				details = map[string]any{"errors": errs}
			}
			return newAPIError(status, "", msg, details)
		}
	})
}

type handlers struct {
	e    engine.Engine
	auth AuthConfig
	log  log.FieldLogger
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine errors to the API envelope. Errors without a
// denial kind are internal and their text is not exposed.
func (h handlers) handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, string(auth.KindForbidden), err.Error(), map[string]any{
			"required": fe.RequiredNames(),
			"current":  fe.Actual.String(),
		})
	}
	var nf auth.NotFoundError
	if errors.As(err, &nf) {
		return newAPIError(http.StatusNotFound, string(auth.KindNotFound), err.Error(), map[string]any{
			"entity": nf.Entity,
			"id":     nf.ID,
		})
	}
	var ve auth.ValidationError
	if errors.As(err, &ve) {
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field, "reason": ve.Reason}
		}
		return newAPIError(http.StatusBadRequest, string(auth.KindValidation), err.Error(), details)
	}
	if kind, ok := auth.KindOf(err); ok && kind == auth.KindUnauthenticated {
		return newAPIError(http.StatusUnauthorized, string(auth.KindUnauthenticated), err.Error(), nil)
	}
	h.log.WithError(err).Error("request failed")
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(auth.KindValidation)
	case http.StatusUnauthorized:
		return string(auth.KindUnauthenticated)
	case http.StatusForbidden:
		return string(auth.KindForbidden)
	case http.StatusNotFound:
		return string(auth.KindNotFound)
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// newRequestLogger logs one line per request.
func newRequestLogger(logger log.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			entry := logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("request")
				return
			}
			entry.Info("request")
		})
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			decorateOpenAPI(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

// decorateOpenAPI declares both auth schemes, marks every operation except
// health and login as secured, and points default responses at ApiError.
func decorateOpenAPI(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	secured := []map[string][]string{{"bearerAuth": {}}, {"apiKeyAuth": {}}}
	oas.Security = secured
	public := map[string]bool{
		path.Join(basePath, "health"):     true,
		path.Join(basePath, "auth/login"): true,
	}
	errorResponse := &huma.Response{
		Description: "Error envelope",
		Content: map[string]*huma.MediaType{
			"application/json": {Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"}},
		},
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = errorResponse
			if public[route] {
				op.Security = []map[string][]string{}
			} else {
				op.Security = secured
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Team Task API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange email and password for a token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		u, err := h.e.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, h.handleError(err)
		}
		token, expires, err := IssueToken(h.auth, u, time.Now())
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{
			Token:     token,
			ExpiresAt: expires.UTC().Format(time.RFC3339),
			User:      userResponse(u),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		u, err := h.e.Me(ctx, actor(ctx))
		if err != nil {
			return nil, h.handleError(err)
		}
		p, _ := principalFromContext(ctx)
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{UserResponse: userResponse(u), Source: p.Source}}, nil
	})
}

func registerUsers(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body usersList `json:"body"`
	}, error) {
		users, err := h.e.ListUsers(ctx, actor(ctx))
		if err != nil {
			return nil, h.handleError(err)
		}
		items := make([]UserResponse, 0, len(users))
		for _, u := range users {
			items = append(items, userResponse(u))
		}
		return &struct {
			Body usersList `json:"body"`
		}{Body: usersList{Items: items, Count: len(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		u, err := h.e.CreateUser(ctx, actor(ctx), engine.UserCreateOptions{
			ID:       input.Body.ID,
			Name:     input.Body.Name,
			Email:    input.Body.Email,
			Role:     input.Body.Role,
			Password: input.Body.Password,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-user-role",
		Method:      http.MethodPatch,
		Path:        "/users/{id}/role",
		Summary:     "Change a user's role",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body SetRoleRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		u, err := h.e.SetUserRole(ctx, actor(ctx), input.ID, input.Body.Role)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})
}

func registerTasks(api huma.API, h handlers) {
	taskErrors := []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		Description:   "Requires the Manager role or higher. The assignee must exist.",
		DefaultStatus: http.StatusCreated,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := h.e.CreateTask(ctx, actor(ctx), engine.TaskCreateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			AssignedTo:  input.Body.AssignedTo,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Description: "Members only ever see tasks assigned to them; the assignee filter applies to Managers and Admins.",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		Assignee string `query:"assignee"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		tasks, err := h.e.ListTasks(ctx, actor(ctx), engine.TaskListOptions{
			AssignedTo:      input.Assignee,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		resp := paginatedTasks{}
		if len(tasks) > limit {
			last := tasks[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			tasks = tasks[:limit]
		}
		resp.Items = mapTasks(tasks)
		resp.Count = len(resp.Items)
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-stats",
		Method:      http.MethodGet,
		Path:        "/tasks/stats",
		Summary:     "Count visible tasks per status",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		Assignee string `query:"assignee"`
	}) (*struct {
		Body TaskStatsResponse `json:"body"`
	}, error) {
		counts, err := h.e.TaskStats(ctx, actor(ctx), engine.TaskListOptions{AssignedTo: input.Assignee})
		if err != nil {
			return nil, h.handleError(err)
		}
		resp := TaskStatsResponse{Counts: make(map[string]int, len(counts))}
		for status, n := range counts {
			resp.Counts[string(status)] = n
			resp.Total += n
		}
		return &struct {
			Body TaskStatsResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := h.e.GetTask(ctx, actor(ctx), input.ID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	update := func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := h.e.UpdateTask(ctx, actor(ctx), input.ID, input.Body.patch())
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	}
	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Description: "Members may only change the status of tasks assigned to them; other fields they send are ignored.",
		Errors:      taskErrors,
	}, update)
	huma.Register(api, huma.Operation{
		OperationID: "replace-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Description: "Same semantics as PATCH.",
		Errors:      taskErrors,
	}, update)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task",
		Description:   "Requires the Manager role or higher.",
		DefaultStatus: http.StatusNoContent,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := h.e.DeleteTask(ctx, actor(ctx), input.ID); err != nil {
			return nil, h.handleError(err)
		}
		return &struct{}{}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
