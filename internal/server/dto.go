package server

import (
	"teamtask/internal/domain"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type CreateUserRequest struct {
	ID       string `json:"id,omitempty" doc:"Optional user id; generated when empty"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role" enum:"Admin,Manager,Member,admin,manager,member"`
	Password string `json:"password" minLength:"6"`
}

type SetRoleRequest struct {
	Role string `json:"role" enum:"Admin,Manager,Member,admin,manager,member"`
}

type CreateTaskRequest struct {
	Title       string `json:"title" maxLength:"200"`
	Description string `json:"description" maxLength:"5000"`
	AssignedTo  string `json:"assigned_to" doc:"Id of the user the task is assigned to"`
}

// UpdateTaskRequest is a partial update. Members may only change status;
// any other field they send is ignored. Unknown properties are accepted so a
// fetched task can be sent back as is.
type UpdateTaskRequest struct {
	_           struct{} `json:"-" additionalProperties:"true"`
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	AssignedTo  *string  `json:"assigned_to,omitempty"`
	Status      *string  `json:"status,omitempty" doc:"ToDo, InProgress or Done"`
}

func (r UpdateTaskRequest) patch() domain.TaskPatch {
	p := domain.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		AssignedTo:  r.AssignedTo,
	}
	if r.Status != nil {
		s := domain.Status(*r.Status)
		p.Status = &s
	}
	return p
}

// Response payloads

type TaskResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignedTo  string `json:"assigned_to"`
	CreatedBy   string `json:"created_by"`
	Status      string `json:"status" enum:"ToDo,InProgress,Done"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		AssignedTo:  t.AssignedTo,
		CreatedBy:   t.CreatedBy,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	Count      int            `json:"count"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type TaskStatsResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role" enum:"Admin,Manager,Member"`
	CreatedAt string `json:"created_at,omitempty"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role.String(),
		CreatedAt: u.CreatedAt,
	}
}

type usersList struct {
	Items []UserResponse `json:"items"`
	Count int            `json:"count"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      UserResponse `json:"user"`
}

type MeResponse struct {
	UserResponse
	Source string `json:"source" enum:"jwt,api_key"`
}
