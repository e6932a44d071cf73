package tools

import (
	"context"
	"fmt"

	"github.com/roelfdiedericks/wamcp/internal/clickup"
	. "github.com/roelfdiedericks/wamcp/internal/logging"
)

// CreateTaskToolName is the registered name of the ClickUp task tool.
const CreateTaskToolName = "create_clickup_task"

// TaskCreator creates a task in the task tracker.
type TaskCreator interface {
	Configured() bool
	CreateTask(ctx context.Context, name, description string) (clickup.Task, error)
}

// CreateTaskTool creates a ClickUp task in the first list of the first space.
type CreateTaskTool struct {
	tracker TaskCreator
}

// NewCreateTaskTool creates the task tool.
func NewCreateTaskTool(tracker TaskCreator) *CreateTaskTool {
	return &CreateTaskTool{tracker: tracker}
}

func (t *CreateTaskTool) Name() string {
	return CreateTaskToolName
}

func (t *CreateTaskTool) Description() string {
	return "Create a ClickUp task. The task lands in the first list of the first space of the first team."
}

func (t *CreateTaskTool) Schema() map[string]any {
	return objectSchema([]string{"task_name"}, map[string]string{
		"task_name":   "Task title",
		"description": "Optional task description",
	})
}

func (t *CreateTaskTool) Execute(ctx context.Context, params Params) Result {
	name, err := params.Required("task_name", "Task name (task_name)")
	if err != nil {
		return FailErr(err)
	}
	description := params.Optional("description", "")

	if t.tracker == nil || !t.tracker.Configured() {
		return Fail("ClickUp API key not configured in environment variables")
	}

	task, err := t.tracker.CreateTask(ctx, name, description)
	if err != nil {
		L_error("clickup: create task failed", "task", name, "error", err)
		return FailErr(err)
	}

	L_info("clickup: task created", "id", task.ID)
	return OK(map[string]any{
		"taskId":   task.ID,
		"taskName": task.Name,
		"taskUrl":  task.URL,
		"message":  fmt.Sprintf("Task \"%s\" created successfully in ClickUp!", name),
	})
}
