package protocol

import "time"

// SendMessageConfiguration tunes a send call.
type SendMessageConfiguration struct {
	// Blocking defaults to true: the call returns only after the run ends.
	// When false the call returns the task in its current state once the
	// run has started.
	Blocking            *bool    `json:"blocking,omitempty"`
	HistoryLength       *int     `json:"historyLength,omitempty"`
	AcceptedOutputModes []string `json:"acceptedOutputModes,omitempty"`
}

// SendMessageParams are the parameters of SendMessage and
// SendStreamingMessage.
type SendMessageParams struct {
	Message       Message                   `json:"message"`
	Configuration *SendMessageConfiguration `json:"configuration,omitempty"`
	Metadata      map[string]any            `json:"metadata,omitempty"`
}

// Validate checks the incoming message and configuration.
func (p *SendMessageParams) Validate() *Error {
	if err := p.Message.Validate(); err != nil {
		return ErrInvalidParams("message: %v", err)
	}
	if p.Configuration != nil && p.Configuration.HistoryLength != nil && *p.Configuration.HistoryLength < 0 {
		return ErrInvalidParams("configuration.historyLength must not be negative")
	}
	return nil
}

// GetTaskParams are the parameters of GetTask.
type GetTaskParams struct {
	ID            string `json:"id"`
	HistoryLength *int   `json:"historyLength,omitempty"`
}

func (p *GetTaskParams) Validate() *Error {
	if p.ID == "" {
		return ErrInvalidParams("id is required")
	}
	if p.HistoryLength != nil && *p.HistoryLength < 0 {
		return ErrInvalidParams("historyLength must not be negative")
	}
	return nil
}

// ListTasksParams are the parameters of ListTasks.
type ListTasksParams struct {
	ContextID            string     `json:"contextId,omitempty"`
	Status               TaskState  `json:"status,omitempty"`
	StatusTimestampAfter *time.Time `json:"statusTimestampAfter,omitempty"`
	PageSize             int        `json:"pageSize,omitempty"`
	PageToken            string     `json:"pageToken,omitempty"`
	HistoryLength        *int       `json:"historyLength,omitempty"`
	IncludeArtifacts     bool       `json:"includeArtifacts,omitempty"`
}

func (p *ListTasksParams) Validate() *Error {
	if p.Status != "" && !p.Status.Valid() {
		return ErrInvalidParams("unknown status %q", string(p.Status))
	}
	if p.PageSize < 0 {
		return ErrInvalidParams("pageSize must not be negative")
	}
	if p.HistoryLength != nil && *p.HistoryLength < 0 {
		return ErrInvalidParams("historyLength must not be negative")
	}
	return nil
}

// ListTasksResult is the page returned by ListTasks.
type ListTasksResult struct {
	Tasks         []Task `json:"tasks"`
	NextPageToken string `json:"nextPageToken,omitempty"`
	PageSize      int    `json:"pageSize"`
	TotalSize     int    `json:"totalSize"`
}

// TaskIDParams name a task, for CancelTask and SubscribeToTask.
type TaskIDParams struct {
	ID string `json:"id"`
}

func (p *TaskIDParams) Validate() *Error {
	if p.ID == "" {
		return ErrInvalidParams("id is required")
	}
	return nil
}

// PushNotificationAuthInfo describes how the engine authenticates to a
// push endpoint.
type PushNotificationAuthInfo struct {
	Schemes     []string `json:"schemes,omitempty"`
	Credentials string   `json:"credentials,omitempty"`
}

// PushNotificationConfig is a registered push-notification target for a task.
type PushNotificationConfig struct {
	TaskID         string                    `json:"taskId,omitempty"`
	ConfigID       string                    `json:"configId,omitempty"`
	URL            string                    `json:"url"`
	Token          string                    `json:"token,omitempty"`
	Authentication *PushNotificationAuthInfo `json:"authentication,omitempty"`
}

// CreatePushConfigParams are the parameters of
// CreateTaskPushNotificationConfig.
type CreatePushConfigParams struct {
	TaskID string                 `json:"taskId"`
	Config PushNotificationConfig `json:"config"`
}

func (p *CreatePushConfigParams) Validate() *Error {
	if p.TaskID == "" {
		return ErrInvalidParams("taskId is required")
	}
	if p.Config.URL == "" {
		return ErrInvalidParams("config.url is required")
	}
	return nil
}

// PushConfigIDParams name one push config of a task.
type PushConfigIDParams struct {
	TaskID   string `json:"taskId"`
	ConfigID string `json:"configId"`
}

func (p *PushConfigIDParams) Validate() *Error {
	if p.TaskID == "" {
		return ErrInvalidParams("taskId is required")
	}
	if p.ConfigID == "" {
		return ErrInvalidParams("configId is required")
	}
	return nil
}

// ListPushConfigsParams name a task whose push configs are listed.
type ListPushConfigsParams struct {
	TaskID string `json:"taskId"`
}

func (p *ListPushConfigsParams) Validate() *Error {
	if p.TaskID == "" {
		return ErrInvalidParams("taskId is required")
	}
	return nil
}
