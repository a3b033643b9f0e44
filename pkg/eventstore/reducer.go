package eventstore

import (
	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// Reduce applies one event to a task projection and returns the new
// projection. It is a pure function of (task, event): replaying a log
// through Reduce from nil yields the task's current state.
//
// The input task is not mutated; Reduce works on a clone.
func Reduce(task *protocol.Task, ev protocol.Event) *protocol.Task {
	next := task.Clone()

	switch {
	case ev.Task != nil:
		// Snapshot replaces the projection wholesale.
		return ev.Task.Clone()

	case ev.Message != nil:
		if next == nil {
			next = shellTask(ev)
		}
		// Only messages addressed to this task enter its history.
		if ev.Message.TaskID == next.ID {
			next.History = append(next.History, *ev.Message)
		}

	case ev.StatusUpdate != nil:
		if next == nil {
			next = shellTask(ev)
		}
		su := ev.StatusUpdate
		next.Status = su.Status
		// A status message is part of the conversation record.
		if su.Status.Message != nil {
			next.History = append(next.History, *su.Status.Message)
		}

	case ev.ArtifactUpdate != nil:
		if next == nil {
			next = shellTask(ev)
		}
		applyArtifact(next, ev.ArtifactUpdate)
	}

	return next
}

// Replay folds a sequence of events into a projection.
func Replay(events []protocol.Event) *protocol.Task {
	var task *protocol.Task
	for _, ev := range events {
		task = Reduce(task, ev)
	}
	return task
}

// shellTask builds a minimal projection for logs that do not start with a
// snapshot.
func shellTask(ev protocol.Event) *protocol.Task {
	return &protocol.Task{
		ID:        ev.TaskRef(),
		ContextID: ev.ContextRef(),
		Status:    protocol.TaskStatus{State: protocol.TaskStateSubmitted},
	}
}

// applyArtifact merges an artifact update into the projection: append
// concatenates parts onto the matching artifact, otherwise the artifact is
// replaced (or added) by id.
func applyArtifact(task *protocol.Task, au *protocol.TaskArtifactUpdate) {
	for i := range task.Artifacts {
		if task.Artifacts[i].ArtifactID != au.Artifact.ArtifactID {
			continue
		}
		if au.Append {
			task.Artifacts[i].Parts = append(task.Artifacts[i].Parts, au.Artifact.Parts...)
			if au.Artifact.Name != "" {
				task.Artifacts[i].Name = au.Artifact.Name
			}
			if au.Artifact.Description != "" {
				task.Artifacts[i].Description = au.Artifact.Description
			}
		} else {
			task.Artifacts[i] = au.Artifact
		}
		return
	}
	// Unknown artifact id: append chunks still create the artifact.
	task.Artifacts = append(task.Artifacts, au.Artifact)
}
