package commands

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/flowptr/painter-bridge/internal/audit"
	"github.com/flowptr/painter-bridge/internal/host"
	"github.com/flowptr/painter-bridge/internal/logger"
	"github.com/flowptr/painter-bridge/internal/rpc"
)

func (s *Surface) getVersion(context.Context, rpc.Params) (any, error) {
	return s.host.Version, nil
}

func (s *Surface) engineReady(context.Context, rpc.Params) (any, error) {
	logger.Info("commands: engine reported ready")
	if s.ready != nil {
		s.ready.SetReady(true)
	}
	return true, nil
}

func (s *Surface) currentProjectPath(context.Context, rpc.Params) (any, error) {
	p := s.host.Project
	if !p.IsOpen() || p.Path() == "" {
		return UntitledProject, nil
	}
	return p.Path(), nil
}

func (s *Surface) needsSaving(context.Context, rpc.Params) (any, error) {
	return s.host.Project.NeedsSaving(), nil
}

func (s *Surface) openProject(ctx context.Context, params rpc.Params) (any, error) {
	path, err := params.String("path")
	if err != nil {
		return nil, err
	}

	p := s.host.Project
	if p.IsOpen() && samePath(p.Path(), path) {
		return true, nil
	}
	if p.IsOpen() && p.NeedsSaving() {
		msg := "The current project has unsaved changes. Discard them and open " + filepath.Base(path) + "?"
		if !s.host.Dialogs.Confirm("Unsaved changes", msg) {
			logger.Info("commands: opening %s cancelled, current project has unsaved changes", path)
			return false, nil
		}
	}

	err = p.Open(path)
	s.record(ctx, audit.OpProjectOpen, err, map[string]interface{}{"path": path})
	if err != nil {
		logger.Error("commands: failed to open project %s: %v", path, err)
		return false, nil
	}
	return true, nil
}

func samePath(a, b string) bool {
	return a != "" && filepath.Clean(a) == filepath.Clean(b)
}

func (s *Surface) saveProject(ctx context.Context, _ rpc.Params) (any, error) {
	err := s.host.Project.Save()
	s.record(ctx, audit.OpProjectSave, err, map[string]interface{}{"path": s.host.Project.Path()})
	if err != nil {
		logger.Error("commands: failed to save project: %v", err)
		return false, nil
	}
	return true, nil
}

func (s *Surface) saveProjectAs(ctx context.Context, params rpc.Params) (any, error) {
	path, err := params.String("path")
	if err != nil {
		return nil, err
	}
	return s.saveAs(ctx, path), nil
}

func (s *Surface) saveProjectAsAction(ctx context.Context, _ rpc.Params) (any, error) {
	if !s.host.Project.IsOpen() {
		logger.Warn("commands: save as requested without an open project")
		return false, nil
	}
	path, err := s.host.Dialogs.SaveAsPath()
	if errors.Is(err, host.ErrCancelled) {
		return false, nil
	}
	if err != nil {
		logger.Error("commands: save as dialog failed: %v", err)
		return false, nil
	}
	return s.saveAs(ctx, path), nil
}

func (s *Surface) saveAs(ctx context.Context, path string) bool {
	err := s.host.Project.SaveAs(path)
	s.record(ctx, audit.OpProjectSave, err, map[string]interface{}{"path": path})
	if err != nil {
		logger.Error("commands: failed to save project as %s: %v", path, err)
		return false
	}
	return true
}

func (s *Surface) closeProject(ctx context.Context, _ rpc.Params) (any, error) {
	projectID := s.projectID()
	err := s.host.Project.Close()
	if s.audit != nil {
		s.audit.Record(audit.OpProjectClose, projectID, err, nil)
	}
	if err != nil {
		logger.Error("commands: failed to close project: %v", err)
		return false, nil
	}
	return true, nil
}

func (s *Surface) executeStatement(ctx context.Context, params rpc.Params) (any, error) {
	statement, err := params.String("statement")
	if err != nil {
		return nil, err
	}
	if !s.scripting {
		logger.Warn("commands: EXECUTE_STATEMENT refused, scripting is disabled")
		s.record(ctx, audit.OpScriptExecute, errors.New("scripting disabled"),
			map[string]interface{}{"statement": audit.Statement(statement)})
		return false, nil
	}

	result, err := s.host.Evaluator.Evaluate(ctx, statement)
	s.record(ctx, audit.OpScriptExecute, err, map[string]interface{}{"statement": audit.Statement(statement)})
	if err != nil {
		logger.Error("commands: statement failed: %v", err)
		return false, nil
	}
	return result, nil
}

func (s *Surface) extractThumbnail(_ context.Context, params rpc.Params) (any, error) {
	path, err := params.String("path")
	if err != nil {
		return nil, err
	}
	if err := s.host.Viewport.Thumbnail(path); err != nil {
		logger.Error("commands: failed to extract thumbnail to %s: %v", path, err)
		return false, nil
	}
	return true, nil
}

func (s *Surface) logAt(level host.LogLevel) func(context.Context, rpc.Params) (any, error) {
	return func(_ context.Context, params rpc.Params) (any, error) {
		message, err := params.OptionalString("message", "")
		if err != nil {
			return nil, err
		}
		s.host.Console.Log(level, message)
		return true, nil
	}
}

func (s *Surface) toggleDebugLogging(_ context.Context, params rpc.Params) (any, error) {
	enabled, err := params.Bool("enabled")
	if err != nil {
		return nil, err
	}
	logger.SetDebug(enabled)
	logger.Info("commands: debug logging %s", map[bool]string{true: "enabled", false: "disabled"}[enabled])
	return enabled, nil
}
