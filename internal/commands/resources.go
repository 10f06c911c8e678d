package commands

import (
	"context"
	"errors"

	"github.com/flowptr/painter-bridge/internal/audit"
	"github.com/flowptr/painter-bridge/internal/logger"
	"github.com/flowptr/painter-bridge/internal/rpc"
	"github.com/flowptr/painter-bridge/internal/settings"
	"github.com/flowptr/painter-bridge/internal/staleness"
	"github.com/flowptr/painter-bridge/internal/validation"
)

func (s *Surface) importProjectResource(ctx context.Context, params rpc.Params) (any, error) {
	path, err := params.String("path")
	if err != nil {
		return nil, err
	}
	usage, err := params.OptionalString("usage", "")
	if err != nil {
		return nil, err
	}
	destination, err := params.OptionalString("destination", "")
	if err != nil {
		return nil, err
	}
	if err := validation.ResourceDestination(destination); err != nil {
		return nil, rpc.BadRequest("destination", err.Error())
	}

	url, err := s.host.Resources.Import(path, usage, destination)
	s.record(ctx, audit.OpResourceImport, err, map[string]interface{}{
		"path": path, "usage": usage, "destination": destination, "url": url,
	})
	if err != nil {
		logger.Error("commands: failed to import %s: %v", path, err)
		return nil, nil
	}

	s.track(url, path, usage, destination)
	return url, nil
}

// track records an import for later staleness checks. Failures are logged
// only: the import itself already succeeded.
func (s *Surface) track(url, path, usage, destination string) {
	projectID := s.projectID()
	if s.settings == nil || projectID == "" {
		return
	}
	if err := s.settings.Set(projectID, settings.LoaderNamespace, url, path); err != nil {
		logger.Error("commands: failed to record import of %s: %v", path, err)
	}

	rec := &settings.ResourceRecord{
		ProjectID:   projectID,
		URL:         url,
		Path:        path,
		Usage:       usage,
		Destination: destination,
	}
	if state, err := staleness.Fingerprint(path); err != nil {
		logger.Warn("commands: failed to fingerprint %s: %v", path, err)
	} else {
		rec.Fingerprint = state.Fingerprint
		rec.Size = state.Size
		rec.ModTime = state.ModTime
	}
	if err := s.settings.PutRecord(rec); err != nil {
		logger.Error("commands: failed to store resource record for %s: %v", url, err)
	}
}

func (s *Surface) projectSettings(_ context.Context, params rpc.Params) (any, error) {
	key, err := params.String("key")
	if err != nil {
		return nil, err
	}
	if err := validation.SettingsKey(key); err != nil {
		return nil, rpc.BadRequest("key", err.Error())
	}
	projectID := s.projectID()
	if projectID == "" || s.settings == nil {
		return nil, nil
	}
	values, err := s.settings.Namespace(projectID, key)
	if err != nil {
		logger.Error("commands: failed to read project settings %s: %v", key, err)
		return nil, nil
	}
	return values, nil
}

func (s *Surface) resourceInfo(_ context.Context, params rpc.Params) (any, error) {
	url, err := params.String("url")
	if err != nil {
		return nil, err
	}
	info, err := s.host.Resources.Info(url)
	if err != nil {
		logger.Warn("commands: no resource info for %s: %v", url, err)
		return nil, nil
	}
	return info, nil
}

func (s *Surface) updateDocumentResources(ctx context.Context, params rpc.Params) (any, error) {
	oldURL, err := params.String("old_url")
	if err != nil {
		return nil, err
	}
	newURL, err := params.String("new_url")
	if err != nil {
		return nil, err
	}

	n, err := s.host.Resources.Replace(oldURL, newURL)
	s.record(ctx, audit.OpResourceReplace, err, map[string]interface{}{
		"old_url": oldURL, "new_url": newURL, "replaced": n,
	})
	if err != nil {
		logger.Error("commands: failed to replace %s with %s: %v", oldURL, newURL, err)
		return false, nil
	}
	if n > 0 {
		s.untrack(oldURL)
	}
	return true, nil
}

// untrack forgets a resource the document no longer uses, so the staleness
// sweep stops checking its file.
func (s *Surface) untrack(url string) {
	projectID := s.projectID()
	if s.settings == nil || projectID == "" {
		return
	}
	path, err := s.settings.Get(projectID, settings.LoaderNamespace, url)
	if errors.Is(err, settings.ErrNotFound) {
		return
	}
	if err != nil {
		logger.Error("commands: failed to look up tracked resource %s: %v", url, err)
		return
	}
	if err := s.settings.Delete(projectID, settings.LoaderNamespace, url); err != nil {
		logger.Error("commands: failed to drop loader entry for %s: %v", url, err)
	}
	if err := s.settings.DeleteRecord(projectID, url); err != nil {
		logger.Error("commands: failed to drop resource record for %s: %v", url, err)
	}
	logger.Debug("commands: stopped tracking %s (%s)", url, string(path))
}

func (s *Surface) documentResources(context.Context, rpc.Params) (any, error) {
	urls, err := s.host.Resources.InUse()
	if err != nil {
		logger.Error("commands: failed to list document resources: %v", err)
		return nil, nil
	}
	if urls == nil {
		urls = []string{}
	}
	return urls, nil
}
