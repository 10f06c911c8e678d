package commands

import (
	"context"

	"github.com/flowptr/painter-bridge/internal/audit"
	"github.com/flowptr/painter-bridge/internal/host"
	"github.com/flowptr/painter-bridge/internal/logger"
	"github.com/flowptr/painter-bridge/internal/rpc"
)

func (s *Surface) projectExportPath(context.Context, rpc.Params) (any, error) {
	path, err := s.host.Exporter.ExportPath()
	if err != nil {
		logger.Error("commands: failed to get export path: %v", err)
		return nil, nil
	}
	return path, nil
}

func (s *Surface) mapExportInformation(context.Context, rpc.Params) (any, error) {
	info, err := s.host.Exporter.MapInformation()
	if err != nil {
		logger.Error("commands: failed to get map export information: %v", err)
		return nil, nil
	}
	return info, nil
}

// exportDocumentMaps pushes EXPORT_STARTED before the export and
// EXPORT_FINISHED with the exported maps after it, whatever the outcome.
func (s *Surface) exportDocumentMaps(ctx context.Context, params rpc.Params) (any, error) {
	destination, err := params.OptionalString("destination", "")
	if err != nil {
		return nil, err
	}

	s.notify(EventExportStarted, map[string]any{"destination": destination})

	info, err := s.host.Exporter.Export(destination)
	s.record(ctx, audit.OpExportMaps, err, map[string]interface{}{"destination": destination})
	if err != nil {
		logger.Error("commands: export to %s failed: %v", destination, err)
		info = host.MapExportInfo{}
	}

	s.notify(EventExportFinished, map[string]any{"map_infos": info})
	return err == nil, nil
}
