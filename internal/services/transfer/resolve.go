package transfer

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/boubkhaled/streampump/internal/models"
	"github.com/boubkhaled/streampump/internal/pump/contracts"
	"github.com/boubkhaled/streampump/internal/pump/sinks"
	"github.com/boubkhaled/streampump/internal/pump/sources"
)

// SpoolPath confines a request-supplied relative path to the spool
// directory. Traversal outside the spool dir is rejected.
func SpoolPath(spoolDir, rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if strings.Contains(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid path %q: must be relative to the spool directory", rel)
	}
	return filepath.Join(spoolDir, cleaned), nil
}

// hostOf extracts the breaker key for a remote source.
func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return u.Host, nil
}

// validateRequest checks a create request before anything is persisted.
func (s *Service) validateRequest(req *models.CreateTransferRequest) *models.AppError {
	if req.ChunkSize < 0 {
		return models.NewValidationError("chunk_size must be a positive integer", nil)
	}

	switch req.Source.Type {
	case models.EndpointFile:
		if req.Source.Path == "" {
			return models.NewValidationError("source.path is required for file sources", nil)
		}
		if _, err := SpoolPath(s.spoolDir, req.Source.Path); err != nil {
			return models.NewValidationError(err.Error(), err)
		}
	case models.EndpointHTTP:
		if _, err := hostOf(req.Source.URL); err != nil {
			return models.NewValidationError(err.Error(), err)
		}
	case models.EndpointInline:
		// empty inline payloads are legal: they finish with zero bytes
	default:
		return models.NewValidationError(fmt.Sprintf("unsupported source type %q", req.Source.Type), nil)
	}

	switch req.Sink.Type {
	case models.EndpointFile:
		if req.Sink.Path == "" {
			return models.NewValidationError("sink.path is required for file sinks", nil)
		}
		if _, err := SpoolPath(s.spoolDir, req.Sink.Path); err != nil {
			return models.NewValidationError(err.Error(), err)
		}
	default:
		return models.NewValidationError(fmt.Sprintf("unsupported sink type %q", req.Sink.Type), nil)
	}

	return nil
}

// openSource builds the pump source for a persisted transfer. Inline
// payloads are looked up from the in-memory stash; they are never persisted.
func (s *Service) openSource(ctx context.Context, t *models.Transfer, payload []byte) (contracts.Source, error) {
	switch t.Source.Type {
	case models.EndpointFile:
		path, err := SpoolPath(s.spoolDir, t.Source.Path)
		if err != nil {
			return nil, err
		}
		return sources.OpenFile(path)
	case models.EndpointHTTP:
		return sources.OpenHTTP(ctx, t.Source.URL, s.httpTimeout)
	case models.EndpointInline:
		return sources.NewBytes(payload), nil
	default:
		return nil, fmt.Errorf("unsupported source type %q", t.Source.Type)
	}
}

// openSink builds the pump sink for a persisted transfer.
func (s *Service) openSink(t *models.Transfer) (contracts.Sink, error) {
	switch t.Sink.Type {
	case models.EndpointFile:
		path, err := SpoolPath(s.spoolDir, t.Sink.Path)
		if err != nil {
			return nil, err
		}
		return sinks.CreateFile(path)
	default:
		return nil, fmt.Errorf("unsupported sink type %q", t.Sink.Type)
	}
}
