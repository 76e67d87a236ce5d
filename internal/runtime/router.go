package runtime

import (
	"context"
	"errors"
	"time"

	envelopepkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/envelope"
	errspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/errors"
	loggingpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/logging"
)

// Routing failures travel the wire as handler-error envelopes carrying one
// of these codes, so the calling renderer can reconstruct the typed error.
const (
	codeTargetNotFound     = "TARGET_NOT_FOUND"
	codeTargetUnresponsive = "TARGET_UNRESPONSIVE"
)

// routeErrorEnvelope encodes a routing failure for the reply frame. Routing
// errors are the runtime's own, never the target handler's, so they get
// explicit codes instead of the generic serialization path.
func routeErrorEnvelope(err error) envelopepkg.Envelope {
	var notFound *errspkg.TargetNotFoundError
	if errors.As(err, &notFound) {
		return envelopepkg.Envelope{
			Kind:    envelopepkg.KindHandler,
			Name:    "HandlerError",
			Message: notFound.Error(),
			Code:    codeTargetNotFound,
			Details: map[string]any{
				"target_id":   notFound.TargetID,
				"target_role": notFound.TargetRole,
			},
		}
	}

	var unresponsive *errspkg.TargetUnresponsiveError
	if errors.As(err, &unresponsive) {
		return envelopepkg.Envelope{
			Kind:    envelopepkg.KindHandler,
			Name:    "HandlerError",
			Message: unresponsive.Error(),
			Code:    codeTargetUnresponsive,
			Details: map[string]any{
				"target_id":  unresponsive.TargetID,
				"channel":    unresponsive.Channel,
				"timeout_ms": unresponsive.Timeout.Milliseconds(),
			},
		}
	}

	return envelopepkg.Serialize(err)
}

// reconstructRouteError maps handler-error envelopes carrying routing codes
// back to their typed forms. Other errors pass through unchanged.
func reconstructRouteError(err error) error {
	herr, ok := err.(*envelopepkg.HandlerError)
	if !ok {
		return err
	}

	switch herr.Code {
	case codeTargetNotFound:
		return &errspkg.TargetNotFoundError{
			TargetID:   detailInt64(herr.Details, "target_id"),
			TargetRole: detailString(herr.Details, "target_role"),
		}
	case codeTargetUnresponsive:
		return &errspkg.TargetUnresponsiveError{
			TargetID: detailInt64(herr.Details, "target_id"),
			Channel:  detailString(herr.Details, "channel"),
			Timeout:  time.Duration(detailInt64(herr.Details, "timeout_ms")) * time.Millisecond,
		}
	default:
		return err
	}
}

// Envelope details round-trip through JSON, so numbers come back as
// float64 and must be coerced.
func detailInt64(details map[string]any, key string) int64 {
	switch v := details[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

func detailString(details map[string]any, key string) string {
	s, _ := details[key].(string)
	return s
}

// handleRoute relays one renderer-to-renderer invoke. The broker picks the
// target, forwards the request, waits out the route timeout, and answers the
// source either way; the source never talks to the target directly.
func (s *Service) handleRoute(ctx context.Context, f frame) {
	span := s.inspector.Begin(SpanRoute, FlowRendererToRenderer, string(NamespaceInvoke), f.Channel, f.Correlation, f.Window, f.Payload)

	target, err := s.resolveRouteTarget(f)
	if err != nil {
		s.replyRouteError(f, err)
		span.End(err)
		return
	}

	reply := s.pending.add(f.Correlation)

	forward := f
	forward.TargetID = 0
	forward.TargetRole = ""
	if err := s.publish(target.Topic, forward); err != nil {
		s.pending.drop(f.Correlation)
		s.replyRouteError(f, err)
		span.End(err)
		return
	}

	timeout := s.Conf.EffectiveRouteTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-reply:
		s.replyRoute(f, res)
		if res.err == nil {
			span.SetResponse(res.payload)
		}
		span.End(res.err)
	case <-timer.C:
		s.pending.drop(f.Correlation)
		unresponsive := &errspkg.TargetUnresponsiveError{
			TargetID: int64(target.ID),
			Channel:  f.Channel,
			Timeout:  timeout,
		}
		s.replyRouteError(f, unresponsive)
		span.End(unresponsive)
	case <-ctx.Done():
		s.pending.drop(f.Correlation)
		s.replyRouteError(f, errspkg.ErrServiceClosed)
		span.End(errspkg.ErrServiceClosed)
	}
}

// resolveRouteTarget picks the destination window. Id targeting is exact;
// role targeting picks the oldest matching window. The source window is
// never a candidate, a window cannot route to itself.
func (s *Service) resolveRouteTarget(f frame) (*WindowDescriptor, error) {
	if f.TargetID != 0 {
		desc, ok := s.windows.GetByID(WindowID(f.TargetID))
		if !ok || desc.ID == f.Window {
			return nil, &errspkg.TargetNotFoundError{TargetID: f.TargetID}
		}
		return desc, nil
	}

	if f.TargetRole == "" {
		return nil, errspkg.ErrRouteTargetRequired
	}
	for _, desc := range s.windows.ByRole(f.TargetRole) {
		if desc.ID != f.Window {
			return desc, nil
		}
	}
	return nil, &errspkg.TargetNotFoundError{TargetRole: f.TargetRole}
}

func (s *Service) replyRoute(f frame, res callResult) {
	if res.err != nil {
		s.replyRouteError(f, res.err)
		return
	}
	s.replyToWindow(f.Window, frame{
		Type:        frameReply,
		Namespace:   NamespaceInvoke,
		Channel:     f.Channel,
		Correlation: f.Correlation,
		Status:      statusOK,
		Payload:     res.payload,
	})
}

func (s *Service) replyRouteError(f frame, err error) {
	payload, encErr := envelopepkg.Encode(routeErrorEnvelope(err))
	if encErr != nil {
		s.Logger.Error("Failed to encode route error", encErr, loggingpkg.LogFields{"channel": f.Channel})
		payload = nil
	}
	s.replyToWindow(f.Window, frame{
		Type:        frameReply,
		Namespace:   NamespaceInvoke,
		Channel:     f.Channel,
		Correlation: f.Correlation,
		Status:      statusError,
		Payload:     payload,
	})
}

func (s *Service) replyToWindow(id WindowID, f frame) {
	if err := s.publish(WindowTopic(id), f); err != nil {
		s.Logger.Error("Failed to publish reply to window", err, loggingpkg.LogFields{
			"window_id": int64(id),
			"channel":   f.Channel,
		})
	}
}
