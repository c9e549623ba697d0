package handlers

import (
	"context"
	"errors"
	"fmt"

	cerr "github.com/girjesh-suryawanshi/secureshare-sub000/errors"
	logger "github.com/girjesh-suryawanshi/secureshare-sub000/logging"
	"github.com/girjesh-suryawanshi/secureshare-sub000/protocol"
	"github.com/girjesh-suryawanshi/secureshare-sub000/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/girjesh-suryawanshi/secureshare-sub000/handlers"

// MessageRouter turns one inbound frame into the replies owed to its sender.
// Pushes to other connections happen inside the services.
type MessageRouter struct {
	transfers services.TransferService
	sessions  services.SessionService
	signaling services.SignalingService

	tracer trace.Tracer
	logger logger.Logger
}

func NewMessageRouter(
	transfers services.TransferService,
	sessions services.SessionService,
	signaling services.SignalingService,
	l logger.Logger,
) *MessageRouter {
	return &MessageRouter{
		transfers: transfers,
		sessions:  sessions,
		signaling: signaling,
		tracer:    otel.Tracer(tracerName),
		logger:    l,
	}
}

func (r *MessageRouter) Handle(ctx context.Context, connectionID string, raw []byte) []any {
	r.sessions.Touch(connectionID)

	msg, err := protocol.Decode(raw)
	if err != nil {
		r.logger.Debug("rejected message", "connection_id", connectionID, "error", err)
		return []any{r.errorReply(nil, err)}
	}

	_, span := r.tracer.Start(ctx, "relay "+msg.MessageType(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("relay.connection_id", connectionID),
			attribute.String("relay.message_type", msg.MessageType()),
		),
	)
	defer span.End()

	replies, err := r.dispatch(connectionID, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		if cerr.IsNotFound(err) {
			r.logger.Debug("lookup miss", "connection_id", connectionID, "type", msg.MessageType(), "error", err)
		} else {
			r.logger.Info("message failed", "connection_id", connectionID, "type", msg.MessageType(), "error", err)
		}
		return []any{r.errorReply(msg, err)}
	}
	span.SetAttributes(attribute.Int("relay.replies", len(replies)))
	return replies
}

func (r *MessageRouter) dispatch(connectionID string, msg protocol.Inbound) ([]any, error) {
	switch m := msg.(type) {
	case *protocol.RegisterFile:
		reply, err := r.transfers.Register(connectionID, m)
		if err != nil {
			return nil, err
		}
		return []any{reply}, nil

	case *protocol.FileData:
		reply, err := r.transfers.Upload(connectionID, m)
		if err != nil {
			return nil, err
		}
		return []any{reply}, nil

	case *protocol.RequestFile:
		return r.transfers.Request(connectionID, m.Code)

	case *protocol.DownloadAck:
		// the sender may be gone; the receiver is not told
		if err := r.transfers.Acknowledge(connectionID, m); err != nil {
			r.logger.Debug("download ack dropped", "code", m.Code, "type", m.Type, "error", err)
		}
		return nil, nil

	case *protocol.Signal:
		if err := r.signaling.Relay(connectionID, m); err != nil {
			return nil, err
		}
		return nil, nil

	case protocol.Ping:
		return []any{protocol.NewPong()}, nil

	default:
		return nil, fmt.Errorf("%w: %s", protocol.ErrUnknownType, msg.MessageType())
	}
}

// errorReply maps a failure to the message the client renders for it.
func (r *MessageRouter) errorReply(msg protocol.Inbound, err error) any {
	code := codeOf(msg)

	switch {
	case errors.Is(err, cerr.ErrValidation):
		return protocol.NewError(protocol.ReasonValidation, err.Error())
	case errors.Is(err, protocol.ErrUnknownType):
		return protocol.NewError(protocol.ReasonUnknownType, err.Error())
	case errors.Is(err, cerr.ErrUnknownCode):
		return protocol.NewFileNotFound(code, protocol.ReasonUnknownCode)
	case errors.Is(err, cerr.ErrUnknownFile):
		return protocol.NewUnknownFile(code, fileIndexOf(msg))
	case errors.Is(err, cerr.ErrTransferExpired):
		return protocol.NewTransferExpired(code)
	case errors.Is(err, cerr.ErrSenderDisconnected):
		return protocol.NewSenderDisconnected(code)
	case errors.Is(err, cerr.ErrPeerNotFound):
		if sig, ok := msg.(*protocol.Signal); ok {
			return protocol.NewPeerNotFound(sig.TargetID)
		}
		return protocol.NewPeerNotFound("")
	case errors.Is(err, cerr.ErrNotOwner):
		return protocol.NewError(protocol.ReasonNotOwner, "transfer code belongs to another sender")
	case errors.Is(err, cerr.ErrInvalidChunk):
		return protocol.NewError(protocol.ReasonInvalidChunk, err.Error())
	case errors.Is(err, cerr.ErrPayloadTooLarge):
		return protocol.NewError(protocol.ReasonTooLarge, err.Error())
	case errors.Is(err, cerr.ErrCodeSpaceExhausted):
		r.logger.Error("transfer code space exhausted", "error", err)
		return protocol.NewError(protocol.ReasonExhausted, "no transfer code available, try again")
	default:
		r.logger.Error("message handling failed", "error", err)
		return protocol.NewError(protocol.ReasonInternal, "internal error")
	}
}

func codeOf(msg protocol.Inbound) string {
	switch m := msg.(type) {
	case *protocol.RegisterFile:
		return m.Code
	case *protocol.FileData:
		return m.Code
	case *protocol.RequestFile:
		return m.Code
	case *protocol.DownloadAck:
		return m.Code
	}
	return ""
}

func fileIndexOf(msg protocol.Inbound) int {
	switch m := msg.(type) {
	case *protocol.RegisterFile:
		if m.FileIndex != nil {
			return *m.FileIndex
		}
	case *protocol.FileData:
		if m.FileIndex != nil {
			return *m.FileIndex
		}
	}
	return 0
}
