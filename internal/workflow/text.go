package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/events"
	"github.com/fyrsmithlabs/designd/internal/llm"
	"github.com/fyrsmithlabs/designd/internal/logging"
	"github.com/fyrsmithlabs/designd/internal/session"
)

// AnswerText answers query in a text session. An empty id starts a new
// session; otherwise the stored history of that session is continued.
func (d *Driver) AnswerText(ctx context.Context, id, query string) (*TextResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: text query is required", ErrInvalidInput)
	}

	fresh := id == ""
	if fresh {
		id = d.cfg.NewID()
	}

	ctx = logging.WithSessionID(ctx, id)
	ctx, span := d.tracer.Start(ctx, "workflow.AnswerText",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.Bool("session.new", fresh),
		))
	defer span.End()

	unlock := d.lock(id)
	defer unlock()

	var st *session.State
	if fresh {
		st = session.New(id, d.cfg.Now())
		st.InputType = session.InputText
		d.enter(ctx, st, session.StageRouting)
		if d.sessions != nil {
			d.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("input_type", string(session.InputText))))
		}
		d.publish(ctx, st, events.TypeStarted)
	} else {
		loaded, err := d.deps.Store.Get(ctx, id)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to load session %s: %w", id, err)
		}
		if loaded.InputType != session.InputText {
			return nil, fmt.Errorf("%w: session %s is an %s session", ErrInvalidStage, id, loaded.InputType)
		}
		st = loaded
	}

	st.TextQuery = query
	st.LastError = ""
	turn := st.Turn()
	span.SetAttributes(attribute.Int("turn", turn))

	d.enter(ctx, st, session.StageTextAnswering)
	var answer string
	err := d.timed(ctx, session.StageTextAnswering, func() error {
		var err error
		answer, err = d.answer(ctx, st.Messages, query)
		return err
	})
	if err != nil {
		return nil, d.fail(ctx, span, st, err)
	}

	st.Messages = append(st.Messages,
		session.Message{Role: llm.RoleUser, Content: query},
		session.Message{Role: llm.RoleAssistant, Content: answer},
	)
	st.GeneralAnswer = answer

	d.enter(ctx, st, session.StageDone)
	if err := d.save(ctx, st); err != nil {
		span.RecordError(err)
		return nil, err
	}
	d.publish(ctx, st, events.TypeCompleted)

	d.logger.Info(ctx, "text turn answered", zap.Int("turn", turn), zap.Int("history", len(st.Messages)))
	return &TextResult{SessionID: id, Turn: turn, Answer: answer}, nil
}

// answer asks the model with tools offered. When it requests tools, each
// call is run and the model is asked again without tools.
func (d *Driver) answer(ctx context.Context, history []session.Message, query string) (string, error) {
	msgs := make([]llm.Message, 0, len(history)+4)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: llm.TextSystemPrompt})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: query})

	d.countModelCall(ctx, "chat")
	reply, err := d.deps.Model.Chat(ctx, msgs, d.deps.Tools.Definitions())
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if reply == nil {
		return "", errors.New("chat completion returned no message")
	}

	calls := reply.ToolCalls()
	if len(calls) == 0 {
		return reply.Content(), nil
	}

	msgs = append(msgs, reply.Message)
	for _, call := range calls {
		d.logger.Info(ctx, "tool call", zap.String("tool", call.Name), zap.String("arguments", call.Arguments))
		msgs = append(msgs, llm.Message{
			Role:       llm.RoleTool,
			Content:    d.deps.Tools.Call(ctx, call),
			ToolCallID: call.ID,
			Name:       call.Name,
		})
	}

	d.countModelCall(ctx, "complete")
	final, err := d.deps.Model.Complete(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("final completion failed: %w", err)
	}
	return final, nil
}
