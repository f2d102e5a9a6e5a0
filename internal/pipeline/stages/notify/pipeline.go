package notify

import (
	"fmt"

	"github.com/cifix/pipeline/internal/collaborators/mail"
	"github.com/cifix/pipeline/internal/domain"
	"github.com/cifix/pipeline/internal/pipeline/retry"
	"github.com/cifix/pipeline/internal/pipeline/runtime"
	"github.com/cifix/pipeline/internal/platform/dbctx"
)

func (s *Stage) Run(ctx *runtime.Context) (runtime.Outcome, error) {
	notificationType := ctx.PayloadString("notification_type")
	if notificationType == "" {
		notificationType = domain.NotificationSuccess
	}

	dbc := dbctx.Context{Ctx: ctx.Ctx, Tx: ctx.DB}

	exists, err := s.artifacts.HasNotificationOfType(dbc, ctx.Task.BuildID, notificationType)
	if err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassInternal, fmt.Errorf("check existing notification: %w", err))), nil
	}
	if exists {
		ctx.Log.Info("notification already sent, skipping", "type", notificationType)
		return runtime.CompletedWith(nil), nil
	}

	subject, body := s.compose(ctx, notificationType)
	if err := s.mail.Send(ctx.Ctx, mail.Message{To: s.recipient, Subject: subject, Body: body}); err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassCollaborator, fmt.Errorf("send notification: %w", err))), nil
	}

	if _, err := s.artifacts.CreateNotification(dbc, ctx.Task.BuildID, notificationType, s.recipient, subject); err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassInternal, fmt.Errorf("persist notification: %w", err))), nil
	}

	return runtime.CompletedWith(nil), nil
}

func (s *Stage) compose(ctx *runtime.Context, notificationType string) (subject, body string) {
	build := ctx.Build
	switch notificationType {
	case domain.NotificationSuccess:
		prURL := ctx.PayloadString("pull_request_url")
		subject = fmt.Sprintf("[cifix] build %s #%d fixed", build.Job, build.BuildNumber)
		body = fmt.Sprintf("A fix for %s build #%d was generated and opened for review: %s", build.Job, build.BuildNumber, prURL)
	default:
		reason := ctx.PayloadString("failure_reason")
		subject = fmt.Sprintf("[cifix] build %s #%d needs manual intervention", build.Job, build.BuildNumber)
		body = fmt.Sprintf("The automated fix pipeline could not resolve %s build #%d.\n\nReason: %s", build.Job, build.BuildNumber, reason)
	}
	return subject, body
}
