package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/cifix/pipeline/internal/data/repos/artifacts"
	"github.com/cifix/pipeline/internal/data/repos/builds"
	"github.com/cifix/pipeline/internal/data/repos/tasks"
	"github.com/cifix/pipeline/internal/domain"
	"github.com/cifix/pipeline/internal/pipeline/retry"
	"github.com/cifix/pipeline/internal/pipeline/runtime"
	"github.com/cifix/pipeline/internal/pipeline/topology"
	"github.com/cifix/pipeline/internal/platform/dbctx"
	"github.com/cifix/pipeline/internal/platform/logger"
)

type fakeTaskRepo struct {
	tasks.TaskRepo
	enqueued       []enqueueCall
	updated        []updateCall
	updateOK       bool
	updateErr      error
}

type enqueueCall struct {
	buildID uint
	kind    string
	payload datatypes.JSON
}

type updateCall struct {
	taskID          uint
	leaseGeneration int
	status          string
	errMsg          string
	payload         datatypes.JSON
}

func (f *fakeTaskRepo) Enqueue(dbc dbctx.Context, buildID uint, kind string, payload datatypes.JSON, maxAttempts int) (*domain.Task, error) {
	f.enqueued = append(f.enqueued, enqueueCall{buildID, kind, payload})
	return &domain.Task{ID: 100, BuildID: buildID, Kind: kind, Payload: payload}, nil
}

func (f *fakeTaskRepo) UpdateStatus(dbc dbctx.Context, taskID uint, leaseGeneration int, status string, errMsg string, retryAfter *time.Time, payload datatypes.JSON) (bool, error) {
	f.updated = append(f.updated, updateCall{taskID, leaseGeneration, status, errMsg, payload})
	if f.updateErr != nil {
		return false, f.updateErr
	}
	return true, nil
}

type fakeBuildRepo struct {
	builds.BuildRepo
	markedStatus []string
	markErr      error
}

func (f *fakeBuildRepo) MarkStatus(dbc dbctx.Context, id uint, status string) error {
	f.markedStatus = append(f.markedStatus, status)
	return f.markErr
}

type fakeArtifactRepo struct {
	artifacts.ArtifactRepo
	hasNotification bool
	hasErr          error
}

func (f *fakeArtifactRepo) HasNotificationOfType(dbc dbctx.Context, buildID uint, kind string) (bool, error) {
	return f.hasNotification, f.hasErr
}

func newTestDispatcher(tr *fakeTaskRepo, br *fakeBuildRepo, ar *fakeArtifactRepo) *Dispatcher {
	log, _ := logger.New("test")
	return &Dispatcher{
		db:          nil,
		log:         log,
		taskRepo:    tr,
		buildRepo:   br,
		artifacts:   ar,
		registry:    runtime.NewRegistry(),
		retryPolicy: retry.DefaultPolicy(),
	}
}

func TestSettleCompleted_EnqueuesSuccessorWithMergedPayload(t *testing.T) {
	tr := &fakeTaskRepo{}
	br := &fakeBuildRepo{}
	d := newTestDispatcher(tr, br, &fakeArtifactRepo{})

	payload, _ := json.Marshal(map[string]any{"repo_url": "https://git.example.com/x.git", "branch": "main"})
	task := &domain.Task{ID: 1, BuildID: 3, Kind: domain.StagePlan, Payload: payload, LeaseGeneration: 2}
	build := &domain.Build{ID: 3}

	d.settleCompleted(context.Background(), task, build, runtime.CompletedWith(map[string]any{"plan_id": uint(9)}))

	if len(tr.enqueued) != 1 {
		t.Fatalf("enqueued = %d calls, want 1", len(tr.enqueued))
	}
	if tr.enqueued[0].kind != domain.StageRepo {
		t.Fatalf("enqueued kind = %q, want %q (next in topology)", tr.enqueued[0].kind, domain.StageRepo)
	}
	var merged map[string]any
	if err := json.Unmarshal(tr.enqueued[0].payload, &merged); err != nil {
		t.Fatalf("unmarshal merged payload: %v", err)
	}
	if merged["repo_url"] != "https://git.example.com/x.git" {
		t.Fatalf("merged payload dropped essential key repo_url: %v", merged)
	}
	if merged["plan_id"] != float64(9) {
		t.Fatalf("merged payload missing handler metadata plan_id: %v", merged)
	}
	if len(tr.updated) != 1 || tr.updated[0].status != domain.TaskCompleted {
		t.Fatalf("task status updates = %v, want a single TaskCompleted update", tr.updated)
	}
	if len(br.markedStatus) != 0 {
		t.Fatal("build should not be marked complete until the terminal stage finishes")
	}
}

func TestSettleCompleted_TerminalStageMarksBuildComplete(t *testing.T) {
	tr := &fakeTaskRepo{}
	br := &fakeBuildRepo{}
	d := newTestDispatcher(tr, br, &fakeArtifactRepo{})

	task := &domain.Task{ID: 1, BuildID: 3, Kind: domain.StageNotify}
	build := &domain.Build{ID: 3}

	d.settleCompleted(context.Background(), task, build, runtime.CompletedWith(nil))

	if len(tr.enqueued) != 0 {
		t.Fatalf("no successor should be enqueued after the terminal stage, got %d", len(tr.enqueued))
	}
	if len(br.markedStatus) != 1 || br.markedStatus[0] != domain.BuildCompleted {
		t.Fatalf("build status updates = %v, want [%q]", br.markedStatus, domain.BuildCompleted)
	}
}

func TestSettleRetry_RetryableScheduledWithPreviousFailureReason(t *testing.T) {
	tr := &fakeTaskRepo{}
	br := &fakeBuildRepo{}
	d := newTestDispatcher(tr, br, &fakeArtifactRepo{})

	payload, _ := json.Marshal(map[string]any{"repo_url": "https://git.example.com/x.git"})
	task := &domain.Task{ID: 1, BuildID: 3, Kind: domain.StagePatch, Attempt: 1, MaxAttempts: 3, Payload: payload, LeaseGeneration: 1}

	d.settleRetry(context.Background(), task, retry.Classify(retry.ClassCollaborator, errors.New("rate limited")))

	if len(tr.updated) != 1 || tr.updated[0].status != domain.TaskRetry {
		t.Fatalf("task status updates = %v, want a single TaskRetry update", tr.updated)
	}
	var p map[string]any
	if err := json.Unmarshal(tr.updated[0].payload, &p); err != nil {
		t.Fatalf("unmarshal retry payload: %v", err)
	}
	if p["previous_failure_reason"] != "rate limited" {
		t.Fatalf("previous_failure_reason = %v, want %q", p["previous_failure_reason"], "rate limited")
	}
	if len(br.markedStatus) != 0 {
		t.Fatal("build should not be touched on a retryable failure")
	}
}

func TestSettleRetry_ExhaustedAttemptsFallsThroughToFailed(t *testing.T) {
	tr := &fakeTaskRepo{}
	br := &fakeBuildRepo{}
	ar := &fakeArtifactRepo{}
	d := newTestDispatcher(tr, br, ar)

	task := &domain.Task{ID: 1, BuildID: 3, Kind: domain.StagePatch, Attempt: 3, MaxAttempts: 3}

	d.settleRetry(context.Background(), task, retry.Classify(retry.ClassCollaborator, errors.New("still failing")))

	if len(tr.updated) != 1 || tr.updated[0].status != domain.TaskFailed {
		t.Fatalf("task status updates = %v, want a single TaskFailed update once attempts are exhausted", tr.updated)
	}
	if len(br.markedStatus) != 1 || br.markedStatus[0] != domain.BuildFailed {
		t.Fatalf("build status updates = %v, want [%q]", br.markedStatus, domain.BuildFailed)
	}
	if len(tr.enqueued) != 1 || tr.enqueued[0].kind != domain.StageNotify {
		t.Fatalf("enqueued = %v, want a single synthetic notify task", tr.enqueued)
	}
}

func TestSettleRetry_NonRetryableClassNeverRetries(t *testing.T) {
	tr := &fakeTaskRepo{}
	br := &fakeBuildRepo{}
	d := newTestDispatcher(tr, br, &fakeArtifactRepo{})

	task := &domain.Task{ID: 1, BuildID: 3, Kind: domain.StagePatch, Attempt: 1, MaxAttempts: 3}

	d.settleRetry(context.Background(), task, retry.Classify(retry.ClassSafety, errors.New("disallowed path in diff")))

	if len(tr.updated) != 1 || tr.updated[0].status != domain.TaskFailed {
		t.Fatalf("task status updates = %v, want a single TaskFailed update for a non-retryable class", tr.updated)
	}
}

func TestSettleFailed_EnqueuesManualInterventionNotificationOnce(t *testing.T) {
	tr := &fakeTaskRepo{}
	br := &fakeBuildRepo{}
	ar := &fakeArtifactRepo{hasNotification: false}
	d := newTestDispatcher(tr, br, ar)

	task := &domain.Task{ID: 1, BuildID: 3, Kind: domain.StageValidate}

	d.settleFailed(context.Background(), task, errors.New("compile failed"))

	if len(tr.enqueued) != 1 || tr.enqueued[0].kind != domain.StageNotify {
		t.Fatalf("enqueued = %v, want a single synthetic notify task", tr.enqueued)
	}
	var p map[string]any
	if err := json.Unmarshal(tr.enqueued[0].payload, &p); err != nil {
		t.Fatalf("unmarshal notify payload: %v", err)
	}
	if p["notification_type"] != domain.NotificationManualIntervention {
		t.Fatalf("notification_type = %v, want %q", p["notification_type"], domain.NotificationManualIntervention)
	}
}

func TestSettleFailed_SkipsDuplicateNotification(t *testing.T) {
	tr := &fakeTaskRepo{}
	br := &fakeBuildRepo{}
	ar := &fakeArtifactRepo{hasNotification: true}
	d := newTestDispatcher(tr, br, ar)

	task := &domain.Task{ID: 1, BuildID: 3, Kind: domain.StageValidate}

	d.settleFailed(context.Background(), task, errors.New("compile failed"))

	if len(tr.enqueued) != 0 {
		t.Fatalf("enqueued = %v, want no duplicate notify task", tr.enqueued)
	}
}

func TestSettleFailed_FromNotifyStageNeverEnqueuesAnotherNotification(t *testing.T) {
	tr := &fakeTaskRepo{}
	br := &fakeBuildRepo{}
	ar := &fakeArtifactRepo{}
	d := newTestDispatcher(tr, br, ar)

	task := &domain.Task{ID: 1, BuildID: 3, Kind: domain.StageNotify}

	d.settleFailed(context.Background(), task, errors.New("smtp down"))

	if len(tr.enqueued) != 0 {
		t.Fatalf("enqueued = %v, want no notify-from-notify recursion", tr.enqueued)
	}
}

func TestNew_WiresRetryPolicyFromConfig(t *testing.T) {
	log, _ := logger.New("test")
	wantPolicy := retry.Policy{Base: 4 * time.Second, Max: 10 * time.Minute, MaxJitter: 0.25}
	cfg := Config{
		TickInterval:    time.Second,
		LeaseTimeout:    900 * time.Second,
		PerKindCapacity: 5,
		RetryPolicy:     wantPolicy,
	}

	d := New(nil, log, &fakeTaskRepo{}, &fakeBuildRepo{}, &fakeArtifactRepo{}, runtime.NewRegistry(), cfg)

	if d.retryPolicy != wantPolicy {
		t.Fatalf("retryPolicy = %+v, want %+v (the policy built from config.Config)", d.retryPolicy, wantPolicy)
	}
}

func TestTopology_NextMatchesExpectedOrder(t *testing.T) {
	if got := topology.Next(domain.StagePlan); got != domain.StageRepo {
		t.Fatalf("Next(plan) = %q, want %q", got, domain.StageRepo)
	}
	if got := topology.Next(domain.StageNotify); got != "" {
		t.Fatalf("Next(notify) = %q, want empty (terminal)", got)
	}
}
