package job

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/usta-app/usta-server/internal/apperr"
	"github.com/usta-app/usta-server/internal/data"
	"github.com/usta-app/usta-server/internal/notification"
	"github.com/usta-app/usta-server/internal/realtime"
)

type fakeJobStore struct {
	jobs map[bson.ObjectID]*data.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[bson.ObjectID]*data.Job{}}
}

func (f *fakeJobStore) Insert(_ context.Context, job *data.Job) error {
	job.ID = bson.NewObjectID()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobStore) Get(_ context.Context, id bson.ObjectID) (*data.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, apperr.NotFound("job %s not found", id.Hex())
	}
	// return a shallow copy so tests catch missing Replace calls
	cp := *job
	return &cp, nil
}

func (f *fakeJobStore) Replace(_ context.Context, job *data.Job) error {
	if _, ok := f.jobs[job.ID]; !ok {
		return apperr.NotFound("job %s not found", job.ID.Hex())
	}
	job.UpdatedAt = time.Now()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobStore) Delete(_ context.Context, id bson.ObjectID) error {
	if _, ok := f.jobs[id]; !ok {
		return apperr.NotFound("job %s not found", id.Hex())
	}
	delete(f.jobs, id)
	return nil
}

func (f *fakeJobStore) ListByClient(_ context.Context, clientID bson.ObjectID, _, _ int64) ([]*data.Job, error) {
	var out []*data.Job
	for _, j := range f.jobs {
		if j.ClientID == clientID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobStore) ListByProfessional(_ context.Context, proID bson.ObjectID, _, _ int64) ([]*data.Job, error) {
	var out []*data.Job
	for _, j := range f.jobs {
		if j.ProfessionalID != nil && *j.ProfessionalID == proID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobStore) ListFeed(_ context.Context, category string, _, _ int64) ([]*data.Job, error) {
	var out []*data.Job
	for _, j := range f.jobs {
		if j.Status != data.JobPending {
			continue
		}
		if category != "" && j.Category != category {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

type fakeProfiles struct {
	byUser    map[bson.ObjectID]*data.Professional
	byID      map[bson.ObjectID]*data.Professional
	completed map[bson.ObjectID]int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		byUser:    map[bson.ObjectID]*data.Professional{},
		byID:      map[bson.ObjectID]*data.Professional{},
		completed: map[bson.ObjectID]int{},
	}
}

func (f *fakeProfiles) add(userID bson.ObjectID) *data.Professional {
	pro := &data.Professional{ID: bson.NewObjectID(), UserID: userID, Category: "plumbing"}
	f.byUser[userID] = pro
	f.byID[pro.ID] = pro
	return pro
}

func (f *fakeProfiles) GetProfessionalByID(_ context.Context, id bson.ObjectID) (*data.Professional, error) {
	pro, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("professional %s not found", id.Hex())
	}
	return pro, nil
}

func (f *fakeProfiles) GetProfessionalByUserID(_ context.Context, userID bson.ObjectID) (*data.Professional, error) {
	pro, ok := f.byUser[userID]
	if !ok {
		return nil, apperr.NotFound("professional profile for user %s not found", userID.Hex())
	}
	return pro, nil
}

func (f *fakeProfiles) IncrementCompletedJobs(_ context.Context, id bson.ObjectID) error {
	f.completed[id]++
	return nil
}

type fakeConvs struct {
	convs map[bson.ObjectID]*data.Conversation

	cleared []bson.ObjectID
}

func newFakeConvs() *fakeConvs {
	return &fakeConvs{convs: map[bson.ObjectID]*data.Conversation{}}
}

func (f *fakeConvs) Get(_ context.Context, id bson.ObjectID) (*data.Conversation, error) {
	conv, ok := f.convs[id]
	if !ok {
		return nil, apperr.NotFound("conversation %s not found", id.Hex())
	}
	return conv, nil
}

func (f *fakeConvs) SetJob(_ context.Context, convID, jobID bson.ObjectID) error {
	conv := f.convs[convID]
	if conv.JobID != nil {
		return apperr.Conflict("conversation %s already linked", convID.Hex())
	}
	conv.JobID = &jobID
	return nil
}

func (f *fakeConvs) ClearJob(_ context.Context, convID bson.ObjectID) error {
	f.cleared = append(f.cleared, convID)
	if conv, ok := f.convs[convID]; ok {
		conv.JobID = nil
	}
	return nil
}

type fakeNotifier struct {
	params []notification.CreateParams
}

func (f *fakeNotifier) Notify(_ context.Context, p notification.CreateParams) {
	f.params = append(f.params, p)
}

func (f *fakeNotifier) last(t *testing.T) notification.CreateParams {
	t.Helper()
	if len(f.params) == 0 {
		t.Fatal("expected a notification")
	}
	return f.params[len(f.params)-1]
}

type publishedEvent struct {
	channel realtime.Channel
	event   realtime.Event
}

type fakePublisher struct {
	events []publishedEvent
}

func (f *fakePublisher) Publish(ch realtime.Channel, ev realtime.Event) {
	f.events = append(f.events, publishedEvent{channel: ch, event: ev})
}

func (f *fakePublisher) Broadcast(ev realtime.Event) {
	f.events = append(f.events, publishedEvent{event: ev})
}

type jobFixture struct {
	svc      *Service
	store    *fakeJobStore
	profiles *fakeProfiles
	convs    *fakeConvs
	notif    *fakeNotifier
	pub      *fakePublisher

	client  bson.ObjectID
	proUser bson.ObjectID
	pro     *data.Professional
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	f := &jobFixture{
		store:    newFakeJobStore(),
		profiles: newFakeProfiles(),
		convs:    newFakeConvs(),
		notif:    &fakeNotifier{},
		pub:      &fakePublisher{},
		client:   bson.NewObjectID(),
		proUser:  bson.NewObjectID(),
	}
	f.pro = f.profiles.add(f.proUser)
	f.svc = NewService(f.store, f.profiles, f.convs, f.notif, f.pub)
	return f
}

func (f *jobFixture) postJob(t *testing.T) *data.Job {
	t.Helper()
	job, err := f.svc.Create(context.Background(), f.client, CreateParams{
		Title:    "Fix kitchen sink",
		Category: "plumbing",
		Budget:   data.Budget{Min: 500, Max: 1500},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return job
}

func TestCreate_Validation(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.client, CreateParams{}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for empty title, got %v", err)
	}
	if _, err := f.svc.Create(ctx, f.client, CreateParams{
		Title:  "Paint walls",
		Budget: data.Budget{Min: 900, Max: 300},
	}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for inverted budget, got %v", err)
	}

	job := f.postJob(t)
	if job.Status != data.JobPending || job.LifecycleState != data.StatePosted {
		t.Fatalf("unexpected initial state %s/%s", job.Status, job.LifecycleState)
	}
}

func TestApplicationLifecycle(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()
	job := f.postJob(t)

	// second professional competing for the same job
	otherUser := bson.NewObjectID()
	f.profiles.add(otherUser)

	job, err := f.svc.Apply(ctx, f.proUser, job.ID, ApplyParams{Proposal: "Can start tomorrow", Price: 800})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if job.LifecycleState != data.StateOfferPending {
		t.Fatalf("expected offer_pending after first application, got %s", job.LifecycleState)
	}
	if got := f.notif.last(t); got.Type != data.NotifJobApplication || got.Recipient != f.client {
		t.Fatalf("expected application notification for the client, got %+v", got)
	}

	if _, err := f.svc.Apply(ctx, f.proUser, job.ID, ApplyParams{Price: 700}); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for duplicate application, got %v", err)
	}

	job, err = f.svc.Apply(ctx, otherUser, job.ID, ApplyParams{Price: 950})
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if len(job.Applications) != 2 {
		t.Fatalf("expected 2 applications, got %d", len(job.Applications))
	}

	// only the client may accept
	if _, err := f.svc.AcceptApplication(ctx, f.proUser, job.ID, job.Applications[0].ID); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if _, err := f.svc.AcceptApplication(ctx, f.client, job.ID, bson.NewObjectID()); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found for unknown application, got %v", err)
	}

	job, err = f.svc.AcceptApplication(ctx, f.client, job.ID, job.Applications[0].ID)
	if err != nil {
		t.Fatalf("AcceptApplication failed: %v", err)
	}
	if job.LifecycleState != data.StateChatOpen {
		t.Fatalf("expected chat_open, got %s", job.LifecycleState)
	}
	if job.ProfessionalID == nil || *job.ProfessionalID != f.pro.ID {
		t.Fatal("expected the first professional to be assigned")
	}
	for _, app := range job.Applications {
		want := data.ApplicationRejected
		if app.ProfessionalID == f.pro.ID {
			want = data.ApplicationAccepted
		}
		if app.Status != want {
			t.Fatalf("application %s: expected %s, got %s", app.ID.Hex(), want, app.Status)
		}
	}

	// the race loser cannot be accepted afterwards
	if _, err := f.svc.AcceptApplication(ctx, f.client, job.ID, job.Applications[1].ID); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict accepting a second application, got %v", err)
	}
}

func TestFullLifecycleToClosed(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()
	job := f.postJob(t)

	job, err := f.svc.Apply(ctx, f.proUser, job.ID, ApplyParams{Price: 800})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	job, err = f.svc.AcceptApplication(ctx, f.client, job.ID, job.Applications[0].ID)
	if err != nil {
		t.Fatalf("AcceptApplication failed: %v", err)
	}

	// client cannot confirm completion before the professional starts and finishes
	if _, err := f.svc.ConfirmCompletion(ctx, f.client, job.ID); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error confirming from %s, got %v", job.LifecycleState, err)
	}

	job, err = f.svc.AcceptJobRequest(ctx, f.proUser, job.ID)
	if err != nil {
		t.Fatalf("AcceptJobRequest failed: %v", err)
	}
	if job.Status != data.JobInProgress || job.LifecycleState != data.StateInProgress {
		t.Fatalf("expected in_progress, got %s/%s", job.Status, job.LifecycleState)
	}

	job, err = f.svc.ProMarkCompleted(ctx, f.proUser, job.ID)
	if err != nil {
		t.Fatalf("ProMarkCompleted failed: %v", err)
	}
	if job.LifecycleState != data.StateCompletedByPro {
		t.Fatalf("expected completed_by_pro, got %s", job.LifecycleState)
	}
	// still awaiting the client: marking again is rejected
	if _, err := f.svc.ProMarkCompleted(ctx, f.proUser, job.ID); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error re-marking, got %v", err)
	}

	job, err = f.svc.ConfirmCompletion(ctx, f.client, job.ID)
	if err != nil {
		t.Fatalf("ConfirmCompletion failed: %v", err)
	}
	if job.Status != data.JobCompleted || job.LifecycleState != data.StateClosed {
		t.Fatalf("expected completed/closed, got %s/%s", job.Status, job.LifecycleState)
	}
	if job.CompletedAt == nil {
		t.Fatal("expected completedAt to be set")
	}
	if f.profiles.completed[f.pro.ID] != 1 {
		t.Fatalf("expected completed-jobs counter 1, got %d", f.profiles.completed[f.pro.ID])
	}

	// closed is terminal
	if _, err := f.svc.Cancel(ctx, f.client, job.ID, "changed my mind"); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error cancelling a closed job, got %v", err)
	}
}

func TestCreateJobRequestInChat(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()

	conv := &data.Conversation{
		ID: bson.NewObjectID(),
		Participants: []data.Participant{
			{UserID: f.client, Role: data.RoleClient},
			{UserID: f.proUser, Role: data.RoleProfessional},
		},
	}
	f.convs.convs[conv.ID] = conv

	params := CreateParams{Title: "Install shelves", Budget: data.Budget{Min: 200, Max: 400}}

	if _, err := f.svc.CreateJobRequestInChat(ctx, bson.NewObjectID(), conv.ID, params); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error for outsider, got %v", err)
	}
	if _, err := f.svc.CreateJobRequestInChat(ctx, f.proUser, conv.ID, params); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error for professional side, got %v", err)
	}

	job, err := f.svc.CreateJobRequestInChat(ctx, f.client, conv.ID, params)
	if err != nil {
		t.Fatalf("CreateJobRequestInChat failed: %v", err)
	}
	if job.LifecycleState != data.StateJobRequested {
		t.Fatalf("expected job_requested, got %s", job.LifecycleState)
	}
	if job.ConversationID == nil || *job.ConversationID != conv.ID {
		t.Fatal("expected the job to reference the conversation")
	}
	if conv.JobID == nil || *conv.JobID != job.ID {
		t.Fatal("expected the conversation to link back to the job")
	}
	if got := f.notif.last(t); got.Type != data.NotifJobRequest || got.Recipient != f.proUser {
		t.Fatalf("expected job-request notification for the professional's user, got %+v", got)
	}

	// one job per conversation
	if _, err := f.svc.CreateJobRequestInChat(ctx, f.client, conv.ID, params); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for already-linked conversation, got %v", err)
	}

	// the assigned professional accepts from the request
	job, err = f.svc.AcceptJobRequest(ctx, f.proUser, job.ID)
	if err != nil {
		t.Fatalf("AcceptJobRequest failed: %v", err)
	}
	if job.LifecycleState != data.StateInProgress {
		t.Fatalf("expected in_progress, got %s", job.LifecycleState)
	}
}

func TestTransitions_RejectUnassignedProfessional(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()

	conv := &data.Conversation{
		ID: bson.NewObjectID(),
		Participants: []data.Participant{
			{UserID: f.client, Role: data.RoleClient},
			{UserID: f.proUser, Role: data.RoleProfessional},
		},
	}
	f.convs.convs[conv.ID] = conv

	job, err := f.svc.CreateJobRequestInChat(ctx, f.client, conv.ID, CreateParams{
		Title:  "Install shelves",
		Budget: data.Budget{Min: 200, Max: 400},
	})
	if err != nil {
		t.Fatalf("CreateJobRequestInChat failed: %v", err)
	}

	// a professional the job was never assigned to
	otherUser := bson.NewObjectID()
	f.profiles.add(otherUser)

	if _, err := f.svc.AcceptJobRequest(ctx, otherUser, job.ID); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error for unassigned professional, got %v", err)
	}
	stored, err := f.svc.Get(ctx, f.client, data.RoleClient, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != data.JobPending || stored.LifecycleState != data.StateJobRequested {
		t.Fatalf("rejected accept must not change state, got %s/%s", stored.Status, stored.LifecycleState)
	}

	// once in progress, completion is equally off limits for them
	if _, err := f.svc.AcceptJobRequest(ctx, f.proUser, job.ID); err != nil {
		t.Fatalf("AcceptJobRequest failed: %v", err)
	}
	if _, err := f.svc.ProMarkCompleted(ctx, otherUser, job.ID); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error for unassigned professional, got %v", err)
	}
	stored, err = f.svc.Get(ctx, f.client, data.RoleClient, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.LifecycleState != data.StateInProgress {
		t.Fatalf("rejected completion must not change state, got %s", stored.LifecycleState)
	}
}

func TestCancel(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()

	// client cancels their own unassigned posting
	job := f.postJob(t)
	job, err := f.svc.Cancel(ctx, f.client, job.ID, "found someone offline")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if job.Status != data.JobCancelled || job.LifecycleState != data.StateCancelled {
		t.Fatalf("expected cancelled, got %s/%s", job.Status, job.LifecycleState)
	}
	if job.CancelledAt == nil || job.CancellationReason == "" {
		t.Fatal("expected cancellation metadata to be set")
	}

	// a stranger cannot cancel
	job2 := f.postJob(t)
	if _, err := f.svc.Cancel(ctx, bson.NewObjectID(), job2.ID, ""); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	// the assigned professional can
	job2, err = f.svc.Apply(ctx, f.proUser, job2.ID, ApplyParams{Price: 300})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	job2, err = f.svc.AcceptApplication(ctx, f.client, job2.ID, job2.Applications[0].ID)
	if err != nil {
		t.Fatalf("AcceptApplication failed: %v", err)
	}
	job2, err = f.svc.Cancel(ctx, f.proUser, job2.ID, "overbooked")
	if err != nil {
		t.Fatalf("Cancel by professional failed: %v", err)
	}
	if got := f.notif.last(t); got.Type != data.NotifJobCancelled || got.Recipient != f.client {
		t.Fatalf("expected cancellation notification for the client, got %+v", got)
	}
}

func TestDelete_OnlyCancelledJobs(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()
	job := f.postJob(t)

	if err := f.svc.Delete(ctx, f.client, job.ID); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error deleting an active job, got %v", err)
	}

	if _, err := f.svc.Cancel(ctx, f.client, job.ID, ""); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if err := f.svc.Delete(ctx, f.proUser, job.ID); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error for non-owner, got %v", err)
	}
	if err := f.svc.Delete(ctx, f.client, job.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.client, data.RoleClient, job.ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected job to be gone, got %v", err)
	}
}

func TestGet_Visibility(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()
	job := f.postJob(t)

	// any professional can inspect an open posting
	if _, err := f.svc.Get(ctx, f.proUser, data.RoleProfessional, job.ID); err != nil {
		t.Fatalf("expected professional to see open job: %v", err)
	}
	// another client cannot
	if _, err := f.svc.Get(ctx, bson.NewObjectID(), data.RoleClient, job.ID); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error for foreign client, got %v", err)
	}

	// once assigned, only the assigned professional keeps access
	job, err := f.svc.Apply(ctx, f.proUser, job.ID, ApplyParams{Price: 100})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	job, err = f.svc.AcceptApplication(ctx, f.client, job.ID, job.Applications[0].ID)
	if err != nil {
		t.Fatalf("AcceptApplication failed: %v", err)
	}

	otherProUser := bson.NewObjectID()
	f.profiles.add(otherProUser)
	if _, err := f.svc.Get(ctx, otherProUser, data.RoleProfessional, job.ID); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error for other professional, got %v", err)
	}
	if _, err := f.svc.Get(ctx, f.proUser, data.RoleProfessional, job.ID); err != nil {
		t.Fatalf("assigned professional should see the job: %v", err)
	}
}

func TestListMineAndFeed(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()

	job := f.postJob(t)
	if _, err := f.svc.Create(ctx, f.client, CreateParams{Title: "Tile bathroom", Category: "tiling"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	mine, err := f.svc.ListMine(ctx, f.client, data.RoleClient, 1, 20)
	if err != nil {
		t.Fatalf("ListMine failed: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 client jobs, got %d", len(mine))
	}

	feed, err := f.svc.Feed(ctx, "plumbing", 1, 20)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(feed) != 1 || feed[0].ID != job.ID {
		t.Fatalf("expected the plumbing job in the feed, got %d jobs", len(feed))
	}

	// professionals list their assignments
	if _, err := f.svc.Apply(ctx, f.proUser, job.ID, ApplyParams{Price: 100}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	job, err = f.svc.Get(ctx, f.client, data.RoleClient, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := f.svc.AcceptApplication(ctx, f.client, job.ID, job.Applications[0].ID); err != nil {
		t.Fatalf("AcceptApplication failed: %v", err)
	}

	assigned, err := f.svc.ListMine(ctx, f.proUser, data.RoleProfessional, 1, 20)
	if err != nil {
		t.Fatalf("ListMine for professional failed: %v", err)
	}
	if len(assigned) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(assigned))
	}
}
