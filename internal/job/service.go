// Package job owns the job entity and its lifecycle state graph.
//
// Every state-changing operation follows the same sequence: validate the
// actor and precondition, persist the new job state as a single document
// replace, create one notification for the counterparty and push a
// job:update event. The persisted write is the unit of success; the
// notification and push are attempted once and logged on failure.
package job

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/usta-app/usta-server/internal/apperr"
	"github.com/usta-app/usta-server/internal/data"
	"github.com/usta-app/usta-server/internal/notification"
	"github.com/usta-app/usta-server/internal/realtime"
)

// Store is the job persistence the engine needs.
type Store interface {
	Insert(ctx context.Context, job *data.Job) error
	Get(ctx context.Context, id bson.ObjectID) (*data.Job, error)
	Replace(ctx context.Context, job *data.Job) error
	Delete(ctx context.Context, id bson.ObjectID) error
	ListByClient(ctx context.Context, clientID bson.ObjectID, page, perPage int64) ([]*data.Job, error)
	ListByProfessional(ctx context.Context, proID bson.ObjectID, page, perPage int64) ([]*data.Job, error)
	ListFeed(ctx context.Context, category string, page, perPage int64) ([]*data.Job, error)
}

// ProfileStore resolves professional profiles and their counters.
type ProfileStore interface {
	GetProfessionalByID(ctx context.Context, id bson.ObjectID) (*data.Professional, error)
	GetProfessionalByUserID(ctx context.Context, userID bson.ObjectID) (*data.Professional, error)
	IncrementCompletedJobs(ctx context.Context, id bson.ObjectID) error
}

// ConversationStore is the slice of conversation persistence the engine
// touches for chat-originated jobs.
type ConversationStore interface {
	Get(ctx context.Context, id bson.ObjectID) (*data.Conversation, error)
	SetJob(ctx context.Context, convID, jobID bson.ObjectID) error
	ClearJob(ctx context.Context, convID bson.ObjectID) error
}

// Notifier records a notification for a user, best-effort.
type Notifier interface {
	Notify(ctx context.Context, p notification.CreateParams)
}

// Service implements the job lifecycle operations.
type Service struct {
	jobs     Store
	profiles ProfileStore
	convs    ConversationStore
	notif    Notifier
	pub      realtime.Publisher
}

// NewService wires the engine. A nil publisher disables pushes.
func NewService(jobs Store, profiles ProfileStore, convs ConversationStore, notif Notifier, pub realtime.Publisher) *Service {
	if pub == nil {
		pub = realtime.NopPublisher{}
	}
	return &Service{jobs: jobs, profiles: profiles, convs: convs, notif: notif, pub: pub}
}

// CreateParams are the client-supplied fields of a new job posting.
type CreateParams struct {
	Title       string
	Description string
	Category    string
	Budget      data.Budget
}

func (p CreateParams) validate() error {
	if p.Title == "" {
		return apperr.Validation("job title is required")
	}
	if p.Budget.Min < 0 || p.Budget.Max < 0 {
		return apperr.Validation("budget must not be negative")
	}
	if p.Budget.Max > 0 && p.Budget.Min > p.Budget.Max {
		return apperr.Validation("budget min %d exceeds max %d", p.Budget.Min, p.Budget.Max)
	}
	return nil
}

// Create posts a new job for the client: status Pending, state posted.
func (s *Service) Create(ctx context.Context, client bson.ObjectID, p CreateParams) (*data.Job, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	job := &data.Job{
		ClientID:       client,
		Title:          p.Title,
		Description:    p.Description,
		Category:       p.Category,
		Budget:         p.Budget,
		Status:         data.JobPending,
		LifecycleState: data.StatePosted,
		Applications:   []data.Application{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.jobs.Insert(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ApplyParams are a professional's bid fields.
type ApplyParams struct {
	Proposal string
	Price    int64
	Duration string
}

// Apply appends a pending application from the acting professional.
// A professional can bid at most once per job.
func (s *Service) Apply(ctx context.Context, actorUser, jobID bson.ObjectID, p ApplyParams) (*data.Job, error) {
	pro, err := s.profiles.GetProfessionalByUserID(ctx, actorUser)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.LifecycleState.Terminal() {
		return nil, apperr.Validation("job %s is %s and no longer accepts applications", jobID.Hex(), job.LifecycleState)
	}
	if job.ProfessionalID != nil {
		return nil, apperr.Validation("job %s already has an assigned professional", jobID.Hex())
	}
	for _, app := range job.Applications {
		if app.ProfessionalID == pro.ID {
			return nil, apperr.Conflict("professional %s already applied to job %s", pro.ID.Hex(), jobID.Hex())
		}
	}

	// Applications are copied wholesale: the job document is the unit of
	// write, never a positional sub-list update.
	apps := make([]data.Application, len(job.Applications), len(job.Applications)+1)
	copy(apps, job.Applications)
	apps = append(apps, data.Application{
		ID:             bson.NewObjectID(),
		ProfessionalID: pro.ID,
		Proposal:       p.Proposal,
		Price:          p.Price,
		Duration:       p.Duration,
		Status:         data.ApplicationPending,
		CreatedAt:      time.Now(),
	})
	job.Applications = apps
	if job.LifecycleState == data.StatePosted {
		job.LifecycleState = data.StateOfferPending
	}

	if err := s.jobs.Replace(ctx, job); err != nil {
		return nil, err
	}

	s.notif.Notify(ctx, notification.CreateParams{
		Recipient: job.ClientID,
		Type:      data.NotifJobApplication,
		Title:     "New application",
		Message:   "A professional applied to \"" + job.Title + "\"",
		Data:      data.NotificationData{JobID: &job.ID, ProfessionalID: &pro.ID},
	})
	s.publishUpdate(ctx, job)
	return job, nil
}

// AcceptApplication marks one application accepted, rejects all siblings
// and assigns the professional. Work has not started yet: the job moves
// to chat_open and waits for the client to open the conversation.
func (s *Service) AcceptApplication(ctx context.Context, actorUser, jobID, appID bson.ObjectID) (*data.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actorUser {
		return nil, apperr.Authorization("only the job's client can accept applications")
	}
	if job.LifecycleState.Terminal() {
		return nil, apperr.Validation("job %s is %s", jobID.Hex(), job.LifecycleState)
	}
	if job.ProfessionalID != nil {
		return nil, apperr.Conflict("job %s already has an accepted application", jobID.Hex())
	}

	var accepted *data.Application
	apps := make([]data.Application, len(job.Applications))
	for i, app := range job.Applications {
		apps[i] = app
		if app.ID == appID {
			apps[i].Status = data.ApplicationAccepted
			accepted = &apps[i]
		} else {
			apps[i].Status = data.ApplicationRejected
		}
	}
	if accepted == nil {
		return nil, apperr.NotFound("application %s not found on job %s", appID.Hex(), jobID.Hex())
	}

	job.Applications = apps
	job.ProfessionalID = &accepted.ProfessionalID
	job.LifecycleState = data.StateChatOpen

	if err := s.jobs.Replace(ctx, job); err != nil {
		return nil, err
	}

	s.notifyProfessional(ctx, accepted.ProfessionalID, notification.CreateParams{
		Type:     data.NotifApplicationAccepted,
		Title:    "Application accepted",
		Message:  "Your application for \"" + job.Title + "\" was accepted",
		Data:     data.NotificationData{JobID: &job.ID},
		Priority: data.PriorityHigh,
	})
	s.publishUpdate(ctx, job)
	return job, nil
}

// CreateJobRequestInChat creates a job bound to an existing conversation,
// assigned to the other participant's professional profile, awaiting
// that professional's acceptance.
func (s *Service) CreateJobRequestInChat(ctx context.Context, actorUser, convID bson.ObjectID, p CreateParams) (*data.Job, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	conv, err := s.convs.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	actor := conv.Participant(actorUser)
	if actor == nil {
		return nil, apperr.Authorization("user %s is not a participant of conversation %s", actorUser.Hex(), convID.Hex())
	}
	if actor.Role != data.RoleClient {
		return nil, apperr.Authorization("only the client side of a conversation can request a job")
	}
	if conv.JobID != nil {
		return nil, apperr.Conflict("conversation %s is already linked to a job", convID.Hex())
	}

	other := conv.Other(actorUser)
	pro, err := s.profiles.GetProfessionalByUserID(ctx, other.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	job := &data.Job{
		ClientID:       actorUser,
		ProfessionalID: &pro.ID,
		ConversationID: &convID,
		Title:          p.Title,
		Description:    p.Description,
		Category:       p.Category,
		Budget:         p.Budget,
		Status:         data.JobPending,
		LifecycleState: data.StateJobRequested,
		Applications:   []data.Application{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.jobs.Insert(ctx, job); err != nil {
		return nil, err
	}

	// The back-link on the conversation is an independent write after
	// the primary insert; a failure here is logged, not rolled back.
	if err := s.convs.SetJob(ctx, convID, job.ID); err != nil {
		log.Printf("job: linking conversation %s to job %s failed: %v", convID.Hex(), job.ID.Hex(), err)
	}

	s.notifyProfessional(ctx, pro.ID, notification.CreateParams{
		Type:     data.NotifJobRequest,
		Title:    "New job request",
		Message:  "You received a job request: \"" + job.Title + "\"",
		Data:     data.NotificationData{JobID: &job.ID, ConversationID: &convID},
		Priority: data.PriorityHigh,
	})
	s.publishUpdate(ctx, job)
	return job, nil
}

// AcceptJobRequest is the assigned professional agreeing to start work:
// status InProgress, state in_progress.
func (s *Service) AcceptJobRequest(ctx context.Context, actorUser, jobID bson.ObjectID) (*data.Job, error) {
	job, _, err := s.getAssigned(ctx, actorUser, jobID)
	if err != nil {
		return nil, err
	}
	if job.LifecycleState != data.StateJobRequested && job.LifecycleState != data.StateChatOpen {
		return nil, apperr.Validation("job %s cannot be accepted from state %s", jobID.Hex(), job.LifecycleState)
	}

	job.Status = data.JobInProgress
	job.LifecycleState = data.StateInProgress
	if err := s.jobs.Replace(ctx, job); err != nil {
		return nil, err
	}

	s.notif.Notify(ctx, notification.CreateParams{
		Recipient: job.ClientID,
		Type:      data.NotifJobAccepted,
		Title:     "Job accepted",
		Message:   "Work on \"" + job.Title + "\" has started",
		Data:      data.NotificationData{JobID: &job.ID},
	})
	s.publishUpdate(ctx, job)
	return job, nil
}

// ProMarkCompleted is the professional declaring the work done. The job
// stays InProgress until the client confirms.
func (s *Service) ProMarkCompleted(ctx context.Context, actorUser, jobID bson.ObjectID) (*data.Job, error) {
	job, _, err := s.getAssigned(ctx, actorUser, jobID)
	if err != nil {
		return nil, err
	}
	if job.LifecycleState != data.StateInProgress {
		return nil, apperr.Validation("job %s cannot be marked completed from state %s", jobID.Hex(), job.LifecycleState)
	}

	job.LifecycleState = data.StateCompletedByPro
	if err := s.jobs.Replace(ctx, job); err != nil {
		return nil, err
	}

	s.notif.Notify(ctx, notification.CreateParams{
		Recipient: job.ClientID,
		Type:      data.NotifJobCompletedByPro,
		Title:     "Work completed",
		Message:   "The professional marked \"" + job.Title + "\" as completed. Please confirm.",
		Data:      data.NotificationData{JobID: &job.ID},
		Priority:  data.PriorityHigh,
	})
	s.publishUpdate(ctx, job)
	return job, nil
}

// ConfirmCompletion is the client's confirmation, closing the job. It
// requires the professional to have marked the work completed first.
func (s *Service) ConfirmCompletion(ctx context.Context, actorUser, jobID bson.ObjectID) (*data.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actorUser {
		return nil, apperr.Authorization("only the job's client can confirm completion")
	}
	if job.LifecycleState != data.StateCompletedByPro {
		return nil, apperr.Validation("job %s cannot be confirmed from state %s; the professional must mark it completed first", jobID.Hex(), job.LifecycleState)
	}

	now := time.Now()
	job.Status = data.JobCompleted
	job.LifecycleState = data.StateClosed
	job.CompletedAt = &now
	if err := s.jobs.Replace(ctx, job); err != nil {
		return nil, err
	}

	// Counter bump is an independent write after the primary close.
	if job.ProfessionalID != nil {
		if err := s.profiles.IncrementCompletedJobs(ctx, *job.ProfessionalID); err != nil {
			log.Printf("job: incrementing completed jobs for %s failed: %v", job.ProfessionalID.Hex(), err)
		}
		s.notifyProfessional(ctx, *job.ProfessionalID, notification.CreateParams{
			Type:    data.NotifJobCompleted,
			Title:   "Job closed",
			Message: "The client confirmed completion of \"" + job.Title + "\"",
			Data:    data.NotificationData{JobID: &job.ID},
		})
	}
	s.publishUpdate(ctx, job)
	return job, nil
}

// Cancel moves a non-terminal job to cancelled. Allowed for the client
// or the assigned professional.
func (s *Service) Cancel(ctx context.Context, actorUser, jobID bson.ObjectID, reason string) (*data.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	actorIsClient := job.ClientID == actorUser
	actorIsPro := false
	if !actorIsClient && job.ProfessionalID != nil {
		pro, err := s.profiles.GetProfessionalByUserID(ctx, actorUser)
		if err == nil && pro.ID == *job.ProfessionalID {
			actorIsPro = true
		}
	}
	if !actorIsClient && !actorIsPro {
		return nil, apperr.Authorization("only the client or the assigned professional can cancel a job")
	}
	if job.LifecycleState.Terminal() {
		return nil, apperr.Validation("job %s is already %s", jobID.Hex(), job.LifecycleState)
	}

	now := time.Now()
	job.Status = data.JobCancelled
	job.LifecycleState = data.StateCancelled
	job.CancelledAt = &now
	job.CancellationReason = reason
	if err := s.jobs.Replace(ctx, job); err != nil {
		return nil, err
	}

	if actorIsClient {
		if job.ProfessionalID != nil {
			s.notifyProfessional(ctx, *job.ProfessionalID, notification.CreateParams{
				Type:    data.NotifJobCancelled,
				Title:   "Job cancelled",
				Message: "\"" + job.Title + "\" was cancelled by the client",
				Data:    data.NotificationData{JobID: &job.ID},
			})
		}
	} else {
		s.notif.Notify(ctx, notification.CreateParams{
			Recipient: job.ClientID,
			Type:      data.NotifJobCancelled,
			Title:     "Job cancelled",
			Message:   "\"" + job.Title + "\" was cancelled by the professional",
			Data:      data.NotificationData{JobID: &job.ID},
		})
	}
	s.publishUpdate(ctx, job)
	return job, nil
}

// Delete removes a cancelled job entirely and unlinks its conversation.
func (s *Service) Delete(ctx context.Context, actorUser, jobID bson.ObjectID) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.ClientID != actorUser {
		return apperr.Authorization("only the job's client can delete it")
	}
	if job.Status != data.JobCancelled {
		return apperr.Validation("only cancelled jobs can be deleted; job %s is %s", jobID.Hex(), job.Status)
	}

	if err := s.jobs.Delete(ctx, jobID); err != nil {
		return err
	}
	if job.ConversationID != nil {
		if err := s.convs.ClearJob(ctx, *job.ConversationID); err != nil {
			log.Printf("job: unlinking conversation %s after delete failed: %v", job.ConversationID.Hex(), err)
		}
	}
	return nil
}

// Get returns a job visible to the actor: its client, its assigned
// professional, any professional while the job is open, or an admin.
func (s *Service) Get(ctx context.Context, actorUser bson.ObjectID, actorRole data.Role, jobID bson.ObjectID) (*data.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID == actorUser || actorRole == data.RoleAdmin {
		return job, nil
	}
	if actorRole == data.RoleProfessional {
		if job.Status == data.JobPending && job.ProfessionalID == nil {
			return job, nil
		}
		pro, err := s.profiles.GetProfessionalByUserID(ctx, actorUser)
		if err == nil && job.ProfessionalID != nil && pro.ID == *job.ProfessionalID {
			return job, nil
		}
	}
	return nil, apperr.Authorization("user %s cannot view job %s", actorUser.Hex(), jobID.Hex())
}

// ListMine returns the actor's jobs: postings for a client, assignments
// for a professional.
func (s *Service) ListMine(ctx context.Context, actorUser bson.ObjectID, actorRole data.Role, page, perPage int64) ([]*data.Job, error) {
	if actorRole == data.RoleProfessional {
		pro, err := s.profiles.GetProfessionalByUserID(ctx, actorUser)
		if err != nil {
			return nil, err
		}
		return s.jobs.ListByProfessional(ctx, pro.ID, page, perPage)
	}
	return s.jobs.ListByClient(ctx, actorUser, page, perPage)
}

// Feed returns open jobs for professionals to browse.
func (s *Service) Feed(ctx context.Context, category string, page, perPage int64) ([]*data.Job, error) {
	return s.jobs.ListFeed(ctx, category, page, perPage)
}

// JobUpdatePayload is the body of job:update events.
type JobUpdatePayload struct {
	ConversationID string    `json:"conversationId,omitempty"`
	Job            *data.Job `json:"job"`
}

// publishUpdate pushes job:update to the bound conversation room and to
// each party's private room. Resolving the professional's user id is an
// extra read; any failure along the way only costs the push.
func (s *Service) publishUpdate(ctx context.Context, job *data.Job) {
	payload := JobUpdatePayload{Job: job}
	if job.ConversationID != nil {
		payload.ConversationID = job.ConversationID.Hex()
		s.pub.Publish(realtime.ConversationChannel(payload.ConversationID), realtime.Event{
			Name:    realtime.EventJobUpdate,
			Payload: payload,
		})
	}

	ev := realtime.Event{Name: realtime.EventJobUpdate, Payload: payload}
	s.pub.Publish(realtime.UserChannel(job.ClientID.Hex()), ev)
	if job.ProfessionalID != nil {
		pro, err := s.profiles.GetProfessionalByID(ctx, *job.ProfessionalID)
		if err != nil {
			log.Printf("job: resolving professional %s for push failed: %v", job.ProfessionalID.Hex(), err)
			return
		}
		s.pub.Publish(realtime.UserChannel(pro.UserID.Hex()), ev)
	}
}

// notifyProfessional resolves the profile's owning user and records the
// notification for them.
func (s *Service) notifyProfessional(ctx context.Context, proID bson.ObjectID, p notification.CreateParams) {
	pro, err := s.profiles.GetProfessionalByID(ctx, proID)
	if err != nil {
		log.Printf("job: resolving professional %s for notification failed: %v", proID.Hex(), err)
		return
	}
	p.Recipient = pro.UserID
	s.notif.Notify(ctx, p)
}

// getAssigned loads the job and verifies the actor owns its assigned
// professional profile.
func (s *Service) getAssigned(ctx context.Context, actorUser, jobID bson.ObjectID) (*data.Job, *data.Professional, error) {
	pro, err := s.profiles.GetProfessionalByUserID(ctx, actorUser)
	if err != nil {
		return nil, nil, err
	}
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.ProfessionalID == nil || *job.ProfessionalID != pro.ID {
		return nil, nil, apperr.Authorization("job %s is not assigned to this professional", jobID.Hex())
	}
	return job, pro, nil
}
