package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"grillbook/internal/availability"
	"grillbook/internal/domain"
	"grillbook/internal/events"
	"grillbook/internal/metrics"
	"grillbook/internal/models"
	"grillbook/internal/notification"
	"grillbook/internal/timeutil"
	"grillbook/internal/validator"

	"github.com/rs/zerolog"
)

const (
	MsgNotFound       = "reservation not found."
	MsgWrongCode      = "incorrect cancellation code."
	MsgCancelled      = "reservation cancelled."
	MsgTooManyTries   = "too many attempts, try again later."
	MsgConnected      = "connection established."
	MsgNotConnected   = "could not connect to the reservation store."
	msgNameRequired   = "name is required."
	msgTitleRequired  = "title is required."
	msgInvalidEmail   = "enter a valid email address."
	msgUnknownApt     = "unknown apartment %q."
	cancelReasonCode  = "code"
	cancelReasonOwner = "owner"
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// Deps are the collaborators of ReservationService. Notifier, Events and Limiter are optional.
type Deps struct {
	Store     domain.ReservationStore
	Engine    *availability.Engine
	Validator *validator.Validator
	Codes     domain.CodeGenerator
	Notifier  domain.Notifier
	Events    domain.EventPublisher
	Limiter   domain.AttemptLimiter
	Clock     timeutil.Clock
}

// Options tune the service behaviour.
type Options struct {
	Apartments        []string
	CancelMaxAttempts int
	CancelWindow      time.Duration
	UpcomingDays      int
}

// CreateResult is returned to the resident after a successful booking.
type CreateResult struct {
	Reservation      *models.Reservation     `json:"reservation"`
	CancellationCode string                  `json:"cancellation_code"`
	EmailSent        bool                    `json:"email_sent"`
	EmailMessage     string                  `json:"email_message,omitempty"`
	Warning          string                  `json:"warning,omitempty"`
	Share            notification.ShareLinks `json:"share"`
}

// CancelResult is the outcome of a cancellation attempt.
type CancelResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DaySlots is the start-slot view of one calendar day. Free counts the slots a
// resident can still pick.
type DaySlots struct {
	Date    string            `json:"date"`
	Slots   []models.TimeSlot `json:"slots"`
	Free    int               `json:"free"`
	Count   int               `json:"count"`
	Level   models.Density    `json:"level"`
	Warning string            `json:"warning,omitempty"`
}

type ReservationService struct {
	store      domain.ReservationStore
	engine     *availability.Engine
	validator  *validator.Validator
	codes      domain.CodeGenerator
	notifier   domain.Notifier
	events     domain.EventPublisher
	limiter    domain.AttemptLimiter
	clock      timeutil.Clock
	loc        *time.Location
	opts       Options
	apartments map[string]struct{}
	logger     *zerolog.Logger
}

func NewReservationService(deps Deps, opts Options, logger *zerolog.Logger) *ReservationService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.UpcomingDays <= 0 {
		opts.UpcomingDays = models.DefaultUpcomingDays
	}
	if len(opts.Apartments) == 0 {
		opts.Apartments = append([]string(nil), models.DefaultApartments...)
	}
	loc := deps.Engine.Config().Location
	clock := deps.Clock
	if clock == nil {
		clock = timeutil.SystemClock{Location: loc}
	}

	apartments := make(map[string]struct{}, len(opts.Apartments))
	for _, a := range opts.Apartments {
		apartments[a] = struct{}{}
	}

	return &ReservationService{
		store:      deps.Store,
		engine:     deps.Engine,
		validator:  deps.Validator,
		codes:      deps.Codes,
		notifier:   deps.Notifier,
		events:     deps.Events,
		limiter:    deps.Limiter,
		clock:      clock,
		loc:        loc,
		opts:       opts,
		apartments: apartments,
		logger:     logger,
	}
}

// Location is the civil time zone every reservation is interpreted in.
func (s *ReservationService) Location() *time.Location {
	return s.loc
}

// Apartments returns the configured units in display order.
func (s *ReservationService) Apartments() []string {
	return append([]string(nil), s.opts.Apartments...)
}

func (s *ReservationService) List(ctx context.Context) ([]*models.Reservation, error) {
	return s.store.ListAll(ctx)
}

// Upcoming returns reservations starting within the next days days, ascending.
// A non-positive days uses the configured default.
func (s *ReservationService) Upcoming(ctx context.Context, days int) ([]*models.Reservation, error) {
	if days <= 0 {
		days = s.opts.UpcomingDays
	}
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	limit := now.AddDate(0, 0, days)
	out := make([]*models.Reservation, 0, len(all))
	for _, r := range all {
		if r.StartTime.Before(now) || r.StartTime.After(limit) {
			continue
		}
		out = append(out, r)
	}
	sortByStart(out)
	return out, nil
}

// History applies filter and splits the result around now. Past reservations are
// ordered most recent first, upcoming ones soonest first.
func (s *ReservationService) History(ctx context.Context, filter models.HistoryFilter) (models.History, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return models.History{}, err
	}

	now := s.clock.Now()
	h := models.History{
		All:      []*models.Reservation{},
		Past:     []*models.Reservation{},
		Upcoming: []*models.Reservation{},
	}
	for _, r := range all {
		if !filter.Match(r.InLocation(s.loc)) {
			continue
		}
		h.All = append(h.All, r)
		if r.IsPast(now) {
			h.Past = append(h.Past, r)
		} else {
			h.Upcoming = append(h.Upcoming, r)
		}
	}
	sortByStart(h.All)
	sortByStart(h.Upcoming)
	sort.SliceStable(h.Past, func(i, j int) bool { return h.Past[i].StartTime.After(h.Past[j].StartTime) })
	return h, nil
}

func (s *ReservationService) Get(ctx context.Context, id string) (*models.Reservation, error) {
	return s.store.GetByID(ctx, id)
}

// Create validates the input, persists the reservation with a fresh cancellation code and
// attempts the confirmation email. A failed email is reported, never rolled back.
func (s *ReservationService) Create(ctx context.Context, in models.ReservationInput) (*CreateResult, error) {
	in = normalize(in)
	if err := s.checkInput(in, true); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(in.StartTime, in.EndTime).Err(); err != nil {
		return nil, err
	}
	if err := s.checkFree(ctx, in.StartTime, in.EndTime, ""); err != nil {
		return nil, err
	}

	code, err := s.codes.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate cancellation code: %w", err)
	}

	r := &models.Reservation{
		Name:             in.Name,
		ApartmentNumber:  in.ApartmentNumber,
		Title:            in.Title,
		Description:      in.Description,
		StartTime:        in.StartTime,
		EndTime:          in.EndTime,
		CancellationCode: code,
		UserID:           in.UserID,
	}
	if err := s.store.Insert(ctx, r); err != nil {
		if domain.IsConflict(err) {
			metrics.IncSlotConflict()
		}
		return nil, err
	}
	metrics.IncReservationCreated()
	s.publish(events.EventReservationCreated, r, "")

	s.logger.Info().
		Str("reservation_id", r.ID).
		Str("apartment", r.ApartmentNumber).
		Time("start", r.StartTime).
		Time("end", r.EndTime).
		Dur("duration", r.Duration()).
		Msg("Reservation created")

	res := &CreateResult{
		Reservation:      r,
		CancellationCode: code,
		Share:            notification.NewShareLinks(r, code, s.loc),
	}
	res.Warning = s.sameDayWarning(ctx, r)

	if in.Email != "" && s.notifier != nil {
		result, err := s.notifier.SendReservationEmail(ctx, in.Email, r, code)
		if err != nil {
			s.logger.Warn().Err(err).Str("reservation_id", r.ID).Msg("Failed to send confirmation email")
		}
		res.EmailSent = err == nil && result.Success
		res.EmailMessage = result.Message
		if !res.EmailSent {
			res.Warning = joinWarnings(res.Warning, result.Message)
		}
		metrics.IncNotification("email", res.EmailSent)
	}
	return res, nil
}

// Update rewrites the mutable fields of an existing reservation. The caller must be the
// owner or present the cancellation code.
func (s *ReservationService) Update(ctx context.Context, id, userID, code string, in models.ReservationInput) (*models.Reservation, error) {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeEdit(ctx, existing, userID, code); err != nil {
		return nil, err
	}

	in = normalize(in)
	if err := s.checkInput(in, false); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(in.StartTime, in.EndTime).Err(); err != nil {
		return nil, err
	}
	if err := s.checkFree(ctx, in.StartTime, in.EndTime, id); err != nil {
		return nil, err
	}

	updated := *existing
	updated.Name = in.Name
	updated.ApartmentNumber = in.ApartmentNumber
	updated.Title = in.Title
	updated.Description = in.Description
	updated.StartTime = in.StartTime
	updated.EndTime = in.EndTime

	if err := s.store.Update(ctx, &updated); err != nil {
		if domain.IsConflict(err) {
			metrics.IncSlotConflict()
		}
		return nil, err
	}
	s.publish(events.EventReservationUpdated, &updated, "")
	s.logger.Info().Str("reservation_id", id).Msg("Reservation updated")
	return &updated, nil
}

// DeleteOwned removes a reservation on behalf of its owner.
func (s *ReservationService) DeleteOwned(ctx context.Context, id, userID string) error {
	if userID == "" {
		return domain.ErrForbidden
	}
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if r.UserID != userID {
		return domain.ErrForbidden
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(events.EventReservationCancelled, r, cancelReasonOwner)
	s.logger.Info().Str("reservation_id", id).Str("user_id", userID).Msg("Reservation deleted by owner")
	return nil
}

// CancelWithCode deletes the reservation when code matches its cancellation code.
// Business outcomes are reported in the result; the error is reserved for store failures.
func (s *ReservationService) CancelWithCode(ctx context.Context, id, code string) (CancelResult, error) {
	if s.throttled(ctx, id) {
		metrics.IncCancellation(metrics.CancelThrottled)
		return CancelResult{Message: MsgTooManyTries}, nil
	}

	r, err := s.store.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncCancellation(metrics.CancelNotFound)
		return CancelResult{Message: MsgNotFound}, nil
	}
	if err != nil {
		return CancelResult{}, err
	}

	if !codeMatches(r.CancellationCode, code) {
		metrics.IncCancellation(metrics.CancelWrongCode)
		s.logger.Info().Str("reservation_id", id).Msg("Cancellation rejected: wrong code")
		return CancelResult{Message: MsgWrongCode}, nil
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncCancellation(metrics.CancelNotFound)
			return CancelResult{Message: MsgNotFound}, nil
		}
		return CancelResult{}, err
	}

	if s.limiting() {
		if err := s.limiter.Reset(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("reservation_id", id).Msg("Failed to reset cancellation attempts")
		}
	}
	metrics.IncCancellation(metrics.CancelSuccess)
	s.publish(events.EventReservationCancelled, r, cancelReasonCode)
	s.logger.Info().Str("reservation_id", id).Msg("Reservation cancelled with code")
	return CancelResult{Success: true, Message: MsgCancelled}, nil
}

// Status probes the store.
func (s *ReservationService) Status(ctx context.Context) models.ConnectionStatus {
	status := models.ConnectionStatus{Timestamp: s.clock.Now()}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Store connectivity check failed")
		status.Message = MsgNotConnected
		return status
	}
	status.Connected = true
	status.Message = MsgConnected
	return status
}

// StartSlots returns the start slots of day with the same-day advisory.
func (s *ReservationService) StartSlots(ctx context.Context, day time.Time) (DaySlots, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return DaySlots{}, err
	}
	count := s.engine.SameDayCount(day, all, "")
	slots := s.engine.StartSlots(day, all)
	free := 0
	for _, slot := range slots {
		if slot.Selectable() {
			free++
		}
	}
	return DaySlots{
		Date:    timeutil.DateKey(day, s.loc),
		Slots:   slots,
		Free:    free,
		Count:   count,
		Level:   availability.Classify(count),
		Warning: availability.SameDayWarning(count),
	}, nil
}

// EndSlots returns the end slots for a reservation starting at start, ignoring excludeID.
func (s *ReservationService) EndSlots(ctx context.Context, day, start time.Time, excludeID string) ([]models.TimeSlot, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.EndSlots(day, start, all, excludeID), nil
}

// Calendar returns the day markers of every day holding a reservation.
func (s *ReservationService) Calendar(ctx context.Context) ([]models.DayMarker, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.DayMarkers(all), nil
}

func (s *ReservationService) checkInput(in models.ReservationInput, creating bool) error {
	if in.Name == "" {
		return validationError(msgNameRequired)
	}
	if in.Title == "" {
		return validationError(msgTitleRequired)
	}
	if _, ok := s.apartments[in.ApartmentNumber]; !ok {
		return validationError(fmt.Sprintf(msgUnknownApt, in.ApartmentNumber))
	}
	if creating && in.Email != "" && !emailPattern.MatchString(in.Email) {
		return validationError(msgInvalidEmail)
	}
	return nil
}

// checkFree rejects an interval that overlaps a listed reservation. The store repeats the
// check inside its write transaction, so a failed listing is not fatal.
func (s *ReservationService) checkFree(ctx context.Context, start, end time.Time, excludeID string) error {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load reservations for overlap check")
		return nil
	}
	if !availability.IsFree(start, end, all, excludeID) {
		metrics.IncSlotConflict()
		return domain.ErrSlotTaken
	}
	return nil
}

// authorizeEdit admits the owner, or anyone holding the cancellation code.
func (s *ReservationService) authorizeEdit(ctx context.Context, r *models.Reservation, userID, code string) error {
	if r.UserID != "" && r.UserID == strings.TrimSpace(userID) {
		return nil
	}
	if strings.TrimSpace(code) == "" {
		return domain.ErrForbidden
	}
	if s.throttled(ctx, r.ID) {
		return domain.ErrTooManyAttempts
	}
	if !codeMatches(r.CancellationCode, code) {
		s.logger.Info().Str("reservation_id", r.ID).Msg("Edit rejected: wrong code")
		return domain.ErrForbidden
	}
	return nil
}

func codeMatches(want, given string) bool {
	given = strings.TrimSpace(given)
	return given != "" && subtle.ConstantTimeCompare([]byte(want), []byte(given)) == 1
}

func (s *ReservationService) sameDayWarning(ctx context.Context, r *models.Reservation) string {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load reservations for same-day warning")
		return ""
	}
	return availability.SameDayWarning(s.engine.SameDayCount(r.StartTime, all, r.ID))
}

func (s *ReservationService) limiting() bool {
	return s.limiter != nil && s.opts.CancelMaxAttempts > 0
}

// throttled fails open when the limiter backend errors.
func (s *ReservationService) throttled(ctx context.Context, id string) bool {
	if !s.limiting() {
		return false
	}
	ok, err := s.limiter.Allow(ctx, id, s.opts.CancelMaxAttempts, s.opts.CancelWindow)
	if err != nil {
		s.logger.Warn().Err(err).Str("reservation_id", id).Msg("Attempt limiter unavailable")
		return false
	}
	if !ok {
		s.logger.Warn().Str("reservation_id", id).Msg("Cancellation attempts exceeded")
	}
	return !ok
}

func (s *ReservationService) publish(eventType string, r *models.Reservation, reason string) {
	if s.events == nil {
		return
	}
	payload := events.NewReservationPayload(r)
	payload.Reason = reason
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Str("reservation_id", r.ID).Msg("Failed to publish event")
	}
}

func normalize(in models.ReservationInput) models.ReservationInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.ApartmentNumber = strings.TrimSpace(in.ApartmentNumber)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.UserID = strings.TrimSpace(in.UserID)
	return in
}

func joinWarnings(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
}

func sortByStart(list []*models.Reservation) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })
}
