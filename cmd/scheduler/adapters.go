package main

import (
	"context"
	"time"

	"github.com/example/cart-scheduler/internal/application"
	"github.com/example/cart-scheduler/internal/persistence"
)

type userRepositoryAdapter struct {
	repo persistence.UserRepository
}

func newUserRepositoryAdapter(repo persistence.UserRepository) *userRepositoryAdapter {
	return &userRepositoryAdapter{repo: repo}
}

func (a *userRepositoryAdapter) CreateUser(ctx context.Context, user application.User) error {
	return a.repo.CreateUser(ctx, toPersistenceUser(user))
}

func (a *userRepositoryAdapter) UpdateUser(ctx context.Context, user application.User) error {
	return a.repo.UpdateUser(ctx, toPersistenceUser(user))
}

func (a *userRepositoryAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) GetUserByLogin(ctx context.Context, login string) (application.User, error) {
	stored, err := a.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) ListUsers(ctx context.Context, activeOnly bool) ([]application.User, error) {
	models, err := a.repo.ListUsers(ctx, persistence.UserFilter{ActiveOnly: activeOnly})
	if err != nil {
		return nil, err
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

func (a *userRepositoryAdapter) DeleteUser(ctx context.Context, id string) error {
	return a.repo.DeleteUser(ctx, id)
}

func (a *userRepositoryAdapter) UsernameExists(ctx context.Context, username string) (bool, error) {
	return a.repo.UsernameExists(ctx, username)
}

func (a *userRepositoryAdapter) MissingUserIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return a.repo.MissingUserIDs(ctx, ids)
}

func (a *userRepositoryAdapter) CountUsersWithRole(ctx context.Context, role application.Role) (int, error) {
	return a.repo.CountUsersWithRole(ctx, string(role))
}

type cartRepositoryAdapter struct {
	repo persistence.CartRepository
}

func newCartRepositoryAdapter(repo persistence.CartRepository) *cartRepositoryAdapter {
	return &cartRepositoryAdapter{repo: repo}
}

func (a *cartRepositoryAdapter) CreateCart(ctx context.Context, cart application.Cart) error {
	return a.repo.CreateCart(ctx, persistence.Cart(cart))
}

func (a *cartRepositoryAdapter) UpdateCart(ctx context.Context, cart application.Cart) error {
	return a.repo.UpdateCart(ctx, persistence.Cart(cart))
}

func (a *cartRepositoryAdapter) GetCart(ctx context.Context, id string) (application.Cart, error) {
	stored, err := a.repo.GetCart(ctx, id)
	if err != nil {
		return application.Cart{}, err
	}
	return application.Cart(stored), nil
}

func (a *cartRepositoryAdapter) DeleteCart(ctx context.Context, id string) error {
	return a.repo.DeleteCart(ctx, id)
}

func (a *cartRepositoryAdapter) ListCarts(ctx context.Context, activeOnly bool) ([]application.Cart, error) {
	models, err := a.repo.ListCarts(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	carts := make([]application.Cart, 0, len(models))
	for _, model := range models {
		carts = append(carts, application.Cart(model))
	}
	return carts, nil
}

type bookingRepositoryAdapter struct {
	repo persistence.BookingRepository
}

func newBookingRepositoryAdapter(repo persistence.BookingRepository) *bookingRepositoryAdapter {
	return &bookingRepositoryAdapter{repo: repo}
}

func (a *bookingRepositoryAdapter) CreateBookingWithinCapacity(ctx context.Context, booking application.Booking, capacity int) error {
	return a.repo.CreateBookingWithinCapacity(ctx, persistence.Booking{
		ID:             booking.ID,
		CartID:         booking.CartID,
		Start:          booking.Start,
		End:            booking.End,
		ParticipantIDs: append([]string(nil), booking.ParticipantIDs...),
		CreatedAt:      booking.CreatedAt,
	}, capacity)
}

func (a *bookingRepositoryAdapter) GetBooking(ctx context.Context, id string) (application.BookingSummary, error) {
	stored, err := a.repo.GetBooking(ctx, id)
	if err != nil {
		return application.BookingSummary{}, err
	}
	return toBookingSummary(stored), nil
}

func (a *bookingRepositoryAdapter) ListBookings(ctx context.Context, query application.BookingQuery) ([]application.BookingSummary, error) {
	models, err := a.repo.ListBookings(ctx, persistence.BookingFilter{
		CartID:        query.CartID,
		ParticipantID: query.ParticipantID,
		Start:         cloneTime(query.Start),
		End:           cloneTime(query.End),
	})
	if err != nil {
		return nil, err
	}
	summaries := make([]application.BookingSummary, 0, len(models))
	for _, model := range models {
		summaries = append(summaries, toBookingSummary(model))
	}
	return summaries, nil
}

func (a *bookingRepositoryAdapter) CountOverlapping(ctx context.Context, cartID string, start, end time.Time) (int, error) {
	return a.repo.CountOverlapping(ctx, cartID, start, end)
}

func (a *bookingRepositoryAdapter) CountOverlappingByCart(ctx context.Context, start, end time.Time) (map[string]int, error) {
	return a.repo.CountOverlappingByCart(ctx, start, end)
}

func (a *bookingRepositoryAdapter) DeleteBooking(ctx context.Context, id string) error {
	return a.repo.DeleteBooking(ctx, id)
}

type meetingPointRepositoryAdapter struct {
	repo persistence.MeetingPointRepository
}

func newMeetingPointRepositoryAdapter(repo persistence.MeetingPointRepository) *meetingPointRepositoryAdapter {
	return &meetingPointRepositoryAdapter{repo: repo}
}

func (a *meetingPointRepositoryAdapter) CreateMeetingPoints(ctx context.Context, points []application.MeetingPoint) error {
	models := make([]persistence.MeetingPoint, 0, len(points))
	for _, point := range points {
		models = append(models, toPersistenceMeetingPoint(point))
	}
	return a.repo.CreateMeetingPoints(ctx, models)
}

func (a *meetingPointRepositoryAdapter) UpdateMeetingPoint(ctx context.Context, point application.MeetingPoint) error {
	return a.repo.UpdateMeetingPoint(ctx, toPersistenceMeetingPoint(point))
}

func (a *meetingPointRepositoryAdapter) GetMeetingPoint(ctx context.Context, id string) (application.MeetingPoint, error) {
	stored, err := a.repo.GetMeetingPoint(ctx, id)
	if err != nil {
		return application.MeetingPoint{}, err
	}
	return toApplicationMeetingPoint(stored), nil
}

func (a *meetingPointRepositoryAdapter) ListMeetingPointsByMonth(ctx context.Context, month string) ([]application.MeetingPoint, error) {
	models, err := a.repo.ListMeetingPointsByMonth(ctx, month)
	if err != nil {
		return nil, err
	}
	points := make([]application.MeetingPoint, 0, len(models))
	for _, model := range models {
		points = append(points, toApplicationMeetingPoint(model))
	}
	return points, nil
}

func (a *meetingPointRepositoryAdapter) DeleteMeetingPoint(ctx context.Context, id string) error {
	return a.repo.DeleteMeetingPoint(ctx, id)
}

func (a *meetingPointRepositoryAdapter) DeleteSeries(ctx context.Context, seriesID string) (int, error) {
	return a.repo.DeleteSeries(ctx, seriesID)
}

func (a *meetingPointRepositoryAdapter) CountByConductor(ctx context.Context, year int) ([]application.ConductorCount, error) {
	models, err := a.repo.CountByConductor(ctx, year)
	if err != nil {
		return nil, err
	}
	counts := make([]application.ConductorCount, 0, len(models))
	for _, model := range models {
		counts = append(counts, application.ConductorCount(model))
	}
	return counts, nil
}

func (a *meetingPointRepositoryAdapter) CountByMonthAndConductor(ctx context.Context, year int) ([]application.MonthlyConductorCount, error) {
	models, err := a.repo.CountByMonthAndConductor(ctx, year)
	if err != nil {
		return nil, err
	}
	counts := make([]application.MonthlyConductorCount, 0, len(models))
	for _, model := range models {
		counts = append(counts, application.MonthlyConductorCount(model))
	}
	return counts, nil
}

type inviteRepositoryAdapter struct {
	repo persistence.InviteTokenRepository
}

func newInviteRepositoryAdapter(repo persistence.InviteTokenRepository) *inviteRepositoryAdapter {
	return &inviteRepositoryAdapter{repo: repo}
}

func (a *inviteRepositoryAdapter) IssueInviteToken(ctx context.Context, token application.InviteToken) error {
	return a.repo.IssueInviteToken(ctx, persistence.InviteToken(token))
}

func (a *inviteRepositoryAdapter) ResetCredentials(ctx context.Context, token application.InviteToken) error {
	return a.repo.ResetCredentials(ctx, persistence.InviteToken(token))
}

func (a *inviteRepositoryAdapter) GetInviteToken(ctx context.Context, token string) (application.InviteToken, error) {
	stored, err := a.repo.GetInviteToken(ctx, token)
	if err != nil {
		return application.InviteToken{}, err
	}
	return application.InviteToken(stored), nil
}

func (a *inviteRepositoryAdapter) CompleteRegistration(ctx context.Context, tokenID, userID, passwordHash string, usedAt time.Time) error {
	return a.repo.CompleteRegistration(ctx, tokenID, userID, passwordHash, usedAt)
}

type refreshTokenRepositoryAdapter struct {
	repo persistence.RefreshTokenRepository
}

func newRefreshTokenRepositoryAdapter(repo persistence.RefreshTokenRepository) *refreshTokenRepositoryAdapter {
	return &refreshTokenRepositoryAdapter{repo: repo}
}

func (a *refreshTokenRepositoryAdapter) CreateRefreshToken(ctx context.Context, token application.RefreshToken) error {
	return a.repo.CreateRefreshToken(ctx, persistence.RefreshToken(token))
}

func (a *refreshTokenRepositoryAdapter) GetRefreshToken(ctx context.Context, token string) (application.RefreshToken, error) {
	stored, err := a.repo.GetRefreshToken(ctx, token)
	if err != nil {
		return application.RefreshToken{}, err
	}
	return application.RefreshToken(stored), nil
}

func (a *refreshTokenRepositoryAdapter) RevokeRefreshToken(ctx context.Context, token string) error {
	return a.repo.RevokeRefreshToken(ctx, token)
}

type eventRepositoryAdapter struct {
	repo persistence.EventRepository
}

func newEventRepositoryAdapter(repo persistence.EventRepository) *eventRepositoryAdapter {
	return &eventRepositoryAdapter{repo: repo}
}

func (a *eventRepositoryAdapter) CreateEvent(ctx context.Context, event application.Event) error {
	return a.repo.CreateEvent(ctx, persistence.Event(event))
}

func (a *eventRepositoryAdapter) UpdateEvent(ctx context.Context, event application.Event) error {
	return a.repo.UpdateEvent(ctx, persistence.Event(event))
}

func (a *eventRepositoryAdapter) GetEvent(ctx context.Context, id string) (application.Event, error) {
	stored, err := a.repo.GetEvent(ctx, id)
	if err != nil {
		return application.Event{}, err
	}
	return application.Event(stored), nil
}

func (a *eventRepositoryAdapter) ListEvents(ctx context.Context) ([]application.Event, error) {
	models, err := a.repo.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	events := make([]application.Event, 0, len(models))
	for _, model := range models {
		events = append(events, application.Event(model))
	}
	return events, nil
}

func (a *eventRepositoryAdapter) DeleteEvent(ctx context.Context, id string) error {
	return a.repo.DeleteEvent(ctx, id)
}

func toApplicationUser(model persistence.User) application.User {
	roles := make([]application.Role, 0, len(model.Roles))
	for _, role := range model.Roles {
		roles = append(roles, application.Role(role))
	}
	return application.User{
		ID:           model.ID,
		FirstName:    model.FirstName,
		LastName:     model.LastName,
		Username:     model.Username,
		Email:        cloneString(model.Email),
		PasswordHash: cloneString(model.PasswordHash),
		Roles:        application.NewRoleSet(roles...),
		Active:       model.Active,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

func toPersistenceUser(user application.User) persistence.User {
	return persistence.User{
		ID:           user.ID,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Username:     user.Username,
		Email:        cloneString(user.Email),
		PasswordHash: cloneString(user.PasswordHash),
		Roles:        user.Roles.Strings(),
		Active:       user.Active,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func toBookingSummary(model persistence.BookingDetail) application.BookingSummary {
	participants := make([]application.Person, 0, len(model.Participants))
	for _, p := range model.Participants {
		participants = append(participants, application.Person(p))
	}
	return application.BookingSummary{
		ID:           model.ID,
		CartID:       model.CartID,
		CartName:     model.CartName,
		Start:        model.Start,
		End:          model.End,
		Participants: participants,
		CreatedAt:    model.CreatedAt,
	}
}

func toApplicationMeetingPoint(model persistence.MeetingPointDetail) application.MeetingPoint {
	point := application.MeetingPoint{
		ID:          model.ID,
		Date:        model.Date,
		Time:        model.Time,
		Location:    model.Location,
		ConductorID: cloneString(model.ConductorID),
		Outline:     cloneString(model.Outline),
		Link:        cloneString(model.Link),
		Month:       model.Month,
		SeriesID:    cloneString(model.SeriesID),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
	if model.Conductor != nil {
		conductor := application.Person(*model.Conductor)
		point.Conductor = &conductor
	}
	return point
}

func toPersistenceMeetingPoint(point application.MeetingPoint) persistence.MeetingPoint {
	return persistence.MeetingPoint{
		ID:          point.ID,
		Date:        point.Date,
		Time:        point.Time,
		Location:    point.Location,
		ConductorID: cloneString(point.ConductorID),
		Outline:     cloneString(point.Outline),
		Link:        cloneString(point.Link),
		Month:       point.Month,
		SeriesID:    cloneString(point.SeriesID),
		CreatedAt:   point.CreatedAt,
		UpdatedAt:   point.UpdatedAt,
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
