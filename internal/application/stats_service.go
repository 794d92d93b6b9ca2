package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// ConductorStatsRepository aggregates conductor assignments per year.
type ConductorStatsRepository interface {
	CountByConductor(ctx context.Context, year int) ([]ConductorCount, error)
	CountByMonthAndConductor(ctx context.Context, year int) ([]MonthlyConductorCount, error)
}

// UserLister lists users, optionally only active ones.
type UserLister interface {
	ListUsers(ctx context.Context, activeOnly bool) ([]User, error)
}

// StatsService reports how conductor assignments are spread across users.
type StatsService struct {
	stats  ConductorStatsRepository
	users  UserLister
	logger *slog.Logger
}

// NewStatsService constructs a statistics service with the provided dependencies.
func NewStatsService(stats ConductorStatsRepository, users UserLister) *StatsService {
	return NewStatsServiceWithLogger(stats, users, nil)
}

// NewStatsServiceWithLogger constructs a statistics service with a specified logger.
func NewStatsServiceWithLogger(stats ConductorStatsRepository, users UserLister, logger *slog.Logger) *StatsService {
	return &StatsService{stats: stats, users: users, logger: defaultLogger(logger)}
}

func (s *StatsService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "StatsService", operation, attrs...)
}

// PerConductorStats ranks every active user by assignments in year, least
// assigned first. Users without assignments appear with a zero count.
func (s *StatsService) PerConductorStats(ctx context.Context, principal Principal, year int) (stats []ConductorStat, err error) {
	if err = s.authorize(principal, year); err != nil {
		return nil, err
	}

	logger := s.loggerWith(ctx, "PerConductorStats", "principal_id", principal.UserID, "year", year)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute conductor statistics", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "conductor statistics computed", "rows", len(stats))
	}()

	var counts []ConductorCount
	counts, err = s.stats.CountByConductor(ctx, year)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	byConductor := make(map[string]ConductorCount, len(counts))
	for _, c := range counts {
		byConductor[c.ConductorID] = c
	}

	var users []User
	users, err = s.users.ListUsers(ctx, true)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	stats = make([]ConductorStat, 0, len(users))
	for _, u := range users {
		stat := ConductorStat{Conductor: PersonOf(u)}
		if c, ok := byConductor[u.ID]; ok {
			stat.AssignmentCount = c.Count
			last := c.LastDate
			stat.LastAssignedDate = &last
		}
		stats = append(stats, stat)
	}

	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.AssignmentCount != b.AssignmentCount {
			return a.AssignmentCount < b.AssignmentCount
		}
		return personLess(a.Conductor, b.Conductor)
	})
	return
}

// MonthlyStats lists assignment counts per month and conductor for year.
// Only pairs with at least one assignment are reported.
func (s *StatsService) MonthlyStats(ctx context.Context, principal Principal, year int) (stats []MonthlyConductorStat, err error) {
	if err = s.authorize(principal, year); err != nil {
		return nil, err
	}

	logger := s.loggerWith(ctx, "MonthlyStats", "principal_id", principal.UserID, "year", year)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute monthly statistics", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "monthly statistics computed", "rows", len(stats))
	}()

	var counts []MonthlyConductorCount
	counts, err = s.stats.CountByMonthAndConductor(ctx, year)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if len(counts) == 0 {
		return []MonthlyConductorStat{}, nil
	}

	var users []User
	users, err = s.users.ListUsers(ctx, false)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	people := make(map[string]Person, len(users))
	for _, u := range users {
		people[u.ID] = PersonOf(u)
	}

	stats = make([]MonthlyConductorStat, 0, len(counts))
	for _, c := range counts {
		person, ok := people[c.ConductorID]
		if !ok {
			continue
		}
		stats = append(stats, MonthlyConductorStat{Month: c.Month, Conductor: person, AssignmentCount: c.Count})
	}

	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Month != stats[j].Month {
			return stats[i].Month < stats[j].Month
		}
		return personLess(stats[i].Conductor, stats[j].Conductor)
	})
	return
}

func (s *StatsService) authorize(principal Principal, year int) error {
	if s == nil {
		return fmt.Errorf("StatsService is nil")
	}
	if s.stats == nil || s.users == nil {
		return fmt.Errorf("statistics repositories not configured")
	}
	if !principal.Authenticated() {
		return ErrUnauthenticated
	}
	if !principal.CanPlan() {
		return ErrUnauthorized
	}
	if year < 1 || year > 9999 {
		return newValidationError("year", "year must be between 1 and 9999")
	}
	return nil
}

func personLess(a, b Person) bool {
	if a.LastName != b.LastName {
		return a.LastName < b.LastName
	}
	if a.FirstName != b.FirstName {
		return a.FirstName < b.FirstName
	}
	return a.ID < b.ID
}
