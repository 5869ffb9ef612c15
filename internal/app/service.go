package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"planoflife/api/internal/auth"
	"planoflife/api/internal/authpw"
	"planoflife/api/internal/config"
	"planoflife/api/internal/dates"
	"planoflife/api/internal/insight"
	"planoflife/api/internal/store"
	"planoflife/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// defaultNorms are seeded into every new account, in display order.
var defaultNorms = []string{
	"Morning Offering",
	"Morning Prayer",
	"Holy Mass",
	"Angelus",
	"Visit To The Blessed Sacrament",
	"Holy Rosary",
	"Spiritual Reading",
	"Examination Of Conscience",
	"Three Purity Hail Maries",
}

const insightWindowDays = 7

type planStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	ListNorms(ctx context.Context, userID string, activeOnly bool) ([]store.Norm, error)
	GetNorm(ctx context.Context, userID, normID string) (store.Norm, error)
	CountNorms(ctx context.Context, userID string) (int, error)
	CountActiveNorms(ctx context.Context, userID string) (int, error)
	InsertNorm(context.Context, store.Norm) error
	MaxDisplayOrder(ctx context.Context, userID string) (int, error)
	SetNormActive(ctx context.Context, userID, normID string, active bool) error
	DeleteNorm(ctx context.Context, userID, normID string) error
	ReorderNorms(ctx context.Context, userID string, orderedIDs []string) error
	IsCompleted(ctx context.Context, userID, normName string, day time.Time) (bool, error)
	InsertCompletion(ctx context.Context, userID, normName string, day time.Time) (bool, error)
	DeleteCompletion(ctx context.Context, userID, normName string, day time.Time) error
	ListCompletionsInRange(ctx context.Context, userID string, start, end time.Time) ([]store.Completion, error)
	CountCompletionsByDate(ctx context.Context, userID string, start, end time.Time) (map[string]int, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

type suggester interface {
	IsConfigured() bool
	Generate(ctx context.Context, stats insight.Stats) (string, error)
}

type Service struct {
	cfg      config.Config
	store    planStore
	sessions sessionStore
	suggest  suggester
	authPW   *authpw.Service
}

func New(cfg config.Config, dataStore planStore, sessions sessionStore, suggestClient suggester, authService *authpw.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		suggest:  suggestClient,
		authPW:   authService,
	}
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authPW
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented token is revoked and a
// fresh pair is issued. The user record is re-read so display name
// changes survive rotation.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	sessionUser, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, sessionUser.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// SeedDefaults installs the default norm set for an account that has
// no norms yet. Seeding an already-populated account is rejected so the
// operation cannot duplicate or reorder existing norms.
func (s *Service) SeedDefaults(ctx context.Context, userID string) error {
	count, err := s.store.CountNorms(ctx, userID)
	if err != nil {
		return err
	}
	if count > 0 {
		return domainError(http.StatusConflict, "ALREADY_SEEDED", "Norms already seeded for this account", nil)
	}
	for position, name := range defaultNorms {
		if err := s.store.InsertNorm(ctx, store.Norm{
			ID:           util.NewID("norm"),
			UserID:       userID,
			Name:         name,
			IsActive:     true,
			IsDefault:    true,
			DisplayOrder: position + 1,
		}); err != nil {
			return err
		}
	}
	return nil
}

// EnsureSeeded seeds defaults on first touch and is a no-op afterwards.
func (s *Service) EnsureSeeded(ctx context.Context, userID string) error {
	err := s.SeedDefaults(ctx, userID)
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Code == "ALREADY_SEEDED" {
		return nil
	}
	return err
}

func (s *Service) ListNorms(ctx context.Context, userID string, activeOnly bool) (map[string]any, error) {
	if err := s.EnsureSeeded(ctx, userID); err != nil {
		return nil, err
	}
	norms, err := s.store.ListNorms(ctx, userID, activeOnly)
	if err != nil {
		return nil, err
	}
	return map[string]any{"norms": normItems(norms)}, nil
}

func normItems(norms []store.Norm) []map[string]any {
	items := make([]map[string]any, 0, len(norms))
	for _, norm := range norms {
		items = append(items, map[string]any{
			"id":           norm.ID,
			"name":         norm.Name,
			"isActive":     norm.IsActive,
			"isDefault":    norm.IsDefault,
			"displayOrder": norm.DisplayOrder,
		})
	}
	return items
}

func (s *Service) AddCustomNorm(ctx context.Context, userID, name string) (map[string]any, error) {
	normName := strings.TrimSpace(name)
	if normName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	norms, err := s.store.ListNorms(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	for _, existing := range norms {
		if strings.EqualFold(existing.Name, normName) {
			return nil, domainError(http.StatusConflict, "INVARIANT_VIOLATION", "a norm with that name already exists", nil)
		}
	}
	maxOrder, err := s.store.MaxDisplayOrder(ctx, userID)
	if err != nil {
		return nil, err
	}
	norm := store.Norm{
		ID:           util.NewID("norm"),
		UserID:       userID,
		Name:         normName,
		IsActive:     true,
		IsDefault:    false,
		DisplayOrder: maxOrder + 1,
	}
	if err := s.store.InsertNorm(ctx, norm); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":           norm.ID,
		"name":         norm.Name,
		"isActive":     norm.IsActive,
		"isDefault":    norm.IsDefault,
		"displayOrder": norm.DisplayOrder,
	}, nil
}

func (s *Service) SetNormActive(ctx context.Context, userID, normID string, active bool) (map[string]any, error) {
	if err := s.store.SetNormActive(ctx, userID, normID, active); err != nil {
		return nil, err
	}
	return s.ListNorms(ctx, userID, false)
}

// DeleteNorm removes a custom norm. Default norms can only be
// deactivated, never deleted, so the seeded set stays recoverable.
func (s *Service) DeleteNorm(ctx context.Context, userID, normID string) (map[string]any, error) {
	norm, err := s.store.GetNorm(ctx, userID, normID)
	if err != nil {
		return nil, err
	}
	if norm.IsDefault {
		return nil, domainError(http.StatusConflict, "INVARIANT_VIOLATION", "default norms cannot be deleted, deactivate instead", nil)
	}
	if err := s.store.DeleteNorm(ctx, userID, normID); err != nil {
		return nil, err
	}
	return s.ListNorms(ctx, userID, false)
}

// ReorderNorms replaces the display order with the given ID sequence.
// The sequence must be an exact permutation of the account's norms.
func (s *Service) ReorderNorms(ctx context.Context, userID string, normIDs []string) (map[string]any, error) {
	norms, err := s.store.ListNorms(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	if len(normIDs) != len(norms) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "normIds must include every norm exactly once", nil)
	}
	known := make(map[string]bool, len(norms))
	for _, norm := range norms {
		known[norm.ID] = true
	}
	seen := make(map[string]bool, len(normIDs))
	for _, id := range normIDs {
		if !known[id] || seen[id] {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "normIds must include every norm exactly once", nil)
		}
		seen[id] = true
	}
	if err := s.store.ReorderNorms(ctx, userID, normIDs); err != nil {
		return nil, err
	}
	return s.ListNorms(ctx, userID, false)
}

func (s *Service) DailyView(ctx context.Context, userID string, day time.Time) (map[string]any, error) {
	if err := s.EnsureSeeded(ctx, userID); err != nil {
		return nil, err
	}
	norms, err := s.store.ListNorms(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	completions, err := s.store.ListCompletionsInRange(ctx, userID, day, day)
	if err != nil {
		return nil, err
	}
	completed := make(map[string]bool, len(completions))
	for _, completion := range completions {
		completed[completion.NormName] = true
	}
	items := make([]map[string]any, 0, len(norms))
	for _, norm := range norms {
		items = append(items, map[string]any{
			"normId":  norm.ID,
			"name":    norm.Name,
			"checked": completed[norm.Name],
		})
	}
	return map[string]any{
		"date":  dates.Format(day),
		"items": items,
	}, nil
}

// ToggleCompletion flips the completion mark for one norm on one day
// and reports the new state.
func (s *Service) ToggleCompletion(ctx context.Context, userID string, day time.Time, normName string) (map[string]any, error) {
	name := strings.TrimSpace(normName)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "normName is required", nil)
	}
	norms, err := s.store.ListNorms(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	found := false
	for _, norm := range norms {
		if norm.Name == name {
			found = true
			break
		}
	}
	if !found {
		return nil, sql.ErrNoRows
	}

	done, err := s.store.IsCompleted(ctx, userID, name, day)
	if err != nil {
		return nil, err
	}
	if done {
		if err := s.store.DeleteCompletion(ctx, userID, name, day); err != nil {
			return nil, err
		}
		return map[string]any{"normName": name, "date": dates.Format(day), "completed": false}, nil
	}
	if _, err := s.store.InsertCompletion(ctx, userID, name, day); err != nil {
		return nil, err
	}
	return map[string]any{"normName": name, "date": dates.Format(day), "completed": true}, nil
}

// WeekView aggregates completion counts for the 7 days starting at the
// given anchor. The anchor is taken verbatim, any weekday works; days
// with no completions still appear with a zero count.
func (s *Service) WeekView(ctx context.Context, userID string, start time.Time) (map[string]any, error) {
	if err := s.EnsureSeeded(ctx, userID); err != nil {
		return nil, err
	}
	weekStart := dates.Midnight(start)
	weekEnd := dates.AddDays(weekStart, 6)

	activeCount, err := s.store.CountActiveNorms(ctx, userID)
	if err != nil {
		return nil, err
	}
	total := activeCount
	if total < 1 {
		total = 1
	}

	counts, err := s.store.CountCompletionsByDate(ctx, userID, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}

	days := make([]map[string]any, 0, 7)
	for offset := 0; offset < 7; offset++ {
		day := dates.AddDays(weekStart, offset)
		key := dates.Format(day)
		completedCount := counts[key]
		days = append(days, map[string]any{
			"date":      key,
			"completed": completedCount,
			"total":     total,
			"ratio":     float64(completedCount) / float64(total),
		})
	}
	return map[string]any{
		"weekStart": dates.Format(weekStart),
		"days":      days,
	}, nil
}

// DailySuggestion analyzes the trailing week of completions and asks
// the generator for one tip. It degrades with explicit codes rather
// than failing the whole request path when the generator is down.
func (s *Service) DailySuggestion(ctx context.Context, userID string, day time.Time) (map[string]any, error) {
	if s.suggest == nil || !s.suggest.IsConfigured() {
		return nil, domainError(http.StatusServiceUnavailable, "SUGGESTIONS_UNAVAILABLE", "Suggestion generator is not configured", nil)
	}
	if err := s.EnsureSeeded(ctx, userID); err != nil {
		return nil, err
	}

	norms, err := s.store.ListNorms(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	tracked := make([]string, 0, len(norms))
	for _, norm := range norms {
		tracked = append(tracked, norm.Name)
	}

	windowStart := dates.AddDays(day, -(insightWindowDays - 1))
	completions, err := s.store.ListCompletionsInRange(ctx, userID, windowStart, day)
	if err != nil {
		return nil, err
	}
	completedByDay := make(map[string]map[string]bool)
	for _, completion := range completions {
		key := dates.Format(completion.CompletedDate)
		if completedByDay[key] == nil {
			completedByDay[key] = make(map[string]bool)
		}
		completedByDay[key][completion.NormName] = true
	}

	window := insight.BuildWindow(tracked, completedByDay, day, insightWindowDays)
	stats, err := insight.Compute(window)
	if err != nil {
		if errors.Is(err, insight.ErrNoData) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "no active norms to analyze", nil)
		}
		return nil, err
	}

	suggestion, err := s.suggest.Generate(ctx, stats)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"suggestion": suggestion,
		"stats": map[string]any{
			"overallRate":  stats.OverallRateString(),
			"weakestNorms": stats.WeakestSummary(),
		},
	}, nil
}
