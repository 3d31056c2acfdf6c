package services

import (
	"context"
	"errors"
	"time"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

type EntitlementKind string

const (
	EntitlementSuperAdmin    EntitlementKind = "super_admin"
	EntitlementCoach         EntitlementKind = "coach"
	EntitlementFreeGrant     EntitlementKind = "free_grant"
	EntitlementPurchased     EntitlementKind = "purchased"
	EntitlementPromoEntitled EntitlementKind = "promo_entitled"
	EntitlementPublicLive    EntitlementKind = "public_live"
	EntitlementDenied        EntitlementKind = "denied"
)

// Entitlement is the single answer to "may this user enter this session".
type Entitlement struct {
	Kind               EntitlementKind `json:"kind"`
	SubscriptionActive bool            `json:"subscription_active,omitempty"`
	AccessID           *int64          `json:"access_id,omitempty"`
	Reason             string          `json:"reason,omitempty"`
}

func (e Entitlement) Allowed() bool {
	switch e.Kind {
	case EntitlementDenied:
		return false
	case EntitlementCoach:
		return e.SubscriptionActive
	default:
		return true
	}
}

type EntitlementFacts struct {
	UserID             int64
	Role               string
	SubscriptionActive bool
	Session            *models.LiveSession
	Accesses           []models.UserAccess
	Now                time.Time
}

func EvaluateEntitlement(f EntitlementFacts) Entitlement {
	if f.Role == models.RoleAdmin {
		return Entitlement{Kind: EntitlementSuperAdmin}
	}
	if f.Session == nil {
		return Entitlement{Kind: EntitlementDenied, Reason: "session not found"}
	}

	ownsSession := f.Role == models.RoleCoach && f.Session.CoachID == f.UserID
	if ownsSession && f.SubscriptionActive {
		return Entitlement{Kind: EntitlementCoach, SubscriptionActive: true}
	}

	for i := range f.Accesses {
		access := f.Accesses[i]
		if access.UserID != f.UserID || !access.ActiveAt(f.Now) {
			continue
		}
		if access.SessionID != nil && *access.SessionID != f.Session.ID {
			continue
		}
		id := access.ID
		switch {
		case access.PromoRedemptionID != nil:
			return Entitlement{Kind: EntitlementPromoEntitled, AccessID: &id}
		case access.TransactionID != nil:
			return Entitlement{Kind: EntitlementPurchased, AccessID: &id}
		default:
			return Entitlement{Kind: EntitlementFreeGrant, AccessID: &id}
		}
	}

	if f.Session.IsPublic && f.Session.Status == models.LiveSessionLive {
		return Entitlement{Kind: EntitlementPublicLive}
	}
	if ownsSession {
		return Entitlement{Kind: EntitlementCoach, SubscriptionActive: false, Reason: "coach subscription inactive"}
	}
	if f.Session.Status == models.LiveSessionEnded {
		return Entitlement{Kind: EntitlementDenied, Reason: "session ended"}
	}
	return Entitlement{Kind: EntitlementDenied, Reason: "no active access"}
}

type sessionReader interface {
	GetByID(ctx context.Context, sessionID int64) (*models.LiveSession, error)
}

type accessLister interface {
	ListForUserSession(ctx context.Context, userID int64, sessionID int64) ([]models.UserAccess, error)
}

type EntitlementService struct {
	sessions sessionReader
	users    userReader
	accesses accessLister
	now      func() time.Time
}

func NewEntitlementService(sessions sessionReader, users userReader, accesses accessLister) *EntitlementService {
	return &EntitlementService{sessions: sessions, users: users, accesses: accesses, now: time.Now}
}

func (s *EntitlementService) Resolve(ctx context.Context, userID int64, role string, sessionID int64) (*Entitlement, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	facts := EntitlementFacts{UserID: userID, Role: role, Session: session, Now: s.now()}
	if role != models.RoleAdmin {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		facts.Role = user.Role
		facts.SubscriptionActive = user.SubscriptionActive

		facts.Accesses, err = s.accesses.ListForUserSession(ctx, userID, sessionID)
		if err != nil {
			return nil, err
		}
	}

	entitlement := EvaluateEntitlement(facts)
	return &entitlement, nil
}
