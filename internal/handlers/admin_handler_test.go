package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
)

type stubAdminPayoutService struct {
	payout        *models.Payout
	approveErr    error
	entry         *models.LedgerEntry
	compensateErr error
	lastPayoutID  int64
	lastNote      string
}

func (s *stubAdminPayoutService) ApprovePayout(_ context.Context, payoutID int64) (*models.Payout, error) {
	s.lastPayoutID = payoutID
	return s.payout, s.approveErr
}

func (s *stubAdminPayoutService) CompensatePayout(_ context.Context, payoutID int64, note string) (*models.LedgerEntry, error) {
	s.lastPayoutID = payoutID
	s.lastNote = note
	return s.entry, s.compensateErr
}

type stubAccessAdmin struct {
	access   *models.UserAccess
	err      error
	lastID   int64
	lastCall string
}

func (s *stubAccessAdmin) Revoke(_ context.Context, accessID int64) (*models.UserAccess, error) {
	s.lastID = accessID
	s.lastCall = "revoke"
	return s.access, s.err
}

func (s *stubAccessAdmin) Reactivate(_ context.Context, accessID int64) (*models.UserAccess, error) {
	s.lastID = accessID
	s.lastCall = "reactivate"
	return s.access, s.err
}

func newAdminTestApp(payouts *stubAdminPayoutService, accesses *stubAccessAdmin) *fiber.App {
	admin := NewAdminHandler(payouts, &stubWalletService{})
	access := NewAccessHandler(nil, accesses)

	app := fiber.New()
	app.Post("/admin/payout/approve", admin.ApprovePayout)
	app.Post("/admin/payout/:id/compensate", admin.CompensatePayout)
	app.Get("/admin/platform/wallet", admin.PlatformWallet)
	app.Post("/admin/access/:id/revoke", access.Revoke)
	app.Post("/admin/access/:id/reactivate", access.Reactivate)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func TestApprovePayoutMapsOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "approved", status: http.StatusOK},
		{name: "not pending", err: services.ErrPayoutNotPending, status: http.StatusConflict},
		{name: "missing", err: services.ErrPayoutNotFound, status: http.StatusNotFound},
		{name: "no account", err: services.ErrPayoutAccountMissing, status: http.StatusUnprocessableEntity},
		{name: "provider failed", err: &services.ProviderFailureError{Step: "transfer", Err: errors.New("declined")}, status: http.StatusBadGateway},
		{name: "inconsistent", err: &services.InconsistencyError{Detail: "no reservation"}, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payouts := &stubAdminPayoutService{
				payout:     &models.Payout{ID: 5, Status: models.PayoutProcessing},
				approveErr: tt.err,
			}
			app := newAdminTestApp(payouts, &stubAccessAdmin{})

			resp := postJSON(t, app, "/admin/payout/approve", `{"payout_id": 5}`)
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if payouts.lastPayoutID != 5 {
				t.Fatalf("expected payout 5, got %d", payouts.lastPayoutID)
			}
		})
	}
}

func TestCompensatePayoutRequiresNote(t *testing.T) {
	payouts := &stubAdminPayoutService{}
	app := newAdminTestApp(payouts, &stubAccessAdmin{})

	resp := postJSON(t, app, "/admin/payout/5/compensate", `{}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if payouts.lastPayoutID != 0 {
		t.Fatalf("service must not be called without a note")
	}
}

func TestCompensatePayoutPostsReversal(t *testing.T) {
	payouts := &stubAdminPayoutService{entry: &models.LedgerEntry{ID: 99, Type: models.LedgerPayoutReversal, Amount: 4000}}
	app := newAdminTestApp(payouts, &stubAccessAdmin{})

	resp := postJSON(t, app, "/admin/payout/5/compensate", `{"note": "bank rejected transfer"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if payouts.lastPayoutID != 5 || payouts.lastNote != "bank rejected transfer" {
		t.Fatalf("unexpected call: payout %d note %q", payouts.lastPayoutID, payouts.lastNote)
	}
}

func TestCompensatePayoutTwiceConflicts(t *testing.T) {
	app := newAdminTestApp(&stubAdminPayoutService{compensateErr: services.ErrAlreadyCompensated}, &stubAccessAdmin{})

	resp := postJSON(t, app, "/admin/payout/5/compensate", `{"note": "again"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestAccessRevokeAndReactivate(t *testing.T) {
	accesses := &stubAccessAdmin{access: &models.UserAccess{ID: 12, Status: models.AccessRevoked}}
	app := newAdminTestApp(&stubAdminPayoutService{}, accesses)

	resp := postJSON(t, app, "/admin/access/12/revoke", ``)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if accesses.lastID != 12 || accesses.lastCall != "revoke" {
		t.Fatalf("unexpected call %s on %d", accesses.lastCall, accesses.lastID)
	}

	accesses.err = services.ErrInvalidStateTransition
	resp = postJSON(t, app, "/admin/access/12/reactivate", ``)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	if accesses.lastCall != "reactivate" {
		t.Fatalf("expected reactivate call, got %s", accesses.lastCall)
	}

	accesses.err = services.ErrAccessNotFound
	resp = postJSON(t, app, "/admin/access/404/revoke", ``)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
