package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/perkmint/perkmint-backend/internal/audit"
	"github.com/perkmint/perkmint-backend/internal/lottery"
	"github.com/perkmint/perkmint-backend/internal/voucher"
	pkgAuth "github.com/perkmint/perkmint-backend/pkg/auth"
	"github.com/perkmint/perkmint-backend/pkg/config"
	"github.com/perkmint/perkmint-backend/pkg/db/models"
	"github.com/perkmint/perkmint-backend/pkg/enums"
	"github.com/perkmint/perkmint-backend/pkg/logger"
	"github.com/perkmint/perkmint-backend/pkg/pagination"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type fakeCache struct {
	data   map[string]string
	counts map[string]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string), counts: make(map[string]int64)}
}

func (f *fakeCache) Ping(context.Context) error {
	return nil
}

func (f *fakeCache) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeCache) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeCache) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

type stubVoucherService struct {
	mint func(ctx context.Context, input voucher.MintInput) (*models.Voucher, error)
}

func (s stubVoucherService) Mint(ctx context.Context, input voucher.MintInput) (*models.Voucher, error) {
	if s.mint != nil {
		return s.mint(ctx, input)
	}
	return &models.Voucher{ID: uuid.New()}, nil
}

func (s stubVoucherService) Use(context.Context, voucher.UseInput) (*voucher.UseResult, error) {
	return &voucher.UseResult{Voucher: &models.Voucher{ID: uuid.New()}}, nil
}

func (s stubVoucherService) Transfer(context.Context, voucher.TransferInput) (*models.Voucher, error) {
	return &models.Voucher{ID: uuid.New()}, nil
}

func (s stubVoucherService) Recycle(context.Context, voucher.RecycleInput) (*models.Voucher, error) {
	return &models.Voucher{ID: uuid.New()}, nil
}

func (s stubVoucherService) Get(context.Context, uuid.UUID) (*voucher.Detail, error) {
	return &voucher.Detail{Voucher: &models.Voucher{ID: uuid.New()}}, nil
}

func (s stubVoucherService) List(context.Context, uuid.UUID, pagination.Params) (*voucher.List, error) {
	return &voucher.List{}, nil
}

func (s stubVoucherService) PreviewDiscount(_ context.Context, id uuid.UUID, amount decimal.Decimal) (*voucher.DiscountPreview, error) {
	return &voucher.DiscountPreview{VoucherID: id, PurchaseAmount: amount, Usable: true}, nil
}

type stubLotteryService struct{}

func (stubLotteryService) Create(context.Context, lottery.CreateInput) (*models.Lottery, error) {
	return &models.Lottery{ID: uuid.New()}, nil
}

func (stubLotteryService) Participate(context.Context, lottery.ParticipateInput) (*models.LotteryParticipant, error) {
	return &models.LotteryParticipant{ID: uuid.New()}, nil
}

func (stubLotteryService) Draw(context.Context, lottery.DrawInput) (*lottery.DrawResult, error) {
	return &lottery.DrawResult{Lottery: &models.Lottery{ID: uuid.New()}}, nil
}

func (stubLotteryService) VerifyRandomness(string) error {
	return nil
}

func (stubLotteryService) Get(context.Context, uuid.UUID) (*models.Lottery, error) {
	return &models.Lottery{ID: uuid.New()}, nil
}

func (stubLotteryService) List(context.Context, pagination.Params) (*lottery.List, error) {
	return &lottery.List{}, nil
}

func (stubLotteryService) Participants(context.Context, uuid.UUID) ([]models.LotteryParticipant, error) {
	return nil, nil
}

func (stubLotteryService) PrizeDistribution(_ context.Context, id uuid.UUID) (*lottery.PrizeDistribution, error) {
	return &lottery.PrizeDistribution{LotteryID: id}, nil
}

type stubAuditService struct{}

func (stubAuditService) Record(context.Context, *gorm.DB, audit.RecordInput) (*models.AuditTransaction, error) {
	return &models.AuditTransaction{ID: uuid.New()}, nil
}

func (stubAuditService) MarkConfirmed(context.Context, uuid.UUID, *decimal.Decimal) error {
	return nil
}

func (stubAuditService) MarkFailed(context.Context, uuid.UUID) error {
	return nil
}

func (stubAuditService) MarkCancelled(context.Context, uuid.UUID) error {
	return nil
}

func (stubAuditService) Get(context.Context, uuid.UUID) (*models.AuditTransaction, error) {
	return &models.AuditTransaction{ID: uuid.New()}, nil
}

func (stubAuditService) FindByExternalRef(context.Context, string) (*models.AuditTransaction, error) {
	return &models.AuditTransaction{ID: uuid.New()}, nil
}

func (stubAuditService) ListByVoucher(context.Context, uuid.UUID, int) ([]models.AuditTransaction, error) {
	return []models.AuditTransaction{{ID: uuid.New()}}, nil
}

func (stubAuditService) ListByLottery(context.Context, uuid.UUID, int) ([]models.AuditTransaction, error) {
	return nil, nil
}

func (stubAuditService) ListPendingWithRef(context.Context, int) ([]models.AuditTransaction, error) {
	return nil, nil
}

func (stubAuditService) ListStalePending(context.Context, time.Time, int) ([]models.AuditTransaction, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		stubPinger{},
		newFakeCache(),
		stubPinger{},
		stubVoucherService{},
		stubLotteryService{},
		stubAuditService{},
	)
}

func buildToken(t *testing.T, cfg *config.Config, role enums.ActorRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLiveIsOpen(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if env := resp.Header().Get("X-PerkMint-Env"); env != "test" {
		t.Fatalf("expected env header, got %q", env)
	}
}

func TestHealthReadyReportsDependencyFailure(t *testing.T) {
	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Output: io.Discard})
	router := NewRouter(
		cfg,
		logg,
		stubPinger{err: fmt.Errorf("connection refused")},
		newFakeCache(),
		stubPinger{},
		stubVoucherService{},
		stubLotteryService{},
		stubAuditService{},
	)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestAPIGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/vouchers", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestVoucherMintRequiresIdempotencyKey(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/vouchers", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleUser))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key got %d", resp.Code)
	}
}

func TestVoucherMintFlow(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	body := `{
		"merchant_ref": "SPRING-10",
		"discount_type": "percentage",
		"discount_value": 10,
		"max_quantity": 5,
		"recipient_address": "0x8ba1f109551bd432803012645ac136ddd64dba72"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/vouchers", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleUser))
	req.Header.Set("Idempotency-Key", "mint-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data struct {
			ID uuid.UUID `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Data.ID == uuid.Nil {
		t.Fatal("expected voucher id in response")
	}
}

func TestVoucherMintReplaysThroughRouter(t *testing.T) {
	cfg := testConfig()
	var calls int
	logg := logger.New(logger.Options{ServiceName: "test-routing", Output: io.Discard})
	router := NewRouter(
		cfg,
		logg,
		stubPinger{},
		newFakeCache(),
		stubPinger{},
		stubVoucherService{mint: func(context.Context, voucher.MintInput) (*models.Voucher, error) {
			calls++
			return &models.Voucher{ID: uuid.New()}, nil
		}},
		stubLotteryService{},
		stubAuditService{},
	)

	body := `{
		"merchant_ref": "SPRING-10",
		"discount_type": "fixed",
		"discount_value": 5,
		"max_quantity": 1,
		"recipient_address": "0x8ba1f109551bd432803012645ac136ddd64dba72"
	}`
	token := buildToken(t, cfg, enums.ActorRoleUser)

	first := httptest.NewRequest(http.MethodPost, "/api/vouchers", strings.NewReader(body))
	first.Header.Set("Authorization", "Bearer "+token)
	first.Header.Set("Idempotency-Key", "mint-replay")
	firstResp := httptest.NewRecorder()
	router.ServeHTTP(firstResp, first)
	if firstResp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", firstResp.Code, firstResp.Body.String())
	}

	second := httptest.NewRequest(http.MethodPost, "/api/vouchers", strings.NewReader(body))
	second.Header.Set("Authorization", "Bearer "+token)
	second.Header.Set("Idempotency-Key", "mint-replay")
	secondResp := httptest.NewRecorder()
	router.ServeHTTP(secondResp, second)
	if secondResp.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", secondResp.Code)
	}
	if calls != 1 {
		t.Fatalf("expected service to run once, ran %d times", calls)
	}

	// Replays come from the same caller. A valid token for a different user
	// misses the per-user scope, so the handler runs again.
	otherUser := httptest.NewRequest(http.MethodPost, "/api/vouchers", strings.NewReader(body))
	otherUser.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleUser))
	otherUser.Header.Set("Idempotency-Key", "mint-replay")
	otherResp := httptest.NewRecorder()
	router.ServeHTTP(otherResp, otherUser)
	if calls != 2 {
		t.Fatalf("expected second user to execute, service ran %d times", calls)
	}
}

func TestVoucherMintRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{
		WriteWindow:    time.Minute,
		WriteUserLimit: 1,
	}
	cache := newFakeCache()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Output: io.Discard})
	router := NewRouter(
		cfg,
		logg,
		stubPinger{},
		cache,
		stubPinger{},
		stubVoucherService{},
		stubLotteryService{},
		stubAuditService{},
	)

	body := `{
		"merchant_ref": "SPRING-10",
		"discount_type": "fixed",
		"discount_value": 5,
		"max_quantity": 1,
		"recipient_address": "0x8ba1f109551bd432803012645ac136ddd64dba72"
	}`
	token := buildToken(t, cfg, enums.ActorRoleUser)

	first := httptest.NewRequest(http.MethodPost, "/api/vouchers", strings.NewReader(body))
	first.Header.Set("Authorization", "Bearer "+token)
	first.Header.Set("Idempotency-Key", "mint-rl-1")
	firstResp := httptest.NewRecorder()
	router.ServeHTTP(firstResp, first)
	if firstResp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", firstResp.Code, firstResp.Body.String())
	}

	second := httptest.NewRequest(http.MethodPost, "/api/vouchers", strings.NewReader(body))
	second.Header.Set("Authorization", "Bearer "+token)
	second.Header.Set("Idempotency-Key", "mint-rl-2")
	secondResp := httptest.NewRecorder()
	router.ServeHTTP(secondResp, second)
	if secondResp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", secondResp.Code)
	}

	// Throttled outcomes must not be replayed from the idempotency store.
	for key := range cache.data {
		if strings.Contains(key, "mint-rl-2") {
			t.Fatalf("throttled response must not be stored, found %s", key)
		}
	}
}

func TestVoucherRecycleRequiresOperator(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	target := "/api/vouchers/" + uuid.NewString() + "/recycle"

	asUser := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{"reason":"damaged"}`))
	asUser.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleUser))
	asUser.Header.Set("Idempotency-Key", "recycle-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, asUser)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user got %d", resp.Code)
	}

	asOperator := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{"reason":"damaged"}`))
	asOperator.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleOperator))
	asOperator.Header.Set("Idempotency-Key", "recycle-2")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, asOperator)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for operator got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestLotteryCreateRequiresOperator(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/lotteries", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleUser))
	req.Header.Set("Idempotency-Key", "create-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user got %d", resp.Code)
	}
}

func TestLotteryDrawRequiresOperator(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	target := "/api/lotteries/" + uuid.NewString() + "/draw"

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{"seed":"`+strings.Repeat("ab", 32)+`"}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleUser))
	req.Header.Set("Idempotency-Key", "draw-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user got %d", resp.Code)
	}

	asOperator := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{"seed":"`+strings.Repeat("ab", 32)+`"}`))
	asOperator.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleOperator))
	asOperator.Header.Set("Idempotency-Key", "draw-2")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, asOperator)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for operator got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestLotteryParticipateOpenToUsers(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	target := "/api/lotteries/" + uuid.NewString() + "/participants"

	req := httptest.NewRequest(http.MethodPost, target, nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleUser))
	req.Header.Set("Idempotency-Key", "join-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAuditTransactionsRoute(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/audit-transactions?voucher_id="+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleUser))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, testConfig(), enums.ActorRoleUser))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
