package reconcile

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/perkmint/perkmint-backend/internal/audit"
	"github.com/perkmint/perkmint-backend/internal/voucher"
	"github.com/perkmint/perkmint-backend/pkg/chain"
	"github.com/perkmint/perkmint-backend/pkg/config"
	"github.com/perkmint/perkmint-backend/pkg/db/models"
	"github.com/perkmint/perkmint-backend/pkg/enums"
	"github.com/perkmint/perkmint-backend/pkg/logger"
	"github.com/perkmint/perkmint-backend/pkg/outbox"
	"github.com/perkmint/perkmint-backend/pkg/pagination"
)

type auditTransition struct {
	id     uuid.UUID
	status enums.AuditStatus
	cost   *decimal.Decimal
}

type stubAuditRepo struct {
	pending     []models.AuditTransaction
	stale       []models.AuditTransaction
	byRef       map[string]*models.AuditTransaction
	transitions []auditTransition
	created     []*models.AuditTransaction
	refuse      bool
}

func (s *stubAuditRepo) WithTx(tx *gorm.DB) audit.Repository { return s }

func (s *stubAuditRepo) Create(ctx context.Context, txn *models.AuditTransaction) error {
	s.created = append(s.created, txn)
	return nil
}

func (s *stubAuditRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.AuditTransaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubAuditRepo) FindByExternalRef(ctx context.Context, ref string) (*models.AuditTransaction, error) {
	if txn, ok := s.byRef[ref]; ok {
		return txn, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubAuditRepo) ListByVoucher(ctx context.Context, voucherID uuid.UUID, limit int) ([]models.AuditTransaction, error) {
	return nil, nil
}

func (s *stubAuditRepo) ListByLottery(ctx context.Context, lotteryID uuid.UUID, limit int) ([]models.AuditTransaction, error) {
	return nil, nil
}

func (s *stubAuditRepo) ListPendingWithRef(ctx context.Context, limit int) ([]models.AuditTransaction, error) {
	return s.pending, nil
}

func (s *stubAuditRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.AuditTransaction, error) {
	return s.stale, nil
}

func (s *stubAuditRepo) MarkConfirmed(ctx context.Context, id uuid.UUID, costActual *decimal.Decimal, confirmedAt time.Time) (bool, error) {
	if s.refuse {
		return false, nil
	}
	s.transitions = append(s.transitions, auditTransition{id: id, status: enums.AuditStatusConfirmed, cost: costActual})
	return true, nil
}

func (s *stubAuditRepo) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	if s.refuse {
		return false, nil
	}
	s.transitions = append(s.transitions, auditTransition{id: id, status: enums.AuditStatusFailed})
	return true, nil
}

func (s *stubAuditRepo) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	if s.refuse {
		return false, nil
	}
	s.transitions = append(s.transitions, auditTransition{id: id, status: enums.AuditStatusCancelled})
	return true, nil
}

type voucherUpdate struct {
	id      uuid.UUID
	updates map[string]any
}

type stubVoucherRepo struct {
	byID       map[uuid.UUID]*models.Voucher
	byTokenID  map[int64]*models.Voucher
	settled    []uuid.UUID
	updates    []voucherUpdate
	settledTo  []enums.SettlementStatus
	settleFail bool
}

func (s *stubVoucherRepo) WithTx(tx *gorm.DB) voucher.Repository { return s }

func (s *stubVoucherRepo) Create(ctx context.Context, v *models.Voucher) error { return nil }

func (s *stubVoucherRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Voucher, error) {
	if v, ok := s.byID[id]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubVoucherRepo) FindByLedgerTokenID(ctx context.Context, tokenID int64) (*models.Voucher, error) {
	if v, ok := s.byTokenID[tokenID]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubVoucherRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) ([]models.Voucher, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (s *stubVoucherRepo) MarkUsed(ctx context.Context, id, userID uuid.UUID, now time.Time) (bool, error) {
	return false, nil
}

func (s *stubVoucherRepo) TransferOwner(ctx context.Context, id, fromUserID, toUserID uuid.UUID, now time.Time) (bool, error) {
	return false, nil
}

func (s *stubVoucherRepo) MarkRecycled(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubVoucherRepo) SetSettlementStatus(ctx context.Context, id uuid.UUID, status enums.SettlementStatus) (bool, error) {
	if s.settleFail {
		return false, fmt.Errorf("settle refused")
	}
	s.settled = append(s.settled, id)
	s.settledTo = append(s.settledTo, status)
	return true, nil
}

func (s *stubVoucherRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.updates = append(s.updates, voucherUpdate{id: id, updates: updates})
	return nil
}

func (s *stubVoucherRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type stubLedger struct {
	receipts     map[string]*chain.Confirmation
	receiptErrs  map[string]error
	flakyBefore  int
	calls        int
	events       []chain.Event
	head         uint64
	eventWindows [][2]uint64
}

func (s *stubLedger) Receipt(ctx context.Context, txHash string) (*chain.Confirmation, error) {
	s.calls++
	if s.flakyBefore > 0 {
		s.flakyBefore--
		return nil, fmt.Errorf("rpc connection reset")
	}
	if err, ok := s.receiptErrs[txHash]; ok {
		return nil, err
	}
	if conf, ok := s.receipts[txHash]; ok {
		return conf, nil
	}
	return nil, chain.ErrReceiptNotFound
}

func (s *stubLedger) Events(ctx context.Context, fromBlock, toBlock uint64) ([]chain.Event, error) {
	s.eventWindows = append(s.eventWindows, [2]uint64{fromBlock, toBlock})
	var out []chain.Event
	for _, event := range s.events {
		if event.BlockNumber >= fromBlock && event.BlockNumber <= toBlock {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s *stubLedger) BlockNumber(ctx context.Context) (uint64, error) {
	return s.head, nil
}

type stubOutboxPublisher struct {
	events []outbox.DomainEvent
}

func (s *stubOutboxPublisher) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	for _, existing := range s.events {
		if existing.EventType == event.EventType && existing.AggregateID == event.AggregateID {
			return nil
		}
	}
	s.events = append(s.events, event)
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func testConfig() config.ReconcilerConfig {
	return config.ReconcilerConfig{
		BatchSize:        25,
		PendingTimeout:   30 * time.Minute,
		LookbackBlocks:   100,
		ReceiptRetries:   3,
		ReceiptRetryBase: time.Millisecond,
	}
}

type reconcileFixture struct {
	audits   *stubAuditRepo
	vouchers *stubVoucherRepo
	ledger   *stubLedger
	outbox   *stubOutboxPublisher
	svc      Service
}

func newFixture(t *testing.T, audits *stubAuditRepo, vouchers *stubVoucherRepo, ledger *stubLedger) *reconcileFixture {
	t.Helper()

	if audits.byRef == nil {
		audits.byRef = map[string]*models.AuditTransaction{}
	}
	if vouchers.byID == nil {
		vouchers.byID = map[uuid.UUID]*models.Voucher{}
	}
	if vouchers.byTokenID == nil {
		vouchers.byTokenID = map[int64]*models.Voucher{}
	}

	f := &reconcileFixture{
		audits:   audits,
		vouchers: vouchers,
		ledger:   ledger,
		outbox:   &stubOutboxPublisher{},
	}
	svc, err := NewService(audits, vouchers, ledger, stubTxRunner{}, f.outbox, nil, testConfig(), testLogger())
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	f.svc = svc
	return f
}

func pendingMintRow(voucherID uuid.UUID, ref string) models.AuditTransaction {
	return models.AuditTransaction{
		ID:          uuid.New(),
		ActorID:     uuid.New(),
		VoucherID:   &voucherID,
		Kind:        enums.AuditKindMint,
		ExternalRef: &ref,
		Status:      enums.AuditStatusPending,
		CreatedAt:   time.Now().UTC().Add(-time.Minute),
	}
}

func pendingUseRow(t *testing.T, voucherID uuid.UUID, ref string, snapshot *audit.VoucherSnapshot) models.AuditTransaction {
	t.Helper()

	raw, err := audit.Metadata{Snapshot: snapshot}.Encode()
	if err != nil {
		t.Fatalf("encode metadata: %v", err)
	}
	return models.AuditTransaction{
		ID:          uuid.New(),
		ActorID:     uuid.New(),
		VoucherID:   &voucherID,
		Kind:        enums.AuditKindUse,
		ExternalRef: &ref,
		Status:      enums.AuditStatusPending,
		Metadata:    raw,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
	}
}

func TestCorrelateConfirmsMinedSubmission(t *testing.T) {
	voucherID := uuid.New()
	ref := "0xabc123"
	row := pendingMintRow(voucherID, ref)

	audits := &stubAuditRepo{pending: []models.AuditTransaction{row}}
	vouchers := &stubVoucherRepo{byID: map[uuid.UUID]*models.Voucher{
		voucherID: {ID: voucherID, LedgerTokenID: 42},
	}}
	ledger := &stubLedger{
		receipts: map[string]*chain.Confirmation{
			ref: {TxHash: ref, Success: true, BlockNumber: 90, CostActual: decimal.NewFromFloat(0.002)},
		},
		events: []chain.Event{
			{Kind: chain.EventMinted, TokenID: 42, TxHash: ref, BlockNumber: 90},
		},
	}
	f := newFixture(t, audits, vouchers, ledger)

	stats, err := f.svc.CorrelateOnce(context.Background())
	if err != nil {
		t.Fatalf("expected clean pass got %v", err)
	}
	if stats.Confirmed != 1 || stats.Failed != 0 || stats.Skipped != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(audits.transitions) != 1 || audits.transitions[0].status != enums.AuditStatusConfirmed {
		t.Fatalf("expected confirmed transition got %+v", audits.transitions)
	}
	if audits.transitions[0].cost == nil || !audits.transitions[0].cost.Equal(decimal.NewFromFloat(0.002)) {
		t.Fatalf("expected actual cost recorded")
	}
	if len(vouchers.settled) != 1 || vouchers.settled[0] != voucherID || vouchers.settledTo[0] != enums.SettlementStatusSettled {
		t.Fatalf("expected voucher settled got %v", vouchers.settled)
	}
	// Token ids agree, nothing to repair.
	if len(vouchers.updates) != 0 {
		t.Fatalf("expected no repair updates got %v", vouchers.updates)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventSettlementReached {
		t.Fatalf("expected settlement_confirmed event")
	}
}

func TestCorrelateRepairsMismatchedTokenID(t *testing.T) {
	voucherID := uuid.New()
	ref := "0xabc456"
	row := pendingMintRow(voucherID, ref)

	audits := &stubAuditRepo{pending: []models.AuditTransaction{row}}
	vouchers := &stubVoucherRepo{byID: map[uuid.UUID]*models.Voucher{
		voucherID: {ID: voucherID, LedgerTokenID: 42},
	}}
	ledger := &stubLedger{
		receipts: map[string]*chain.Confirmation{
			ref: {TxHash: ref, Success: true, BlockNumber: 91},
		},
		events: []chain.Event{
			{Kind: chain.EventMinted, TokenID: 43, TxHash: ref, BlockNumber: 91},
		},
	}
	f := newFixture(t, audits, vouchers, ledger)

	stats, err := f.svc.CorrelateOnce(context.Background())
	if err != nil {
		t.Fatalf("expected clean pass got %v", err)
	}
	if stats.Confirmed != 1 {
		t.Fatalf("expected confirmation got %+v", stats)
	}
	if len(vouchers.updates) != 1 {
		t.Fatalf("expected one repair update got %d", len(vouchers.updates))
	}
	if got := vouchers.updates[0].updates["ledger_token_id"]; got != int64(43) {
		t.Fatalf("expected token id repaired to 43 got %v", got)
	}
}

func TestCorrelateSkipsUnminedSubmission(t *testing.T) {
	voucherID := uuid.New()
	row := pendingMintRow(voucherID, "0xwaiting")

	audits := &stubAuditRepo{pending: []models.AuditTransaction{row}}
	f := newFixture(t, audits, &stubVoucherRepo{}, &stubLedger{})

	stats, err := f.svc.CorrelateOnce(context.Background())
	if err != nil {
		t.Fatalf("expected clean pass got %v", err)
	}
	if stats.Skipped != 1 || stats.Confirmed != 0 || stats.Failed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(audits.transitions) != 0 {
		t.Fatalf("unmined row must stay pending")
	}
	if len(f.outbox.events) != 0 {
		t.Fatalf("unmined row must not emit events")
	}
}

func TestCorrelateCompensatesRevertedUse(t *testing.T) {
	voucherID := uuid.New()
	originalOwner := uuid.New()
	ref := "0xreverted"
	snapshot := &audit.VoucherSnapshot{
		CurrentOwnerID:    originalOwner,
		IsUsed:            false,
		IsActive:          true,
		RemainingQuantity: 1,
		SettlementStatus:  enums.SettlementStatusSettled,
	}
	row := pendingUseRow(t, voucherID, ref, snapshot)

	audits := &stubAuditRepo{pending: []models.AuditTransaction{row}}
	vouchers := &stubVoucherRepo{}
	ledger := &stubLedger{
		receipts: map[string]*chain.Confirmation{
			ref: {TxHash: ref, Success: false, BlockNumber: 92},
		},
	}
	f := newFixture(t, audits, vouchers, ledger)

	stats, err := f.svc.CorrelateOnce(context.Background())
	if err != nil {
		t.Fatalf("expected clean pass got %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("expected failed row got %+v", stats)
	}
	if len(audits.transitions) != 1 || audits.transitions[0].status != enums.AuditStatusFailed {
		t.Fatalf("expected failed transition got %+v", audits.transitions)
	}
	if len(vouchers.updates) != 1 {
		t.Fatalf("expected compensation update got %d", len(vouchers.updates))
	}
	updates := vouchers.updates[0].updates
	if updates["is_used"] != false || updates["current_owner_id"] != originalOwner {
		t.Fatalf("expected unused state restored got %v", updates)
	}
	if updates["remaining_quantity"] != 1 {
		t.Fatalf("expected quantity restored got %v", updates["remaining_quantity"])
	}
	if updates["settlement_status"] != enums.SettlementStatusFailed {
		t.Fatalf("expected settlement failed got %v", updates["settlement_status"])
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventSettlementFailed {
		t.Fatalf("expected settlement_failed event")
	}
}

func TestCorrelateRetriesTransientReceiptErrors(t *testing.T) {
	voucherID := uuid.New()
	ref := "0xflaky"
	row := pendingMintRow(voucherID, ref)

	audits := &stubAuditRepo{pending: []models.AuditTransaction{row}}
	vouchers := &stubVoucherRepo{byID: map[uuid.UUID]*models.Voucher{
		voucherID: {ID: voucherID, LedgerTokenID: 7},
	}}
	ledger := &stubLedger{
		flakyBefore: 2,
		receipts: map[string]*chain.Confirmation{
			ref: {TxHash: ref, Success: true, BlockNumber: 93},
		},
		events: []chain.Event{
			{Kind: chain.EventMinted, TokenID: 7, TxHash: ref, BlockNumber: 93},
		},
	}
	f := newFixture(t, audits, vouchers, ledger)

	stats, err := f.svc.CorrelateOnce(context.Background())
	if err != nil {
		t.Fatalf("expected retries to absorb transient errors got %v", err)
	}
	if stats.Confirmed != 1 {
		t.Fatalf("expected confirmation got %+v", stats)
	}
	if ledger.calls < 3 {
		t.Fatalf("expected at least 3 receipt attempts got %d", ledger.calls)
	}
}

func TestCorrelateLeavesResolvedRowsAlone(t *testing.T) {
	voucherID := uuid.New()
	ref := "0xresolved"
	row := pendingMintRow(voucherID, ref)

	audits := &stubAuditRepo{pending: []models.AuditTransaction{row}, refuse: true}
	vouchers := &stubVoucherRepo{}
	ledger := &stubLedger{
		receipts: map[string]*chain.Confirmation{
			ref: {TxHash: ref, Success: true, BlockNumber: 94},
		},
	}
	f := newFixture(t, audits, vouchers, ledger)

	stats, err := f.svc.CorrelateOnce(context.Background())
	if err != nil {
		t.Fatalf("expected clean pass got %v", err)
	}
	if stats.Confirmed != 1 {
		t.Fatalf("guard loss still counts the row as handled, got %+v", stats)
	}
	// The transition was refused, so no voucher or outbox side effects.
	if len(vouchers.settled) != 0 || len(f.outbox.events) != 0 {
		t.Fatalf("refused transition must not produce side effects")
	}
}

func TestExpireStaleCancelsReceiptless(t *testing.T) {
	voucherID := uuid.New()
	owner := uuid.New()
	snapshot := &audit.VoucherSnapshot{
		CurrentOwnerID:    owner,
		IsActive:          true,
		RemainingQuantity: 1,
		SettlementStatus:  enums.SettlementStatusSettled,
	}
	row := pendingUseRow(t, voucherID, "0xvanished", snapshot)

	audits := &stubAuditRepo{stale: []models.AuditTransaction{row}}
	vouchers := &stubVoucherRepo{}
	f := newFixture(t, audits, vouchers, &stubLedger{})

	stats, err := f.svc.ExpireStale(context.Background())
	if err != nil {
		t.Fatalf("expected clean pass got %v", err)
	}
	if stats.Cancelled != 1 {
		t.Fatalf("expected cancellation got %+v", stats)
	}
	if len(audits.transitions) != 1 || audits.transitions[0].status != enums.AuditStatusCancelled {
		t.Fatalf("expected cancelled transition got %+v", audits.transitions)
	}
	if len(vouchers.updates) != 1 {
		t.Fatalf("expected compensation got %d updates", len(vouchers.updates))
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventSettlementFailed {
		t.Fatalf("expected settlement_failed event")
	}
}

func TestExpireStaleConfirmsLateMined(t *testing.T) {
	voucherID := uuid.New()
	ref := "0xlate"
	row := pendingMintRow(voucherID, ref)
	row.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)

	audits := &stubAuditRepo{stale: []models.AuditTransaction{row}}
	vouchers := &stubVoucherRepo{byID: map[uuid.UUID]*models.Voucher{
		voucherID: {ID: voucherID, LedgerTokenID: 9},
	}}
	ledger := &stubLedger{
		receipts: map[string]*chain.Confirmation{
			ref: {TxHash: ref, Success: true, BlockNumber: 95},
		},
		events: []chain.Event{
			{Kind: chain.EventMinted, TokenID: 9, TxHash: ref, BlockNumber: 95},
		},
	}
	f := newFixture(t, audits, vouchers, ledger)

	stats, err := f.svc.ExpireStale(context.Background())
	if err != nil {
		t.Fatalf("expected clean pass got %v", err)
	}
	if stats.Confirmed != 1 || stats.Cancelled != 0 {
		t.Fatalf("late-mined row must confirm, not cancel: %+v", stats)
	}
	if len(audits.transitions) != 1 || audits.transitions[0].status != enums.AuditStatusConfirmed {
		t.Fatalf("expected confirmed transition got %+v", audits.transitions)
	}
}

func TestRepairOrphansRecreatesMissingAuditRow(t *testing.T) {
	voucherID := uuid.New()
	stored := &models.Voucher{
		ID:                voucherID,
		LedgerTokenID:     55,
		RemainingQuantity: 1,
		IsActive:          true,
	}

	orphanHash := "0xorphan"
	knownHash := "0xknown"
	audits := &stubAuditRepo{
		byRef: map[string]*models.AuditTransaction{
			knownHash: {ID: uuid.New(), Status: enums.AuditStatusConfirmed},
		},
	}
	vouchers := &stubVoucherRepo{byTokenID: map[int64]*models.Voucher{55: stored}}
	ledger := &stubLedger{
		head: 200,
		events: []chain.Event{
			{Kind: chain.EventRedeemed, TokenID: 55, TxHash: orphanHash, BlockNumber: 150},
			{Kind: chain.EventMinted, TokenID: 56, TxHash: knownHash, BlockNumber: 160},
		},
	}
	f := newFixture(t, audits, vouchers, ledger)

	stats, err := f.svc.RepairOrphans(context.Background())
	if err != nil {
		t.Fatalf("expected clean pass got %v", err)
	}
	if stats.Repaired != 1 {
		t.Fatalf("expected one repair got %+v", stats)
	}
	if len(audits.created) != 1 {
		t.Fatalf("expected one repair audit row got %d", len(audits.created))
	}
	repair := audits.created[0]
	if repair.Status != enums.AuditStatusConfirmed || repair.Kind != enums.AuditKindUse {
		t.Fatalf("repair row must be a confirmed use, got %s/%s", repair.Status, repair.Kind)
	}
	if repair.ExternalRef == nil || *repair.ExternalRef != orphanHash {
		t.Fatalf("repair row must carry the orphaned hash")
	}
	meta, err := audit.DecodeMetadata(repair.Metadata)
	if err != nil || meta.Repair == "" {
		t.Fatalf("repair row must carry provenance, got %+v err %v", meta, err)
	}

	if len(vouchers.updates) != 1 {
		t.Fatalf("expected voucher state repair got %d", len(vouchers.updates))
	}
	updates := vouchers.updates[0].updates
	if updates["is_used"] != true || updates["settlement_status"] != enums.SettlementStatusSettled {
		t.Fatalf("redeemed orphan must mark the voucher used and settled, got %v", updates)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventSettlementReached {
		t.Fatalf("expected settlement_confirmed event for the repair")
	}
}

func TestRepairOrphansHandlesUnknownToken(t *testing.T) {
	audits := &stubAuditRepo{}
	vouchers := &stubVoucherRepo{}
	ledger := &stubLedger{
		head: 300,
		events: []chain.Event{
			{Kind: chain.EventMinted, TokenID: 99, TxHash: "0xnostore", MerchantRef: "MERCHANT-9", BlockNumber: 250},
		},
	}
	f := newFixture(t, audits, vouchers, ledger)

	stats, err := f.svc.RepairOrphans(context.Background())
	if err != nil {
		t.Fatalf("expected clean pass got %v", err)
	}
	if stats.Repaired != 1 {
		t.Fatalf("expected repair got %+v", stats)
	}
	if len(audits.created) != 1 || audits.created[0].VoucherID != nil {
		t.Fatalf("audit trail must record the orphan even without a voucher row")
	}
	if len(vouchers.updates) != 0 {
		t.Fatalf("no voucher row means nothing to update")
	}
}

func TestRepairOrphansWindowClampsAtGenesis(t *testing.T) {
	ledger := &stubLedger{head: 50}
	f := newFixture(t, &stubAuditRepo{}, &stubVoucherRepo{}, ledger)

	if _, err := f.svc.RepairOrphans(context.Background()); err != nil {
		t.Fatalf("expected clean pass got %v", err)
	}
	if len(ledger.eventWindows) != 1 {
		t.Fatalf("expected one event scan got %d", len(ledger.eventWindows))
	}
	if ledger.eventWindows[0][0] != 0 || ledger.eventWindows[0][1] != 50 {
		t.Fatalf("short chains scan from genesis, got %v", ledger.eventWindows[0])
	}
}
