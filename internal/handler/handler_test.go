package handler

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"otakumori/internal/config"
	"otakumori/internal/infrastructure/lock"
	"otakumori/internal/model"
	"otakumori/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"
)

type envelope struct {
	OK        bool            `json:"ok"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Code      string          `json:"code"`
	Reward    json.RawMessage `json:"reward"`
	Remaining *int64          `json:"remaining"`
	Status    string          `json:"status"`
	Reports   *int            `json:"reports"`
}

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	cfg    *config.Config
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithRedis(t, nil)
}

func newTestServerWithRedis(t *testing.T, rdb *redis.Client) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := testutil.Config()
	cfg.Redis.LockRetryInterval = time.Millisecond
	cfg.Redis.LockMaxRetries = 2
	h := NewHandler(db, rdb, cfg, testutil.Clock(t, time.Now()))
	return &testServer{t: t, db: db, cfg: cfg, router: SetupRouter(h, cfg)}
}

func (s *testServer) token(subject, role string) string {
	s.t.Helper()
	claims := SessionClaims{
		Username: subject,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Auth.JWTSecret))
	require.NoError(s.t, err)
	return signed
}

func (s *testServer) do(method, path, token, idemKey string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idemKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idemKey)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (s *testServer) user(externalID string) *model.User {
	s.t.Helper()
	var u model.User
	require.NoError(s.t, s.db.Where("external_id = ?", externalID).First(&u).Error)
	return &u
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.OK)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(http.MethodGet, "/api/v2/nothing", "", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodGet, "/api/v1/petals/balance", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.OK)
	assert.Equal(t, "UNAUTHENTICATED", env.Code)
	assert.NotEmpty(t, env.Error)

	w, env = s.do(http.MethodGet, "/api/v1/petals/balance", "not-a-jwt", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", env.Code)
}

func TestBalanceCreatesUserOnFirstRequest(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodGet, "/api/v1/petals/balance", s.token("new_user", ""), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.OK)

	var view struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Zero(t, view.Balance)
	assert.Equal(t, "new_user", s.user("new_user").ExternalID)
}

func TestGrantDaily(t *testing.T) {
	s := newTestServer(t)
	tok := s.token("daily", "")

	w, env := s.do(http.MethodPost, "/api/v1/petals/grant-daily", tok, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION", env.Code)

	w, env = s.do(http.MethodPost, "/api/v1/petals/grant-daily", tok, "grant-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var entry model.PetalLedger
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.Equal(t, model.ReasonDailyLoginGrant, entry.Reason)

	w, env = s.do(http.MethodPost, "/api/v1/petals/grant-daily", tok, "grant-2", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ALREADY_CLAIMED", env.Code)

	w, env = s.do(http.MethodPost, "/api/v1/petals/grant-daily", tok, "grant-1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_REQUEST", env.Code)
}

func TestGrantDailyLockErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := newTestServerWithRedis(t, rdb)
	tok := s.token("locked", "")

	// 先建用户，再占住它的锁
	w, _ := s.do(http.MethodGet, "/api/v1/petals/balance", tok, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, mr.Set(lock.UserLockKey(s.user("locked").ID), "someone-else"))

	w, env := s.do(http.MethodPost, "/api/v1/petals/grant-daily", tok, "lock-1", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "BUSY", env.Code)

	mr.Close()
	w, env = s.do(http.MethodPost, "/api/v1/petals/grant-daily", tok, "lock-2", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL", env.Code)
}

func TestLedgerEndpointReportsEffectivePaging(t *testing.T) {
	s := newTestServer(t)
	tok := s.token("pager", "")

	w, _ := s.do(http.MethodPost, "/api/v1/petals/grant-daily", tok, "page-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := s.do(http.MethodGet, "/api/v1/petals/ledger?page=0&pageSize=1000", tok, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		List []struct {
			EntryNo string `json:"entryNo"`
			DayKey  string `json:"dayKey"`
		} `json:"list"`
		Total    int64 `json:"total"`
		Page     int   `json:"page"`
		PageSize int   `json:"pageSize"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	require.Len(t, page.List, 1)
	assert.NotEmpty(t, page.List[0].EntryNo)
	assert.NotEmpty(t, page.List[0].DayKey)
}

func TestGachaEndpoint(t *testing.T) {
	s := newTestServer(t)
	tok := s.token("gambler", "")

	w, env := s.do(http.MethodPost, "/api/petal-gacha", tok, "pull-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INSUFFICIENT_FUNDS", env.Code)

	require.NoError(t, s.db.Model(&model.User{}).
		Where("external_id = ?", "gambler").Update("petal_balance", 100).Error)

	w, env = s.do(http.MethodPost, "/api/petal-gacha", tok, "pull-2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.OK)
	assert.NotEmpty(t, env.Reward)
	require.NotNil(t, env.Remaining)
	assert.Equal(t, int64(50), *env.Remaining)
}

func TestQuestEndpoints(t *testing.T) {
	s := newTestServer(t)
	tok := s.token("quester", "")

	w, env := s.do(http.MethodGet, "/api/quests/list", tok, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Today []struct {
			QuestKey string `json:"questKey"`
		} `json:"today"`
		Backlog    []json.RawMessage `json:"backlog"`
		CurrentDay string            `json:"currentDay"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Today, 3)
	assert.Empty(t, list.Backlog)
	assert.NotEmpty(t, list.CurrentDay)

	body := map[string]string{"questId": list.Today[0].QuestKey}
	w, env = s.do(http.MethodPost, "/api/community/quests/complete", tok, "quest-1", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var completion struct {
		Unlocks       map[string][]string `json:"unlocks"`
		LoreFragments []string            `json:"loreFragments"`
		Affinity      *int                `json:"affinity"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &completion))
	assert.NotNil(t, completion.Unlocks)
	assert.NotNil(t, completion.LoreFragments)
	assert.NotNil(t, completion.Affinity)

	w, env = s.do(http.MethodPost, "/api/community/quests/complete", tok, "quest-2", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ALREADY_CLAIMED", env.Code)

	w, _ = s.do(http.MethodPost, "/api/community/quests/complete", tok, "quest-3", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSoapstoneReportEndpoint(t *testing.T) {
	s := newTestServer(t)
	tok := s.token("speaker", "")

	w, env := s.do(http.MethodPost, "/api/soapstone", tok, "", map[string]string{"text": "hidden path ahead"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var msg struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	require.NotEmpty(t, msg.ID)

	for i := 1; i <= 5; i++ {
		w, env = s.do(http.MethodPost, "/api/soapstone/"+msg.ID+"/report", tok, "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, env.Reports)
		assert.Equal(t, i, *env.Reports)
	}
	assert.Equal(t, model.SoapstoneStatusHidden, env.Status)

	w, env = s.do(http.MethodPost, "/api/soapstone/missing/report", tok, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Code)
}

func TestShopEndpoints(t *testing.T) {
	s := newTestServer(t)
	tok := s.token("buyer", "")
	_, _ = s.do(http.MethodGet, "/api/v1/petals/balance", tok, "", nil)
	require.NoError(t, s.db.Model(&model.User{}).
		Where("external_id = ?", "buyer").Update("petal_balance", 500).Error)

	w, _ := s.do(http.MethodGet, "/api/v1/shop/items", tok, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := s.do(http.MethodPost, "/api/v1/shop/purchase", tok, "buy-1", map[string]string{"sku": "title_lantern_keeper"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, env.Remaining)
	assert.Equal(t, int64(300), *env.Remaining)

	w, env = s.do(http.MethodPost, "/api/v1/shop/purchase", tok, "buy-2", map[string]string{"sku": "title_lantern_keeper"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_OWNED", env.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/inventory/equip", tok, "", map[string]string{"sku": "title_lantern_keeper"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "title_lantern_keeper", s.user("buyer").ActiveTitle)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)
	target := testutil.CreateUser(t, s.db, "target", 0)
	body := map[string]interface{}{"userId": target.ID, "amount": 25, "reason": "SUPPORT_GRANT"}

	w, env := s.do(http.MethodPost, "/api/admin/petals/adjust", s.token("player", ""), "adj-1", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Code)

	admin := s.token("moderator", "admin")
	w, _ = s.do(http.MethodPost, "/api/admin/petals/adjust", admin, "adj-1", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(25), testutil.Balance(t, s.db, target.ID))

	require.NoError(t, s.db.Model(&model.User{}).Where("id = ?", target.ID).Update("petal_balance", 999).Error)

	w, env = s.do(http.MethodGet, fmt.Sprintf("/api/admin/petals/reconcile/%d?fix=true", target.ID), admin, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec struct {
		Drift    int64 `json:"drift"`
		Repaired bool  `json:"repaired"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, int64(974), rec.Drift)
	assert.True(t, rec.Repaired)
	assert.Equal(t, int64(25), testutil.Balance(t, s.db, target.ID))
}

func signStripe(payload []byte, secret string) string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func TestStripeWebhook(t *testing.T) {
	s := newTestServer(t)
	buyer := testutil.CreateUser(t, s.db, "stripe_buyer", 0)

	payload := []byte(`{"id":"evt_test_1","object":"event","type":"checkout.session.completed",` +
		`"data":{"object":{"id":"cs_test_1","object":"checkout.session","amount_total":500,` +
		`"payment_status":"paid","client_reference_id":"stripe_buyer"}}}`)

	post := func(sig string) (*httptest.ResponseRecorder, envelope) {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
		req.Header.Set("Stripe-Signature", sig)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		var env envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		return w, env
	}

	w, env := post("t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_SIGNATURE", env.Code)
	assert.Zero(t, testutil.Balance(t, s.db, buyer.ID))

	w, env = post(signStripe(payload, s.cfg.Stripe.WebhookSecret))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result struct {
		Credited bool  `json:"credited"`
		Petals   int64 `json:"petals"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Credited)
	assert.Equal(t, int64(50), result.Petals)
	assert.Equal(t, int64(50), testutil.Balance(t, s.db, buyer.ID))

	// Stripe 重发同一事件
	w, env = post(signStripe(payload, s.cfg.Stripe.WebhookSecret))
	require.Equal(t, http.StatusOK, w.Code)
	var dup struct {
		Duplicate bool `json:"duplicate"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &dup))
	assert.True(t, dup.Duplicate)
	assert.Equal(t, int64(50), testutil.Balance(t, s.db, buyer.ID))
}
