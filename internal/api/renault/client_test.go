package renault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/chargepilot/internal/config"
	"github.com/langchou/chargepilot/internal/models"
)

type fakeAPI struct {
	logins       atomic.Int32
	jwts         atomic.Int32
	loginCode    int
	vehicles     []VehicleLink
	batteryJSON  string
	cockpitFails bool
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/gigya/accounts.login", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "gigya-key", r.Form.Get("ApiKey"))
		assert.Equal(t, "driver@example.com", r.Form.Get("loginID"))
		f.logins.Add(1)
		if f.loginCode != 0 {
			writeJSON(w, map[string]interface{}{"errorCode": f.loginCode, "errorMessage": "Invalid LoginID"})
			return
		}
		writeJSON(w, map[string]interface{}{"errorCode": 0, "sessionInfo": map[string]string{"cookieValue": "cookie-1"}})
	})
	mux.HandleFunc("/gigya/accounts.getAccountInfo", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"errorCode": 0, "data": map[string]string{"personId": "person-1"}})
	})
	mux.HandleFunc("/gigya/accounts.getJWT", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "cookie-1", r.Form.Get("login_token"))
		f.jwts.Add(1)
		writeJSON(w, map[string]interface{}{"errorCode": 0, "id_token": "jwt-1"})
	})

	kamereon := func(path string, fn func(w http.ResponseWriter)) {
		mux.HandleFunc("/kamereon"+path, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "kamereon-key", r.Header.Get("apikey"))
			assert.Equal(t, "jwt-1", r.Header.Get("x-gigya-id_token"))
			assert.Equal(t, "IT", r.URL.Query().Get("country"))
			fn(w)
		})
	}
	kamereon("/commerce/v1/persons/person-1", func(w http.ResponseWriter) {
		writeJSON(w, Person{PersonID: "person-1", Accounts: []Account{{AccountID: "acc-1", AccountType: "MYDACIA"}}})
	})
	kamereon("/commerce/v1/accounts/acc-1/vehicles", func(w http.ResponseWriter) {
		writeJSON(w, vehiclesResponse{AccountID: "acc-1", VehicleLinks: f.vehicles})
	})
	kamereon("/commerce/v1/accounts/acc-1/kamereon/kca/car-adapter/v2/cars/VF1SPRING/battery-status", func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(f.batteryJSON))
	})
	kamereon("/commerce/v1/accounts/acc-1/kamereon/kca/car-adapter/v1/cars/VF1SPRING/cockpit", func(w http.ResponseWriter) {
		if f.cockpitFails {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"type":"Car","id":"VF1SPRING","attributes":{"totalMileage":15230.5}}}`))
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	cfg := config.Default().Renault
	cfg.Email = "driver@example.com"
	cfg.Password = "secret"
	cfg.GigyaURL = srv.URL + "/gigya"
	cfg.GigyaAPIKey = "gigya-key"
	cfg.KamereonURL = srv.URL + "/kamereon"
	cfg.KamereonAPIKey = "kamereon-key"
	return NewClient(cfg, zap.NewNop())
}

const chargingBattery = `{"data":{"type":"Car","id":"VF1SPRING","attributes":{
	"timestamp":"2024-05-01T22:00:00Z","batteryLevel":43,"batteryAutonomy":96,
	"plugStatus":1,"chargingStatus":1.0,"chargingRemainingTime":120}}}`

func TestReadMapsBatteryStatus(t *testing.T) {
	api := &fakeAPI{vehicles: []VehicleLink{{VIN: "VF1SPRING"}}, batteryJSON: chargingBattery}
	c := newTestClient(t, api)

	r, err := c.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 43, r.Percentage)
	assert.True(t, r.PluggedIn)
	require.NotNil(t, r.RemainingTime)
	assert.Equal(t, 2*time.Hour, *r.RemainingTime)
	require.NotNil(t, r.AutonomyKm)
	assert.Equal(t, 96.0, *r.AutonomyKm)
	require.NotNil(t, r.OdometerKm)
	assert.Equal(t, 15230.5, *r.OdometerKm)

	// 第二次读取复用会话
	_, err = c.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.logins.Load())
	assert.Equal(t, int32(1), api.jwts.Load())
}

func TestReadRefreshesExpiredToken(t *testing.T) {
	api := &fakeAPI{vehicles: []VehicleLink{{VIN: "VF1SPRING"}}, batteryJSON: chargingBattery}
	c := newTestClient(t, api)
	now := time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.Read(context.Background())
	require.NoError(t, err)
	now = now.Add(11 * time.Minute)
	_, err = c.Read(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), api.logins.Load())
	assert.Equal(t, int32(2), api.jwts.Load())
}

func TestReadUnpluggedWithoutEstimate(t *testing.T) {
	api := &fakeAPI{
		vehicles:     []VehicleLink{{VIN: "VF1SPRING"}},
		batteryJSON:  `{"data":{"attributes":{"batteryLevel":70,"plugStatus":0,"chargingRemainingTime":null}}}`,
		cockpitFails: true,
	}
	c := newTestClient(t, api)

	r, err := c.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 70, r.Percentage)
	assert.False(t, r.PluggedIn)
	assert.False(t, r.HasRemainingTime())
	assert.Nil(t, r.OdometerKm)
}

func TestReadMissingBatteryLevel(t *testing.T) {
	api := &fakeAPI{vehicles: []VehicleLink{{VIN: "VF1SPRING"}}, batteryJSON: `{"data":{"attributes":{"plugStatus":1}}}`}
	c := newTestClient(t, api)

	_, err := c.Read(context.Background())
	assert.ErrorIs(t, err, ErrNoBattery)
	assert.NotErrorIs(t, err, models.ErrSetupFailure)
}

func TestLoginFailureIsSetupFailure(t *testing.T) {
	api := &fakeAPI{loginCode: 403042}
	c := newTestClient(t, api)

	_, err := c.Read(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSetupFailure)
}

func TestNoVehicleIsSetupFailure(t *testing.T) {
	api := &fakeAPI{vehicles: []VehicleLink{{VIN: "OTHERCAR"}}}
	c := newTestClient(t, api)
	c.cfg.VIN = "VF1SPRING"

	_, err := c.Read(context.Background())
	assert.ErrorIs(t, err, models.ErrSetupFailure)
}
