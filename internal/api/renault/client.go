package renault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/chargepilot/internal/config"
	"github.com/langchou/chargepilot/internal/models"
)

// id_token 有效期 900s，提前刷新
const idTokenLifetime = 10 * time.Minute

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNoBattery    = errors.New("battery level missing from status")
)

// session 登录后得到的账户句柄
type session struct {
	loginToken string
	personID   string
	accountID  string
	vin        string
	idToken    string
	idTokenAt  time.Time
}

// Client Renault/Dacia 车辆 API 客户端（Gigya 认证 + Kamereon 数据）
type Client struct {
	httpClient *http.Client
	cfg        config.RenaultConfig
	logger     *zap.Logger

	mu      sync.Mutex
	session *session
	now     func() time.Time
}

// NewClient 创建新的 Renault API 客户端
func NewClient(cfg config.RenaultConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Read 读取电池状态，实现 service.BatterySource。
// 账户或车辆不可用时返回包装了 models.ErrSetupFailure 的错误
func (c *Client) Read(ctx context.Context) (models.BatteryReading, error) {
	sess, err := c.ensureSession(ctx)
	if err != nil {
		return models.BatteryReading{}, err
	}

	status, err := c.getBatteryStatus(ctx, sess)
	if err != nil {
		return models.BatteryReading{}, err
	}
	if status.BatteryLevel == nil {
		return models.BatteryReading{}, ErrNoBattery
	}

	reading := models.BatteryReading{
		Percentage: *status.BatteryLevel,
		PluggedIn:  status.Plugged(),
		AutonomyKm: status.BatteryAutonomy,
		SampledAt:  c.now(),
	}
	if status.ChargingRemainingTime != nil && *status.ChargingRemainingTime > 0 {
		d := time.Duration(*status.ChargingRemainingTime) * time.Minute
		reading.RemainingTime = &d
	}

	// 里程只用于记录，失败不影响读数
	cockpit, err := c.getCockpit(ctx, sess)
	if err != nil {
		c.logger.Debug("Cockpit unavailable", zap.Error(err))
	} else {
		reading.OdometerKm = cockpit.TotalMileage
	}

	return reading, nil
}

// ensureSession 首次调用时登录并解析账户和 VIN，之后只刷新 id_token
func (c *Client) ensureSession(ctx context.Context) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		sess, err := c.login(ctx)
		if err != nil {
			return nil, err
		}
		c.session = sess
		c.logger.Info("Renault session established",
			zap.String("account_id", sess.accountID),
			zap.String("vin", sess.vin))
	}

	if c.session.idToken == "" || c.now().Sub(c.session.idTokenAt) > idTokenLifetime {
		token, err := c.getJWT(ctx, c.session.loginToken)
		if err != nil {
			return nil, err
		}
		c.session.idToken = token
		c.session.idTokenAt = c.now()
	}

	sess := *c.session
	return &sess, nil
}

// invalidate 下次调用时重新获取 id_token
func (c *Client) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.idToken = ""
	}
}

func (c *Client) login(ctx context.Context) (*session, error) {
	var lr loginResponse
	err := c.gigya(ctx, "/accounts.login", url.Values{
		"loginID":  {c.cfg.Email},
		"password": {c.cfg.Password},
	}, &lr)
	if err != nil {
		return nil, fmt.Errorf("gigya login: %w", err)
	}
	if lr.SessionInfo.CookieValue == "" {
		return nil, fmt.Errorf("gigya login returned no session: %w", models.ErrSetupFailure)
	}

	var info accountInfoResponse
	if err := c.gigya(ctx, "/accounts.getAccountInfo", url.Values{
		"login_token": {lr.SessionInfo.CookieValue},
	}, &info); err != nil {
		return nil, fmt.Errorf("gigya account info: %w", err)
	}
	if info.Data.PersonID == "" {
		return nil, fmt.Errorf("gigya account has no person id: %w", models.ErrSetupFailure)
	}

	sess := &session{
		loginToken: lr.SessionInfo.CookieValue,
		personID:   info.Data.PersonID,
	}
	if sess.idToken, err = c.getJWT(ctx, sess.loginToken); err != nil {
		return nil, err
	}
	sess.idTokenAt = c.now()

	person, err := c.getPerson(ctx, sess)
	if err != nil {
		return nil, err
	}
	if len(person.Accounts) == 0 {
		return nil, fmt.Errorf("no kamereon account for person %s: %w", sess.personID, models.ErrSetupFailure)
	}
	sess.accountID = person.Accounts[0].AccountID

	vehicles, err := c.listVehicles(ctx, sess)
	if err != nil {
		return nil, err
	}
	for _, v := range vehicles {
		if c.cfg.VIN == "" || strings.EqualFold(v.VIN, c.cfg.VIN) {
			sess.vin = v.VIN
			break
		}
	}
	if sess.vin == "" {
		return nil, fmt.Errorf("no matching vehicle in account %s: %w", sess.accountID, models.ErrSetupFailure)
	}

	return sess, nil
}

func (c *Client) getJWT(ctx context.Context, loginToken string) (string, error) {
	var jr jwtResponse
	if err := c.gigya(ctx, "/accounts.getJWT", url.Values{
		"login_token": {loginToken},
		"fields":      {"data.personId,data.gigyaDataCenter"},
		"expiration":  {"900"},
	}, &jr); err != nil {
		return "", fmt.Errorf("gigya jwt: %w", err)
	}
	if jr.IDToken == "" {
		return "", fmt.Errorf("gigya returned empty id_token")
	}
	return jr.IDToken, nil
}

// gigya 调用 Gigya 接口，errorCode 4xxxxx 视为账户配置错误
func (c *Client) gigya(ctx context.Context, path string, form url.Values, out interface{}) error {
	form.Set("ApiKey", c.cfg.GigyaAPIKey)

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.GigyaURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}

	var base gigyaResponse
	if err := json.Unmarshal(body, &base); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if base.ErrorCode != 0 {
		err := fmt.Errorf("gigya error %d: %s", base.ErrorCode, base.ErrorMessage)
		if base.ErrorCode >= 400000 && base.ErrorCode < 500000 {
			return fmt.Errorf("%v: %w", err, models.ErrSetupFailure)
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// doRequest 执行带认证的 Kamereon 请求
func (c *Client) doRequest(ctx context.Context, sess *session, path string) (*http.Response, error) {
	u := c.cfg.KamereonURL + path
	if strings.Contains(path, "?") {
		u += "&country=" + url.QueryEscape(c.cfg.Country)
	} else {
		u += "?country=" + url.QueryEscape(c.cfg.Country)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("apikey", c.cfg.KamereonAPIKey)
	req.Header.Set("x-gigya-id_token", sess.idToken)
	req.Header.Set("Content-Type", "application/vnd.api+json")

	return c.httpClient.Do(req)
}

func (c *Client) getJSON(ctx context.Context, sess *session, path string, out interface{}) error {
	resp, err := c.doRequest(ctx, sess, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		c.invalidate()
		return ErrUnauthorized
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// getPerson 获取用户及其账户
func (c *Client) getPerson(ctx context.Context, sess *session) (*Person, error) {
	var p Person
	if err := c.getJSON(ctx, sess, "/commerce/v1/persons/"+url.PathEscape(sess.personID), &p); err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return &p, nil
}

// listVehicles 获取账户下的车辆
func (c *Client) listVehicles(ctx context.Context, sess *session) ([]VehicleLink, error) {
	var vr vehiclesResponse
	if err := c.getJSON(ctx, sess, "/commerce/v1/accounts/"+url.PathEscape(sess.accountID)+"/vehicles", &vr); err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return vr.VehicleLinks, nil
}

// getBatteryStatus 获取电池状态
func (c *Client) getBatteryStatus(ctx context.Context, sess *session) (*BatteryStatus, error) {
	var data kamereonData[BatteryStatus]
	if err := c.getJSON(ctx, sess, c.carAdapterPath(sess, "v2", "battery-status"), &data); err != nil {
		return nil, fmt.Errorf("get battery status: %w", err)
	}
	return &data.Data.Attributes, nil
}

// getCockpit 获取里程表
func (c *Client) getCockpit(ctx context.Context, sess *session) (*Cockpit, error) {
	var data kamereonData[Cockpit]
	if err := c.getJSON(ctx, sess, c.carAdapterPath(sess, "v1", "cockpit"), &data); err != nil {
		return nil, fmt.Errorf("get cockpit: %w", err)
	}
	return &data.Data.Attributes, nil
}

func (c *Client) carAdapterPath(sess *session, version, endpoint string) string {
	return fmt.Sprintf("/commerce/v1/accounts/%s/kamereon/kca/car-adapter/%s/cars/%s/%s",
		url.PathEscape(sess.accountID), version, url.PathEscape(sess.vin), endpoint)
}
